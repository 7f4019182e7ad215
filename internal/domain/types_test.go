package domain

import (
	"errors"
	"testing"
)

func validRequest() *GenerationRequest {
	return &GenerationRequest{
		Dataset:        "adult",
		Model:          "demo",
		Factual:        Record{"age": 39.0},
		Counterfactual: Record{"age": 45.0},
	}
}

func TestParamsDefaults(t *testing.T) {
	p := validRequest().Params()
	if p.Temperature != 0.6 || p.TopP != 0.8 || p.MaxTokens != 4096 || !p.FineTuned {
		t.Errorf("Params() = %+v, want documented defaults", p)
	}
}

func TestParamsOverrides(t *testing.T) {
	req := validRequest()
	temp, topP, maxTokens, fineTuned := 1.2, 0.5, 512, false
	req.Temperature = &temp
	req.TopP = &topP
	req.MaxTokens = &maxTokens
	req.FineTuned = &fineTuned

	p := req.Params()
	if p.Temperature != 1.2 || p.TopP != 0.5 || p.MaxTokens != 512 || p.FineTuned {
		t.Errorf("Params() = %+v", p)
	}
}

func TestValidate(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	n := func(v int) *int { return &v }

	tests := []struct {
		name      string
		mutate    func(*GenerationRequest)
		wantParam string
	}{
		{name: "valid", mutate: func(*GenerationRequest) {}},
		{name: "missing dataset", mutate: func(r *GenerationRequest) { r.Dataset = "" }, wantParam: "dataset"},
		{name: "missing model", mutate: func(r *GenerationRequest) { r.Model = "" }, wantParam: "model"},
		{name: "missing factual", mutate: func(r *GenerationRequest) { r.Factual = nil }, wantParam: "factual"},
		{name: "missing counterfactual", mutate: func(r *GenerationRequest) { r.Counterfactual = nil }, wantParam: "counterfactual"},
		{name: "temperature too high", mutate: func(r *GenerationRequest) { r.Temperature = f(2.5) }, wantParam: "temperature"},
		{name: "temperature negative", mutate: func(r *GenerationRequest) { r.Temperature = f(-0.1) }, wantParam: "temperature"},
		{name: "top_p out of range", mutate: func(r *GenerationRequest) { r.TopP = f(1.5) }, wantParam: "top_p"},
		{name: "max_tokens zero", mutate: func(r *GenerationRequest) { r.MaxTokens = n(0) }, wantParam: "max_tokens"},
		{name: "max_tokens over limit", mutate: func(r *GenerationRequest) { r.MaxTokens = n(9000) }, wantParam: "max_tokens"},
		{name: "bad generation type", mutate: func(r *GenerationRequest) { r.GenerationType = "multi-pass" }, wantParam: "generation_type"},
		{name: "boundary temperature", mutate: func(r *GenerationRequest) { r.Temperature = f(2.0) }},
		{name: "boundary max_tokens", mutate: func(r *GenerationRequest) { r.MaxTokens = n(8192) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := req.Validate()

			if tt.wantParam == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Validate() error = %v, want APIError", err)
			}
			if apiErr.Type != ErrorTypeInvalidRequest || apiErr.Param != tt.wantParam {
				t.Errorf("Validate() = %+v, want invalid_request on %q", apiErr, tt.wantParam)
			}
		})
	}
}

func TestMode(t *testing.T) {
	req := validRequest()
	if req.Mode() != ModeOneShot {
		t.Errorf("Mode() = %q, want one-shot default", req.Mode())
	}
	req.GenerationType = ModeSelfRefinement
	if req.Mode() != ModeSelfRefinement {
		t.Errorf("Mode() = %q", req.Mode())
	}
}

func TestDraftStateTerminal(t *testing.T) {
	for state, want := range map[DraftState]bool{
		DraftPending: false,
		DraftLoading: false,
		DraftSuccess: true,
		DraftFailed:  true,
	} {
		if got := state.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", state, got, want)
		}
	}
}

func TestNewDraftList(t *testing.T) {
	drafts := NewDraftList(5)
	if len(drafts) != 5 {
		t.Fatalf("NewDraftList(5) length = %d", len(drafts))
	}
	for i, d := range drafts {
		if d.Index != i || d.Status != DraftPending {
			t.Errorf("draft %d = %+v", i, d)
		}
	}
}

func TestAPIErrorStatusCodes(t *testing.T) {
	for errType, want := range map[ErrorType]int{
		ErrorTypeInvalidRequest: 400,
		ErrorTypeContextLength:  400,
		ErrorTypeNotFound:       404,
		ErrorTypeProvider:       502,
		ErrorTypeServer:         500,
	} {
		if got := NewAPIError(errType, "x").HTTPStatusCode(); got != want {
			t.Errorf("%s status = %d, want %d", errType, got, want)
		}
	}

	if got := NewAPIError(ErrorTypeServer, "x").WithStatus(503).HTTPStatusCode(); got != 503 {
		t.Errorf("WithStatus(503) = %d", got)
	}
}
