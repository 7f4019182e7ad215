// Package history persists completed explanation requests so the UI can
// show previous runs.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
)

// ErrNotFound is returned when no record exists for an ID.
var ErrNotFound = errors.New("history record not found")

// Record is one completed explanation run.
type Record struct {
	ID        string                    `json:"id"`
	Dataset   string                    `json:"dataset"`
	Model     string                    `json:"model"`
	Mode      domain.GenerationMode     `json:"mode"`
	Request   *domain.GenerationRequest `json:"request,omitempty"`
	Result    *domain.ExplanationResult `json:"result,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
}

// ListOptions filters List calls.
type ListOptions struct {
	Dataset string
	Limit   int
}

// Store persists explanation history.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// List returns records newest first.
	List(ctx context.Context, opts ListOptions) ([]*Record, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Close() error
}
