package pipeline

import (
	"testing"
)

func TestConsensusScoreFullAgreement(t *testing.T) {
	r := map[string]int{"age": 1, "hours": 2, "sex": 3}
	score := ConsensusScore([]map[string]int{r, r, r})
	if score == nil || *score != 1.0 {
		t.Fatalf("ConsensusScore() = %v, want 1.0", score)
	}
}

func TestConsensusScoreDisagreement(t *testing.T) {
	a := map[string]int{"age": 1, "hours": 2, "sex": 3}
	b := map[string]int{"age": 3, "hours": 2, "sex": 1}

	score := ConsensusScore([]map[string]int{a, b})
	if score == nil || *score != -1.0 {
		t.Fatalf("ConsensusScore() = %v, want -1.0 for reversed rankings", score)
	}
}

func TestConsensusScoreMixedRounded(t *testing.T) {
	a := map[string]int{"age": 1, "hours": 2, "sex": 3}
	b := map[string]int{"age": 1, "hours": 2, "sex": 3}
	c := map[string]int{"age": 3, "hours": 2, "sex": 1}

	// Pairs: (a,b)=1, (a,c)=-1, (b,c)=-1. Mean -1/3 rounds to -0.33.
	score := ConsensusScore([]map[string]int{a, b, c})
	if score == nil || *score != -0.33 {
		t.Fatalf("ConsensusScore() = %v, want -0.33", score)
	}
}

func TestConsensusScoreNotComparable(t *testing.T) {
	tests := []struct {
		name     string
		rankings []map[string]int
	}{
		{name: "no rankings", rankings: nil},
		{name: "single ranking", rankings: []map[string]int{{"age": 1, "sex": 2}}},
		{
			name: "disjoint features",
			rankings: []map[string]int{
				{"age": 1, "hours": 2},
				{"sex": 1, "fare": 2},
			},
		},
		{
			name: "single common feature",
			rankings: []map[string]int{
				{"age": 1, "hours": 2},
				{"age": 1, "fare": 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if score := ConsensusScore(tt.rankings); score != nil {
				t.Errorf("ConsensusScore() = %v, want nil", *score)
			}
		})
	}
}

func TestConsensusScoreFlatRankings(t *testing.T) {
	a := map[string]int{"age": 1, "hours": 1, "sex": 1}
	b := map[string]int{"age": 1, "hours": 1, "sex": 1}

	score := ConsensusScore([]map[string]int{a, b})
	if score == nil || *score != 1.0 {
		t.Fatalf("ConsensusScore() = %v, want 1.0 for identical flat rankings", score)
	}
}

func TestRankVectorAveragesTies(t *testing.T) {
	ranks := rankVector([]float64{1, 2, 2, 3})
	want := []float64{1, 2.5, 2.5, 4}
	for i := range want {
		if ranks[i] != want[i] {
			t.Fatalf("rankVector() = %v, want %v", ranks, want)
		}
	}
}

func TestExtractRanking(t *testing.T) {
	parsed := map[string]any{
		"features_importance_ranking": map[string]any{
			"age":   float64(1),
			"hours": "2",
			"sex":   "not a rank",
		},
	}

	ranking := ExtractRanking(parsed)
	if len(ranking) != 2 {
		t.Fatalf("ExtractRanking() = %v, want 2 entries", ranking)
	}
	if ranking["age"] != 1 || ranking["hours"] != 2 {
		t.Errorf("ExtractRanking() = %v, want age=1 hours=2", ranking)
	}
}

func TestExtractRankingMissing(t *testing.T) {
	for _, parsed := range []map[string]any{
		{},
		{"features_importance_ranking": "flat text"},
		{"features_importance_ranking": map[string]any{}},
	} {
		if ranking := ExtractRanking(parsed); ranking != nil {
			t.Errorf("ExtractRanking(%v) = %v, want nil", parsed, ranking)
		}
	}
}
