package pipeline

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ConsensusScore measures agreement among drafts' feature-importance
// rankings: the mean pairwise Spearman correlation over features the two
// rankings share. Returns nil when fewer than two rankings are comparable.
func ConsensusScore(rankings []map[string]int) *float64 {
	var sum float64
	pairs := 0

	for i := 0; i < len(rankings); i++ {
		for j := i + 1; j < len(rankings); j++ {
			rho, ok := spearman(rankings[i], rankings[j])
			if !ok {
				continue
			}
			sum += rho
			pairs++
		}
	}

	if pairs == 0 {
		return nil
	}
	score := math.Round(sum/float64(pairs)*100) / 100
	return &score
}

// spearman computes the Spearman rank correlation between two rankings over
// their common features. Needs at least two common features and variance in
// both rank vectors.
func spearman(a, b map[string]int) (float64, bool) {
	var common []string
	for feature := range a {
		if _, ok := b[feature]; ok {
			common = append(common, feature)
		}
	}
	if len(common) < 2 {
		return 0, false
	}
	sort.Strings(common)

	x := make([]float64, len(common))
	y := make([]float64, len(common))
	for i, feature := range common {
		x[i] = float64(a[feature])
		y[i] = float64(b[feature])
	}

	rx, ry := rankVector(x), rankVector(y)
	if constant(rx) && constant(ry) {
		// Both drafts rank every common feature identically flat; that is
		// full agreement, not undefined correlation.
		return 1, true
	}
	if constant(rx) || constant(ry) {
		return 0, false
	}

	return stat.Correlation(rx, ry, nil), true
}

// rankVector converts values to fractional ranks, averaging ties.
func rankVector(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return values[idx[i]] < values[idx[j]] })

	ranks := make([]float64, len(values))
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && values[idx[j]] == values[idx[i]] {
			j++
		}
		// Average rank for the tie group [i, j).
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}
	return ranks
}

func constant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// ExtractRanking reads features_importance_ranking from a parsed response,
// accepting numeric or string rank values.
func ExtractRanking(parsedJSON map[string]any) map[string]int {
	raw, ok := parsedJSON["features_importance_ranking"].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}

	ranking := make(map[string]int, len(raw))
	for feature, v := range raw {
		switch r := v.(type) {
		case float64:
			ranking[feature] = int(r)
		case string:
			n := 0
			for _, ch := range r {
				if ch < '0' || ch > '9' {
					n = -1
					break
				}
				n = n*10 + int(ch-'0')
			}
			if n > 0 {
				ranking[feature] = n
			}
		}
	}
	if len(ranking) == 0 {
		return nil
	}
	return ranking
}
