package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
)

// targetNames are the target-variable names recognized across the bundled
// datasets, generic names first.
var targetNames = []string{
	"target", "label", "prediction", "y",
	"Survived", "Income", "MedHouseVal", "Outcome",
	"income", "survived", "medhouseval", "outcome",
}

// FeatureChanges computes the ground-truth feature changes between a
// factual and counterfactual record.
func FeatureChanges(factual, counterfactual domain.Record) map[string]domain.FeatureChange {
	changes := make(map[string]domain.FeatureChange)

	keys := make(map[string]struct{}, len(factual)+len(counterfactual))
	for k := range factual {
		keys[k] = struct{}{}
	}
	for k := range counterfactual {
		keys[k] = struct{}{}
	}

	for key := range keys {
		fv, cv := factual[key], counterfactual[key]
		if valuesEqual(fv, cv) {
			continue
		}
		changes[key] = domain.FeatureChange{Factual: fv, Counterfactual: cv}
	}
	return changes
}

// TargetChange detects the target-variable flip, trying exact name matches
// before case-insensitive ones. Returns a zero value when no known target
// changed.
func TargetChange(factual, counterfactual domain.Record) domain.TargetChange {
	for _, name := range targetNames {
		fv, inF := factual[name]
		cv, inC := counterfactual[name]
		if inF && inC && !valuesEqual(fv, cv) {
			return domain.TargetChange{Variable: name, Factual: fv, Counterfactual: cv}
		}
	}

	lower := make(map[string]string, len(factual))
	for k := range factual {
		lower[strings.ToLower(k)] = k
	}
	for _, name := range targetNames {
		key, ok := lower[strings.ToLower(name)]
		if !ok {
			continue
		}
		cv, inC := counterfactual[key]
		if inC && !valuesEqual(factual[key], cv) {
			return domain.TargetChange{Variable: key, Factual: factual[key], Counterfactual: cv}
		}
	}
	return domain.TargetChange{}
}

// SortedChangeKeys returns the changed feature names in deterministic order.
func SortedChangeKeys(changes map[string]domain.FeatureChange) []string {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// valuesEqual compares two scalar values, treating numbers numerically so
// 40 and 40.0 compare equal after JSON round-trips.
func valuesEqual(a, b any) bool {
	af, aNum := asNumber(a)
	bf, bNum := asNumber(b)
	if aNum && bNum {
		return math.Abs(af-bf) <= 1e-9
	}
	if aNum != bNum {
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
