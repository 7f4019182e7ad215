package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
)

// ComputeMetrics scores a parsed model response against the ground truth.
// A nil parsedJSON means JSON parsing failed and every metric fails.
func ComputeMetrics(parsedJSON map[string]any, groundTruth map[string]domain.FeatureChange, target domain.TargetChange) *domain.Metrics {
	if parsedJSON == nil {
		return &domain.Metrics{}
	}

	parsedKeys := parsedChangeKeys(parsedJSON["feature_changes"])

	truthKeys := make(map[string]struct{}, len(groundTruth))
	for k := range groundTruth {
		truthKeys[normalizeKey(k)] = struct{}{}
	}

	var avgFF float64
	var pff bool
	if len(truthKeys) == 0 {
		pff = len(parsedKeys) == 0
		if pff {
			avgFF = 1.0
		}
	} else {
		captured := 0
		for k := range truthKeys {
			if _, ok := parsedKeys[k]; ok {
				captured++
			}
		}
		avgFF = float64(captured) / float64(len(truthKeys))
		pff = captured == len(truthKeys) && len(parsedKeys) == len(truthKeys)
	}

	avgFF = math.Round(avgFF*1000) / 1000

	return &domain.Metrics{
		JSONParsingSuccess: true,
		PFF:                pff,
		TF:                 targetCaptured(parsedJSON["target_variable_change"], target),
		AvgFF:              &avgFF,
	}
}

// parsedChangeKeys normalizes the model's feature_changes field, which may
// be a list of single-key objects or a plain object.
func parsedChangeKeys(raw any) map[string]struct{} {
	keys := make(map[string]struct{})
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for k := range obj {
				keys[normalizeKey(k)] = struct{}{}
			}
		}
	case map[string]any:
		for k := range v {
			keys[normalizeKey(k)] = struct{}{}
		}
	}
	return keys
}

// targetCaptured checks the model's target_variable_change against the
// detected ground truth. With no ground-truth target, an absent or empty
// parsed target counts as correct.
func targetCaptured(raw any, target domain.TargetChange) bool {
	parsed, isObj := raw.(map[string]any)

	if target.Variable == "" {
		return !isObj || len(parsed) == 0
	}
	if !isObj || len(parsed) == 0 {
		return false
	}

	return normalizeValue(parsed["factual"]) == normalizeValue(target.Factual) &&
		normalizeValue(parsed["counterfactual"]) == normalizeValue(target.Counterfactual)
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// normalizeValue renders a scalar for tolerant comparison: numbers without
// trailing zeros, strings lowercased and trimmed.
func normalizeValue(v any) string {
	if f, ok := asNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", v)))
}
