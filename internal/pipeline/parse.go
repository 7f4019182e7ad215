package pipeline

import (
	"encoding/json"
	"regexp"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// requiredKeys are the fields a fully structured model response carries.
var requiredKeys = []string{"feature_changes", "reasoning", "features_importance_ranking", "explanation"}

// ExtractJSON pulls the best JSON object out of raw model output. It
// collects candidates from fenced json blocks and from balanced-brace spans,
// then picks, scanning candidates last-first:
//
//  1. an object with all required fields,
//  2. an object with at least feature_changes,
//  3. any object.
//
// Returns nil when no candidate parses.
func ExtractJSON(text string) map[string]any {
	if text == "" {
		return nil
	}

	var candidates []string
	for _, match := range fencedJSONPattern.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, match[1])
	}
	candidates = append(candidates, balancedBraceSpans(text)...)

	for _, cand := range reversed(candidates) {
		if parsed := tryParseObject(cand); parsed != nil && hasKeys(parsed, requiredKeys...) {
			return parsed
		}
	}
	for _, cand := range reversed(candidates) {
		if parsed := tryParseObject(cand); parsed != nil && hasKeys(parsed, "feature_changes") {
			return parsed
		}
	}
	for _, cand := range reversed(candidates) {
		if parsed := tryParseObject(cand); parsed != nil {
			return parsed
		}
	}
	return nil
}

// balancedBraceSpans returns every top-level {...} span in the text.
func balancedBraceSpans(text string) []string {
	var spans []string
	depth, start := 0, -1
	for i, ch := range text {
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				spans = append(spans, text[start:i+1])
			}
		}
	}
	return spans
}

func tryParseObject(snippet string) map[string]any {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(snippet), &parsed); err != nil {
		return nil
	}
	return parsed
}

func hasKeys(obj map[string]any, keys ...string) bool {
	for _, key := range keys {
		if _, ok := obj[key]; !ok {
			return false
		}
	}
	return true
}

func reversed(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
