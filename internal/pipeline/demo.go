package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
)

// DemoWarning is attached to demo-mode results.
const DemoWarning = "Local model inference is unavailable. This is a canned example output."

const demoReasoning = `I need to analyze the differences between the factual and counterfactual examples. The changed features each push the model's decision in the same direction: the primary change alters a fundamental input characteristic, the secondary numeric shift amplifies that effect, and the remaining categorical changes provide supporting context. Together they move the instance across the model's decision boundary, which explains the flipped prediction.`

// demoResult mirrors a real explanation's shape with canned narrative text,
// for use when no inference backend is available.
func demoResult(factual, counterfactual domain.Record) *domain.ExplanationResult {
	changes := FeatureChanges(factual, counterfactual)
	target := TargetChange(factual, counterfactual)

	features := SortedChangeKeys(changes)
	if target.Variable != "" {
		features = removeString(features, target.Variable)
	}
	if len(features) == 0 {
		features = []string{"feature_1", "feature_2", "feature_3"}
		changes = map[string]domain.FeatureChange{
			"feature_1": {Factual: "value_A", Counterfactual: "value_B"},
			"feature_2": {Factual: 10, Counterfactual: 15},
			"feature_3": {Factual: "category_X", Counterfactual: "category_Y"},
		}
	}

	narrative := demoNarrative(features)
	parsed := demoParsedJSON(changes, target, demoRanking(features, 0), narrative)

	avgFF := 1.0
	return &domain.ExplanationResult{
		Explanation:          narrative,
		RawOutput:            demoRawOutput(parsed),
		ParsedJSON:           parsed,
		FeatureChanges:       changes,
		TargetVariableChange: target,
		Reasoning:            demoReasoning,
		Metrics: &domain.Metrics{
			JSONParsingSuccess: true,
			PFF:                true,
			TF:                 true,
			AvgFF:              &avgFF,
		},
		Status:  "demo",
		Warning: DemoWarning,
	}
}

// demoDraftOutput synthesizes one draft's raw model output. Rankings vary
// slightly per draft so the consensus score is realistic rather than 1.0.
func demoDraftOutput(factual, counterfactual domain.Record, draft int) string {
	changes := FeatureChanges(factual, counterfactual)
	target := TargetChange(factual, counterfactual)

	features := SortedChangeKeys(changes)
	if target.Variable != "" {
		features = removeString(features, target.Variable)
	}
	if len(features) == 0 {
		features = []string{"feature_1", "feature_2", "feature_3"}
	}

	narrative := demoNarrative(features)
	parsed := demoParsedJSON(changes, target, demoRanking(features, draft), narrative)
	return demoRawOutput(parsed)
}

func demoNarrative(features []string) string {
	primary := features[0]
	secondary, tertiary := primary, primary
	if len(features) > 1 {
		secondary = features[1]
	}
	if len(features) > 2 {
		tertiary = features[2]
	}

	return fmt.Sprintf(`The transition from the factual to the counterfactual instance reveals several key modifications that collectively influence the model's classification decision. The primary driver of this change appears to be the alteration in %s, which shifted from its original state to a modified configuration.

Accompanying this primary modification, the adjustment in %s further reinforces the directional change in the model's prediction, while the change observed in %s provides contextual support for the overall classification shift.

The interaction between these modified features demonstrates the model's sensitivity to multi-dimensional changes. Rather than relying on a single factor, the classification outcome emerges from the combined effect of these interconnected modifications, which together move the instance across the model's decision boundary.`, primary, secondary, tertiary)
}

// demoRanking ranks up to five features with some tied ranks, rotated by
// draft index so independent drafts disagree slightly.
func demoRanking(features []string, draft int) map[string]string {
	n := len(features)
	if n > 5 {
		n = 5
	}

	ranking := make(map[string]string, n)
	for i := 0; i < n; i++ {
		pos := (i + draft) % n
		switch {
		case pos < 2:
			ranking[features[i]] = "1"
		case pos < 4:
			ranking[features[i]] = "2"
		default:
			ranking[features[i]] = "3"
		}
	}
	return ranking
}

func demoParsedJSON(changes map[string]domain.FeatureChange, target domain.TargetChange, ranking map[string]string, narrative string) map[string]any {
	changeList := make([]any, 0, len(changes))
	for _, key := range SortedChangeKeys(changes) {
		if key == target.Variable {
			continue
		}
		changeList = append(changeList, map[string]any{key: map[string]any{
			"factual":        changes[key].Factual,
			"counterfactual": changes[key].Counterfactual,
		}})
	}

	targetChange := map[string]any{"factual": "class_A", "counterfactual": "class_B"}
	if target.Variable != "" {
		targetChange = map[string]any{"factual": target.Factual, "counterfactual": target.Counterfactual}
	}

	rankingObj := make(map[string]any, len(ranking))
	for k, v := range ranking {
		rankingObj[k] = v
	}

	return map[string]any{
		"feature_changes":             changeList,
		"target_variable_change":      targetChange,
		"reasoning":                   demoReasoning,
		"features_importance_ranking": rankingObj,
		"explanation":                 narrative,
	}
}

// demoRawOutput formats the full raw model output: a think block followed
// by the fenced JSON, matching what the fine-tuned models emit.
func demoRawOutput(parsed map[string]any) string {
	data, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		data = []byte(strconv.Quote(err.Error()))
	}
	return fmt.Sprintf("<think>\n%s\n</think>\n```json\n%s\n```", demoReasoning, data)
}

func removeString(in []string, drop string) []string {
	out := in[:0]
	for _, v := range in {
		if v != drop {
			out = append(out, v)
		}
	}
	return out
}
