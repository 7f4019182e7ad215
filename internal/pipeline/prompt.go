package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
)

// datasetKB holds the per-dataset background given to the model.
var datasetKB = map[string]string{
	"adult": "The Adult Income dataset contains census records describing a person's " +
		"age, work class, education, marital status, occupation and weekly working " +
		"hours. The target variable 'income' states whether the person earns more " +
		"or less than 50K per year.",
	"titanic": "The Titanic dataset describes passengers of the RMS Titanic: ticket " +
		"class, sex, age, number of siblings/spouses and parents/children aboard, " +
		"fare paid and port of embarkation. The target variable 'Survived' states " +
		"whether the passenger survived the sinking.",
	"california": "The California Housing dataset describes census block groups in " +
		"California: median income, house age, average rooms and bedrooms, " +
		"population and average occupancy. The target variable 'MedHouseVal' is the " +
		"median house value category of the block group.",
	"diabetes": "The Diabetes dataset contains diagnostic measurements for patients: " +
		"number of pregnancies, plasma glucose, blood pressure, body mass index, " +
		"diabetes pedigree function and age. The target variable 'Outcome' states " +
		"whether the patient tested positive for diabetes.",
}

const promptTemplate = `You are an expert in explainable AI. Below is a description of a dataset, a factual instance from it, and a counterfactual instance that flips the model's prediction.

Dataset description:
%s

Factual instance:
%s

Counterfactual instance:
%s

Identify the features that changed between the two instances, rank them by their importance for the prediction change, and write a clear narrative explanation of why these changes flip the outcome.

Your response MUST end with a valid JSON object inside a fenced ` + "```json" + ` block, with exactly this structure:
{
    "feature_changes": [{"<feature>": {"factual": <value>, "counterfactual": <value>}}, ...],
    "target_variable_change": {"factual": <value>, "counterfactual": <value>},
    "reasoning": "<your step-by-step reasoning>",
    "features_importance_ranking": {"<feature>": "<rank>", ...},
    "explanation": "<your narrative explanation>"
}`

const fallbackTemplate = `Generate a narrative explanation for a counterfactual instance in the %s dataset.

Factual instance:
%s

Counterfactual instance:
%s

Explain what changed between the factual and counterfactual instances and why these changes might flip the model's prediction.

Your response MUST be a valid JSON object with the following structure:
{
    "explanation": "<your narrative explanation here>",
    "reasoning": "<your reasoning process>"
}`

// BuildPrompt renders the generation prompt for a request. Datasets without
// a knowledge-base entry get the generic fallback template.
func BuildPrompt(dataset string, factual, counterfactual domain.Record) string {
	fact := formatRecord(factual)
	counter := formatRecord(counterfactual)

	kb, ok := datasetKB[strings.ToLower(dataset)]
	if !ok {
		return fmt.Sprintf(fallbackTemplate, dataset, fact, counter)
	}
	return fmt.Sprintf(promptTemplate, kb, fact, counter)
}

const refinementTemplate = `You are an expert in explainable AI. You previously produced several candidate explanations (drafts) of the same counterfactual. Review them, keep what they agree on, resolve their disagreements, and produce one refined final explanation.

Factual instance:
%s

Counterfactual instance:
%s

Drafts:
%s

Your response MUST end with a valid JSON object inside a fenced ` + "```json" + ` block, with exactly this structure:
{
    "feature_changes": [{"<feature>": {"factual": <value>, "counterfactual": <value>}}, ...],
    "target_variable_change": {"factual": <value>, "counterfactual": <value>},
    "reasoning": "<your step-by-step reasoning>",
    "features_importance_ranking": {"<feature>": "<rank>", ...},
    "explanation": "<your refined narrative explanation>"
}`

// BuildRefinementPrompt renders the refinement-pass prompt over the
// successful drafts' explanations.
func BuildRefinementPrompt(factual, counterfactual domain.Record, drafts []string) string {
	var sb strings.Builder
	for i, draft := range drafts {
		fmt.Fprintf(&sb, "--- Draft %d ---\n%s\n\n", i+1, draft)
	}
	return fmt.Sprintf(refinementTemplate, formatRecord(factual), formatRecord(counterfactual), sb.String())
}

func formatRecord(rec domain.Record) string {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", rec)
	}
	return string(data)
}
