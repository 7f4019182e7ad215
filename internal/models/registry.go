// Package models discovers which explanation models are available for a
// dataset: fine-tuned checkpoints on disk, configured remote models, and
// the demo fallback.
package models

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Warning codes. The warning travels as a structured signal so clients can
// react to the condition instead of pattern-matching message text.
const (
	WarnAcceleratorUnavailable = "accelerator_unavailable"
	WarnNoFineTunedModels      = "no_finetuned_models"
)

// Warning is an advisory attached to a model listing. It is not an error.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DemoModel is always listed when real inference is unavailable.
const DemoModel = "demo"

// checkpointPrefix marks trained checkpoint directories inside a model dir.
const checkpointPrefix = "checkpoint-"

// trainerPrefix is stripped from on-disk model directory names.
const trainerPrefix = "unsloth_"

// Registry lists the models servable for each dataset.
type Registry struct {
	checkpointRoot string
	remoteModels   []string
	localEnabled   bool
}

// New creates a registry. checkpointRoot is the directory holding per-dataset
// fine-tuned checkpoint folders; remoteModels are configured hosted models;
// localEnabled reports whether a local inference accelerator is configured.
func New(checkpointRoot string, remoteModels []string, localEnabled bool) *Registry {
	return &Registry{
		checkpointRoot: checkpointRoot,
		remoteModels:   remoteModels,
		localEnabled:   localEnabled,
	}
}

// All returns every model the registry can name, across datasets.
func (r *Registry) All() []string {
	models := append([]string(nil), r.remoteModels...)
	if !r.localEnabled {
		models = append(models, DemoModel)
	}
	return models
}

// ForDataset returns the models available for one dataset plus an optional
// advisory warning.
func (r *Registry) ForDataset(dataset string) ([]string, *Warning, error) {
	local, err := r.scanCheckpoints(dataset)
	if err != nil {
		return nil, nil, err
	}

	models := append(local, r.remoteModels...)

	var warning *Warning
	if !r.localEnabled || len(local) == 0 {
		models = append(models, DemoModel)
		if !r.localEnabled {
			warning = &Warning{
				Code:    WarnAcceleratorUnavailable,
				Message: "Local inference is not available. Demo model is available for testing.",
			}
		} else {
			warning = &Warning{
				Code:    WarnNoFineTunedModels,
				Message: fmt.Sprintf("No fine-tuned models found for dataset: %s. Demo model is available for testing.", dataset),
			}
		}
	}

	return models, warning, nil
}

// CheckpointPath returns the newest checkpoint directory for a fine-tuned
// model, or "" when none exists.
func (r *Registry) CheckpointPath(dataset, model string) string {
	modelDir := filepath.Join(r.datasetDir(dataset), trainerPrefix+model)
	entries, err := os.ReadDir(modelDir)
	if err != nil {
		return ""
	}

	best, bestStep := "", -1
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), checkpointPrefix) {
			continue
		}
		step := checkpointStep(entry.Name())
		if step > bestStep {
			best, bestStep = filepath.Join(modelDir, entry.Name()), step
		}
	}
	return best
}

func (r *Registry) datasetDir(dataset string) string {
	return filepath.Join(r.checkpointRoot, fmt.Sprintf("outputs_unsloth_%s_worker", dataset))
}

// scanCheckpoints lists fine-tuned model names for a dataset by scanning its
// checkpoint folder. Only directories holding at least one checkpoint count.
func (r *Registry) scanCheckpoints(dataset string) ([]string, error) {
	if r.checkpointRoot == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(r.datasetDir(dataset))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan checkpoint directory: %w", err)
	}

	var models []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !hasCheckpoint(filepath.Join(r.datasetDir(dataset), entry.Name())) {
			continue
		}
		models = append(models, strings.TrimPrefix(entry.Name(), trainerPrefix))
	}
	sort.Strings(models)
	return models, nil
}

func hasCheckpoint(modelDir string) bool {
	children, err := os.ReadDir(modelDir)
	if err != nil {
		return false
	}
	for _, child := range children {
		if child.IsDir() && strings.HasPrefix(child.Name(), checkpointPrefix) {
			return true
		}
	}
	return false
}

func checkpointStep(name string) int {
	step := 0
	for _, ch := range strings.TrimPrefix(name, checkpointPrefix) {
		if ch < '0' || ch > '9' {
			return -1
		}
		step = step*10 + int(ch-'0')
	}
	return step
}
