// Package examples serves factual/counterfactual example pairs from a
// JSON corpus keyed by dataset.
package examples

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"sort"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
)

// Entry is one corpus entry: a factual instance with the counterfactuals
// generated for it.
type Entry struct {
	Factual         domain.Record   `json:"factual"`
	Counterfactuals []domain.Record `json:"counterfactuals"`
}

// Pair is one served factual/counterfactual example.
type Pair struct {
	Factual        domain.Record `json:"factual"`
	Counterfactual domain.Record `json:"counterfactual"`
}

// DatasetInfo pairs a dataset's API key with its display name.
type DatasetInfo struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// datasetOrder is the canonical listing order for the bundled datasets.
var datasetOrder = []string{"adult", "titanic", "california", "diabetes"}

// displayNames maps API dataset keys to the corpus's display-name keys.
var displayNames = map[string]string{
	"adult":      "Adult Income",
	"titanic":    "Titanic",
	"california": "California Housing",
	"diabetes":   "Diabetes",
}

// Store holds the loaded corpus and serves random example pairs.
type Store struct {
	data   map[string]map[string]Entry
	rng    *rand.Rand
	logger *slog.Logger
}

// Option configures the store.
type Option func(*Store)

// WithRand sets the random source, for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(s *Store) { s.rng = rng }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New builds a store from raw corpus JSON.
func New(raw []byte, opts ...Option) (*Store, error) {
	var data map[string]map[string]Entry
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse example corpus: %w", err)
	}

	s := &Store{
		data:   data,
		rng:    rand.New(rand.NewSource(rand.Int63())),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load builds a store from a corpus file, falling back to the embedded
// corpus when path is empty or missing.
func Load(path string, opts ...Option) (*Store, error) {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			return New(raw, opts...)
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read example corpus %s: %w", path, err)
		}
		slog.Warn("example corpus file not found, using embedded corpus", slog.String("path", path))
	}
	return New(embeddedCorpus, opts...)
}

// Datasets returns the available dataset keys in canonical order, with
// display names.
func (s *Store) Datasets() ([]string, []DatasetInfo) {
	var keys []string
	var info []DatasetInfo
	for _, key := range datasetOrder {
		if _, ok := s.data[displayNames[key]]; !ok {
			continue
		}
		keys = append(keys, key)
		info = append(info, DatasetInfo{Key: key, Name: displayNames[key]})
	}
	if len(keys) == 0 {
		for _, key := range datasetOrder {
			keys = append(keys, key)
			info = append(info, DatasetInfo{Key: key, Name: displayNames[key]})
		}
	}
	return keys, info
}

// Has reports whether the dataset key is known.
func (s *Store) Has(dataset string) bool {
	_, ok := s.data[displayNames[dataset]]
	return ok
}

// Example returns a random factual/counterfactual pair for the dataset, or
// nil when the dataset has no usable entries.
func (s *Store) Example(dataset string) *Pair {
	entries := s.validEntries(dataset)
	if len(entries) == 0 {
		return nil
	}

	entry := entries[s.rng.Intn(len(entries))]
	return &Pair{
		Factual:        entry.Factual,
		Counterfactual: entry.Counterfactuals[s.rng.Intn(len(entry.Counterfactuals))],
	}
}

// NewCounterfactual returns a fresh random counterfactual for the given
// factual instance, or nil when the factual is not part of the corpus.
func (s *Store) NewCounterfactual(dataset string, factual domain.Record) *Pair {
	for _, entry := range s.validEntries(dataset) {
		if !recordsEqual(entry.Factual, factual) {
			continue
		}
		return &Pair{
			Factual:        factual,
			Counterfactual: entry.Counterfactuals[s.rng.Intn(len(entry.Counterfactuals))],
		}
	}
	return nil
}

// validEntries returns the dataset's entries that carry both a factual and
// at least one counterfactual, in deterministic key order.
func (s *Store) validEntries(dataset string) []Entry {
	datasetData, ok := s.data[displayNames[dataset]]
	if !ok {
		return nil
	}

	keys := make([]string, 0, len(datasetData))
	for key := range datasetData {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var entries []Entry
	for _, key := range keys {
		entry := datasetData[key]
		if len(entry.Factual) > 0 && len(entry.Counterfactuals) > 0 {
			entries = append(entries, entry)
		}
	}
	return entries
}

// floatTolerance bounds numeric comparison when matching factual records
// that round-tripped through JSON.
const floatTolerance = 1e-9

// recordsEqual compares two records field by field, treating numeric values
// as equal within tolerance regardless of their JSON decoding type.
func recordsEqual(a, b domain.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for key, av := range a {
		bv, ok := b[key]
		if !ok {
			return false
		}
		af, aNum := asFloat(av)
		bf, bNum := asFloat(bv)
		if aNum && bNum {
			if math.Abs(af-bf) > floatTolerance {
				return false
			}
			continue
		}
		if fmt.Sprintf("%v", av) != fmt.Sprintf("%v", bv) {
			return false
		}
	}
	return true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
