package examples

import _ "embed"

// embeddedCorpus is a small bundled corpus so the service can run without a
// data file. The full corpus ships separately as test_counterfactuals.json.
//
//go:embed data/counterfactuals.json
var embeddedCorpus []byte
