// Package artifact derives canonical identifiers from pipeline artifact
// filenames so that independently produced files describing the same logical
// test subject can be correlated.
package artifact

import (
	"path/filepath"
	"strings"
)

// Kind identifies the artifact category a filename belongs to.
type Kind string

const (
	KindExperiment  Kind = "experiment"
	KindEvaluation  Kind = "evaluation"
	KindGroundTruth Kind = "groundtruth"
	KindTestData    Kind = "testdata"
)

// ID is a typed canonical identifier computed once at ingestion time and
// threaded through joins instead of re-derived ad hoc.
type ID struct {
	Kind    Kind
	Base    string
	UseCase string // ground-truth only: qa, summarization, email
}

// Suffix conventions per kind, longest first. The first suffix found at the
// end of the filename is stripped; the generic extension is the fallback.
var kindSuffixes = map[Kind][]string{
	KindEvaluation: {
		".experiment.eval.json",
		".eval.json",
		".json",
	},
	KindExperiment: {
		".experiment.json",
		".json",
	},
	KindGroundTruth: {
		".summarization.groundtruth.json",
		".email.groundtruth.json",
		".qa.groundtruth.json",
		".groundtruth.json",
		".json",
	},
	KindTestData: {
		".json",
		".html",
		".txt",
		".md",
	},
}

// groundTruthUseCases maps a stripped suffix to its use-case tag.
var groundTruthUseCases = map[string]string{
	".summarization.groundtruth.json": "summarization",
	".email.groundtruth.json":         "email",
	".qa.groundtruth.json":            "qa",
}

// DeriveID strips the longest matching known suffix for the kind and returns
// the resulting canonical identifier. Applying DeriveID to an already
// stripped name returns the same base.
func DeriveID(filename string, kind Kind) ID {
	name := filepath.Base(strings.TrimSpace(filename))

	for _, suffix := range kindSuffixes[kind] {
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		id := ID{
			Kind: kind,
			Base: strings.TrimSuffix(name, suffix),
		}
		if kind == KindGroundTruth {
			id.UseCase = groundTruthUseCases[suffix]
		}
		return id
	}

	// No known suffix: strip only the generic file extension.
	ext := filepath.Ext(name)
	return ID{Kind: kind, Base: strings.TrimSuffix(name, ext)}
}

// String returns the canonical base identifier used for joins.
func (id ID) String() string {
	return id.Base
}

// Label returns a display label. Ground-truth identifiers keep their
// use-case tag so two records that strip to the same base stay distinct
// instead of being silently merged.
func (id ID) Label() string {
	if id.UseCase != "" {
		return id.Base + " (" + id.UseCase + ")"
	}
	return id.Base
}

// Matches reports whether two identifiers refer to the same logical subject.
// A match across different kinds is the expected correlation between
// pipeline stages.
func (id ID) Matches(other ID) bool {
	return id.Base != "" && id.Base == other.Base
}
