// Package store keeps a queryable history of pipeline artifacts in
// SQLite, one row per produced experiment or evaluation.
package store

import "time"

// RunKind classifies a history row.
type RunKind string

const (
	KindExperiment  RunKind = "experiment"
	KindEvaluation  RunKind = "evaluation"
	KindGroundTruth RunKind = "groundtruth"
)

// Run is one recorded pipeline artifact.
type Run struct {
	ID           string
	Kind         RunKind
	Name         string
	ArtifactPath string
	Model        string
	Provider     string
	PassRate     float64
	QualityScore float64
	TotalCost    float64
	CreatedAt    time.Time
}

// Filter narrows List queries. Zero values match everything.
type Filter struct {
	Kind  RunKind
	Model string
	Limit int
}

// Store records and lists pipeline runs.
type Store interface {
	RecordRun(run *Run) error
	ListRuns(filter Filter) ([]*Run, error)
	Close() error
}
