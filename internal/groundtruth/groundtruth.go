// Package groundtruth generates and stores reference answers that
// experiments are later evaluated against.
package groundtruth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stellarlinkco/model-eval/internal/artifact"
	"github.com/stellarlinkco/model-eval/internal/pricing"
)

// ErrExists is returned by Store.Write when a record for the same source
// and use case already exists and force is not set.
var ErrExists = errors.New("groundtruth: record exists")

type UseCase string

const (
	UseCaseQA            UseCase = "qa"
	UseCaseSummarization UseCase = "summarization"
	UseCaseEmail         UseCase = "email"
)

func (u UseCase) Valid() bool {
	switch u {
	case UseCaseQA, UseCaseSummarization, UseCaseEmail:
		return true
	}
	return false
}

type Metadata struct {
	SourceFile          string        `json:"source_file"`
	UseCase             UseCase       `json:"use_case"`
	Model               string        `json:"model"`
	SystemPrompt        string        `json:"system_prompt,omitempty"`
	MaxTokens           int           `json:"max_tokens,omitempty"`
	Temperature         float64       `json:"temperature,omitempty"`
	Timestamp           string        `json:"timestamp"`
	SimilarityThreshold float64       `json:"similarity_threshold"`
	Usage               pricing.Usage `json:"total_usage"`
	Cost                *pricing.Cost `json:"total_cost,omitempty"`
}

type QAPair struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

type Summaries struct {
	ExecutiveSummary string   `json:"executive_summary"`
	DetailedSummary  string   `json:"detailed_summary"`
	ActionItems      []string `json:"action_items"`
	KeyDecisions     []string `json:"key_decisions"`
	Participants     []string `json:"participants"`
	TopicsDiscussed  []string `json:"topics_discussed"`
}

type EmailFields struct {
	Subject     string   `json:"subject"`
	Sender      string   `json:"sender"`
	Recipients  []string `json:"recipients,omitempty"`
	Summary     string   `json:"summary"`
	ActionItems []string `json:"action_items,omitempty"`
}

type Analysis struct {
	QAPairs   []QAPair     `json:"qa_pairs,omitempty"`
	Summaries *Summaries   `json:"summaries,omitempty"`
	Email     *EmailFields `json:"email,omitempty"`
}

type Record struct {
	Metadata Metadata `json:"metadata"`
	Analysis Analysis `json:"analysis"`
}

// Queries extracts the question list from a QA record, for driving QA
// experiments against raw documents.
func Queries(rec *Record) []string {
	if rec == nil {
		return nil
	}
	out := make([]string, 0, len(rec.Analysis.QAPairs))
	for _, p := range rec.Analysis.QAPairs {
		if q := strings.TrimSpace(p.Query); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// DefaultQueries returns the stock question set used for QA experiments
// on raw documents when no ground truth supplies questions.
func DefaultQueries() []string {
	return []string{
		"What were the main topics discussed in this meeting?",
		"What action items were assigned and to whom?",
		"What decisions were made during this meeting?",
		"Who participated in this meeting and what were their roles?",
		"What are the next steps or follow-up items?",
	}
}

// Store persists ground-truth records, one JSON file per source/use-case
// pair, under a single directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: strings.TrimSpace(dir)}
}

// Filename returns the artifact filename a record is stored under.
func Filename(rec *Record) (string, error) {
	if rec == nil {
		return "", errors.New("groundtruth: nil record")
	}
	if !rec.Metadata.UseCase.Valid() {
		return "", fmt.Errorf("groundtruth: invalid use case %q", rec.Metadata.UseCase)
	}
	src := strings.TrimSpace(rec.Metadata.SourceFile)
	if src == "" {
		return "", errors.New("groundtruth: record has no source file")
	}

	base := filepath.Base(src)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s.%s.groundtruth.json", base, rec.Metadata.UseCase), nil
}

// Write persists the record. Records are immutable: an existing file
// causes ErrExists unless force is set.
func (s *Store) Write(rec *Record, force bool) (string, error) {
	if s == nil {
		return "", errors.New("groundtruth: nil store")
	}

	name, err := Filename(rec)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name)

	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("%w: %s", ErrExists, path)
		}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("groundtruth: create dir: %w", err)
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("groundtruth: marshal record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".groundtruth-*")
	if err != nil {
		return "", fmt.Errorf("groundtruth: temp file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("groundtruth: write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("groundtruth: close record: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("groundtruth: rename record: %w", err)
	}

	return path, nil
}

// Load reads a single record file.
func Load(path string) (*Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("groundtruth: read %q: %w", path, err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("groundtruth: parse %q: %w", path, err)
	}
	return &rec, nil
}

// List returns the ground-truth filenames in the store directory, sorted.
// A missing directory yields an empty list.
func (s *Store) List() ([]string, error) {
	if s == nil {
		return nil, errors.New("groundtruth: nil store")
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("groundtruth: list %q: %w", s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".groundtruth.json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Find locates the record file for a given base name and use case.
func (s *Store) Find(base string, useCase UseCase) (string, error) {
	names, err := s.List()
	if err != nil {
		return "", err
	}
	for _, name := range names {
		id := artifact.DeriveID(name, artifact.KindGroundTruth)
		if id.Base == base && (useCase == "" || string(useCase) == id.UseCase) {
			return filepath.Join(s.dir, name), nil
		}
	}
	return "", fmt.Errorf("groundtruth: no record for %q", base)
}
