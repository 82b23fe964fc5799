package experiment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/stellarlinkco/model-eval/internal/groundtruth"
)

// transcriptPreview limits how much source text is echoed into result
// artifacts.
const transcriptPreview = 500

// Item is one unit of work for a single experiment configuration.
type Item struct {
	Type        string // "qa", "qa_raw", "summarization"
	Query       string
	GroundTruth string
	Transcript  string
	SourceFile  string
	Queries     []string

	Summaries *groundtruth.Summaries // reference summaries, when known
}

// Source resolves the dataset in the shape each experiment type needs.
// The same input yields different items for qa and summarization runs,
// so a mixed batch cannot share one item list; items are loaded lazily
// and cached per type instead.
type Source struct {
	load func(Type) ([]Item, error)

	mu    sync.Mutex
	cache map[Type][]Item
}

// NewSource builds a Source over an input path: a ground-truth file, a
// raw document or a directory of documents. queriesSource optionally
// names a ground-truth file whose questions drive QA runs on raw
// documents.
func NewSource(inputPath, queriesSource string) *Source {
	return &Source{load: func(t Type) ([]Item, error) {
		return LoadData(inputPath, t, queriesSource)
	}}
}

// StaticSource serves the same fixed items for every experiment type.
func StaticSource(items []Item) *Source {
	return &Source{load: func(Type) ([]Item, error) { return items, nil }}
}

// Items returns the dataset for one experiment type, loading it on
// first use.
func (s *Source) Items(t Type) ([]Item, error) {
	if s == nil || s.load == nil {
		return nil, errors.New("experiment: nil dataset source")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if items, ok := s.cache[t]; ok {
		return items, nil
	}
	items, err := s.load(t)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("experiment: empty dataset for type %q", t)
	}
	if s.cache == nil {
		s.cache = make(map[Type][]Item)
	}
	s.cache[t] = items
	return items, nil
}

// LoadData builds the dataset for an experiment type from a ground-truth
// file, a raw document file, or a directory of documents. For QA runs on
// raw documents, queriesSource optionally names a ground-truth file whose
// questions drive the run; otherwise the default question set is used.
func LoadData(inputPath string, expType Type, queriesSource string) ([]Item, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("experiment: input %q: %w", inputPath, err)
	}

	if info.IsDir() {
		return loadFromDirectory(inputPath, expType, queriesSource)
	}
	if strings.HasSuffix(inputPath, ".json") {
		return loadFromGroundTruth(inputPath, expType)
	}
	return loadFromDocument(inputPath, expType, queriesSource)
}

func loadFromGroundTruth(path string, expType Type) ([]Item, error) {
	rec, err := groundtruth.Load(path)
	if err != nil {
		return nil, err
	}

	switch expType {
	case TypeQA:
		if len(rec.Analysis.QAPairs) == 0 {
			return nil, fmt.Errorf("experiment: no qa pairs in ground truth %q", path)
		}
		items := make([]Item, 0, len(rec.Analysis.QAPairs))
		for _, p := range rec.Analysis.QAPairs {
			items = append(items, Item{
				Type:        "qa",
				Query:       p.Query,
				GroundTruth: p.Response,
			})
		}
		return items, nil

	case TypeSummarization:
		if rec.Analysis.Summaries == nil {
			return nil, fmt.Errorf("experiment: no summaries in ground truth %q", path)
		}
		src := strings.TrimSpace(rec.Metadata.SourceFile)
		if src == "" {
			return nil, fmt.Errorf("experiment: ground truth %q names no source file", path)
		}
		b, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("experiment: source document %q: %w", src, err)
		}
		text := strings.TrimSpace(string(b))
		if text == "" {
			return nil, fmt.Errorf("experiment: empty source document %q", src)
		}
		return []Item{{
			Type:       "summarization",
			Transcript: text,
			SourceFile: src,
			Summaries:  rec.Analysis.Summaries,
		}}, nil
	}

	return nil, fmt.Errorf("experiment: unsupported experiment type %q", expType)
}

func loadFromDocument(path string, expType Type, queriesSource string) ([]Item, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("experiment: document %q: %w", path, err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return nil, fmt.Errorf("experiment: empty document %q", path)
	}

	switch expType {
	case TypeQA:
		var queries []string
		if strings.TrimSpace(queriesSource) != "" {
			rec, err := groundtruth.Load(queriesSource)
			if err != nil {
				return nil, err
			}
			queries = groundtruth.Queries(rec)
			if len(queries) == 0 {
				return nil, fmt.Errorf("experiment: no queries in %q", queriesSource)
			}
		} else {
			queries = groundtruth.DefaultQueries()
		}
		return []Item{{
			Type:       "qa_raw",
			Transcript: text,
			SourceFile: path,
			Queries:    queries,
		}}, nil

	case TypeSummarization:
		return []Item{{
			Type:       "summarization",
			Transcript: text,
			SourceFile: path,
		}}, nil
	}

	return nil, fmt.Errorf("experiment: unsupported experiment type %q", expType)
}

func loadFromDirectory(dir string, expType Type, queriesSource string) ([]Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("experiment: directory %q: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".txt") || strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("experiment: no document files in %q", dir)
	}
	sort.Strings(names)

	var items []Item
	for _, name := range names {
		fileItems, err := loadFromDocument(filepath.Join(dir, name), expType, queriesSource)
		if err != nil {
			return nil, err
		}
		items = append(items, fileItems...)
	}
	return items, nil
}

func preview(text string) string {
	if len(text) > transcriptPreview {
		return text[:transcriptPreview] + "..."
	}
	return text
}
