package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stellarlinkco/model-eval/internal/artifact"
	"github.com/stellarlinkco/model-eval/internal/evaluation"
	"github.com/stellarlinkco/model-eval/internal/store"
)

// fileEntry describes one artifact file in a listing response.
type fileEntry struct {
	Filename   string `json:"filename"`
	Base       string `json:"base"`
	UseCase    string `json:"use_case,omitempty"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

type historyRun struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind"`
	Name         string  `json:"name"`
	ArtifactPath string  `json:"artifact_path,omitempty"`
	Model        string  `json:"model,omitempty"`
	Provider     string  `json:"provider,omitempty"`
	PassRate     float64 `json:"pass_rate"`
	QualityScore float64 `json:"quality_score"`
	TotalCost    float64 `json:"total_cost"`
	CreatedAt    string  `json:"created_at"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListFiles reports the experiment and evaluation artifacts currently
// on disk. Directories are re-read on every call so freshly written files
// show up without a restart.
func (s *Server) handleListFiles(c *gin.Context) {
	experiments, err := listArtifacts(s.config.Paths.ExperimentsDir, artifact.KindExperiment, ".experiment.json")
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list experiments", err)
		return
	}
	evaluations, err := listArtifacts(s.config.Paths.EvaluationsDir, artifact.KindEvaluation, ".eval.json")
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list evaluations", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"experiments": experiments,
		"evaluations": evaluations,
	})
}

func (s *Server) handleGetExperiment(c *gin.Context) {
	s.serveArtifact(c, s.config.Paths.ExperimentsDir, c.Param("filename"))
}

func (s *Server) handleGetEvaluation(c *gin.Context) {
	s.serveArtifact(c, s.config.Paths.EvaluationsDir, c.Param("filename"))
}

// handleTestData serves raw source documents grouped by type directory. The
// reserved filename "metadata" lists the directory instead.
func (s *Server) handleTestData(c *gin.Context) {
	dataType := c.Param("type")
	filename := c.Param("filename")

	if err := validateArtifactName(dataType); err != nil {
		respondError(c, http.StatusBadRequest, "invalid test data type", err)
		return
	}
	dir := filepath.Join(s.config.Paths.TestDataDir, dataType)

	if filename == "metadata" {
		entries, err := listArtifacts(dir, artifact.KindTestData)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "failed to list test data", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"type": dataType, "files": entries})
		return
	}

	if err := validateArtifactName(filename); err != nil {
		respondError(c, http.StatusBadRequest, "invalid filename", err)
		return
	}
	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			respondError(c, http.StatusNotFound, "test data file not found", err)
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to read test data file", err)
		return
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		if !json.Valid(data) {
			respondError(c, http.StatusInternalServerError, "malformed test data file",
				fmt.Errorf("%s is not valid JSON", filename))
			return
		}
		c.Data(http.StatusOK, "application/json", data)
	case ".html":
		c.Data(http.StatusOK, "text/html; charset=utf-8", data)
	default:
		c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
	}
}

func (s *Server) handleListGroundTruth(c *gin.Context) {
	entries, err := listArtifacts(s.config.Paths.GroundTruthDir, artifact.KindGroundTruth, ".groundtruth.json")
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list ground truth", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": entries})
}

func (s *Server) handleGetGroundTruth(c *gin.Context) {
	s.serveArtifact(c, s.config.Paths.GroundTruthDir, c.Param("filename"))
}

// handleReport joins an experiment with its evaluation in one response. When
// the evaluation filename is omitted it is derived from the experiment
// filename; a derived evaluation that does not exist yet is returned as null
// rather than failing the whole report.
func (s *Server) handleReport(c *gin.Context) {
	experimentFile := c.Param("experimentFile")
	evaluationFile := c.Param("evaluationFile")

	expData, ok := s.readArtifact(c, s.config.Paths.ExperimentsDir, experimentFile, "experiment")
	if !ok {
		return
	}

	var evalRaw json.RawMessage
	if evaluationFile != "" {
		data, ok := s.readArtifact(c, s.config.Paths.EvaluationsDir, evaluationFile, "evaluation")
		if !ok {
			return
		}
		evalRaw = data
	} else {
		derived := evaluation.EvalPath(s.config.Paths.EvaluationsDir, experimentFile)
		data, err := os.ReadFile(derived)
		switch {
		case err == nil:
			if !json.Valid(data) {
				respondError(c, http.StatusInternalServerError, "malformed evaluation file",
					fmt.Errorf("%s is not valid JSON", filepath.Base(derived)))
				return
			}
			evalRaw = data
		case os.IsNotExist(err):
			// No evaluation yet.
		default:
			respondError(c, http.StatusInternalServerError, "failed to read evaluation file", err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"experiment": json.RawMessage(expData),
		"evaluation": evalRaw,
		"combined":   true,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.store == nil {
		respondError(c, http.StatusServiceUnavailable, "history unavailable",
			fmt.Errorf("no run store configured"))
		return
	}

	limit, err := parseLimitParam(c.Query("limit"), 0)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid limit", err)
		return
	}
	filter := store.Filter{
		Kind:  store.RunKind(strings.TrimSpace(c.Query("kind"))),
		Model: strings.TrimSpace(c.Query("model")),
		Limit: limit,
	}

	runs, err := s.store.ListRuns(filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list runs", err)
		return
	}

	out := make([]historyRun, 0, len(runs))
	for _, r := range runs {
		out = append(out, historyRun{
			ID:           r.ID,
			Kind:         string(r.Kind),
			Name:         r.Name,
			ArtifactPath: r.ArtifactPath,
			Model:        r.Model,
			Provider:     r.Provider,
			PassRate:     r.PassRate,
			QualityScore: r.QualityScore,
			TotalCost:    r.TotalCost,
			CreatedAt:    r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

// serveArtifact writes the raw bytes of a stored JSON artifact. The content
// is validated but never re-encoded, so clients see exactly what is on disk.
func (s *Server) serveArtifact(c *gin.Context, dir, filename string) {
	data, ok := s.readArtifact(c, dir, filename, "file")
	if !ok {
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// readArtifact loads and validates one JSON artifact, writing the error
// response itself on failure. The boolean reports whether data is usable.
func (s *Server) readArtifact(c *gin.Context, dir, filename, label string) ([]byte, bool) {
	if err := validateArtifactName(filename); err != nil {
		respondError(c, http.StatusBadRequest, "invalid filename", err)
		return nil, false
	}

	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			respondError(c, http.StatusNotFound, label+" not found", err)
			return nil, false
		}
		respondError(c, http.StatusInternalServerError, "failed to read "+label, err)
		return nil, false
	}
	if !json.Valid(data) {
		respondError(c, http.StatusInternalServerError, "malformed "+label,
			fmt.Errorf("%s is not valid JSON", filename))
		return nil, false
	}
	return data, true
}

// listArtifacts reads a directory and describes every regular file whose
// name ends in one of the given suffixes (any file when none are given).
// A missing directory is an empty listing, not an error.
func listArtifacts(dir string, kind artifact.Kind, suffixes ...string) ([]fileEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []fileEntry{}, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	out := make([]fileEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if len(suffixes) > 0 {
			matched := false
			for _, suffix := range suffixes {
				if strings.HasSuffix(name, suffix) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		id := artifact.DeriveID(name, kind)
		out = append(out, fileEntry{
			Filename:   name,
			Base:       id.Base,
			UseCase:    id.UseCase,
			Size:       info.Size(),
			ModifiedAt: info.ModTime().UTC().Format(time.RFC3339),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// validateArtifactName rejects names that could escape the serving
// directory.
func validateArtifactName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("empty filename")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.Contains(name, "..") {
		return fmt.Errorf("invalid filename %q", name)
	}
	return nil
}

func respondError(c *gin.Context, status int, msg string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	c.JSON(status, gin.H{"error": msg, "details": details})
}

func parseLimitParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if v <= 0 {
		return 0, fmt.Errorf("limit must be > 0")
	}
	return v, nil
}
