package api

import (
	"errors"
	"os"
	"strings"
)

func (s *Server) registerRoutes() error {
	if s == nil || s.router == nil {
		return nil
	}

	api := s.router.Group("/api")
	apiKey := strings.TrimSpace(os.Getenv("MODEL_EVAL_API_KEY"))
	if apiKey != "" {
		api.Use(apiKeyAuthMiddleware(apiKey))
	} else if strings.EqualFold(strings.TrimSpace(os.Getenv("MODEL_EVAL_DISABLE_AUTH")), "true") {
		// Explicitly allow unauthenticated access.
	} else {
		return errors.New("api: missing auth configuration: set MODEL_EVAL_API_KEY or set MODEL_EVAL_DISABLE_AUTH=true")
	}

	api.GET("/health", s.handleHealth)

	api.GET("/files", s.handleListFiles)
	api.GET("/experiment/:filename", s.handleGetExperiment)
	api.GET("/evaluation/:filename", s.handleGetEvaluation)

	// "metadata" is resolved inside the handler so the listing route and
	// the file route can share one pattern.
	api.GET("/test-data/:type/:filename", s.handleTestData)

	api.GET("/groundtruth", s.handleListGroundTruth)
	api.GET("/groundtruth/:filename", s.handleGetGroundTruth)

	api.GET("/report/:experimentFile", s.handleReport)
	api.GET("/report/:experimentFile/:evaluationFile", s.handleReport)

	api.GET("/history", s.handleHistory)

	return nil
}
