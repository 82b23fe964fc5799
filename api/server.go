package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stellarlinkco/model-eval/internal/config"
	"github.com/stellarlinkco/model-eval/internal/store"
)

// Server exposes pipeline artifacts over a read-only HTTP API. It never
// mutates the output directories it serves.
type Server struct {
	router *gin.Engine
	config *config.Config
	store  store.Store
}

func NewServer(cfg *config.Config, st store.Store) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	r := gin.New()
	s := &Server{
		router: r,
		config: cfg,
		store:  st,
	}
	s.registerMiddleware()
	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	s.registerStatic()
	return s, nil
}

func (s *Server) Run(addr string) error {
	if s == nil || s.router == nil {
		return errors.New("api: nil server")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = ":8080"
	}
	return s.router.Run(addr)
}
