// Package api serves speculative generations over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/speculate/internal/logger"
	"github.com/samcharles93/speculate/internal/speculative"
	"github.com/samcharles93/speculate/internal/version"
)

type Server struct {
	store  *GenerationStore
	engine Generator
	log    logger.Logger
	clock  func() time.Time
}

func NewServer(store *GenerationStore, engine Generator, log logger.Logger) *Server {
	if store == nil {
		store = NewGenerationStore()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		store:  store,
		engine: engine,
		log:    log,
		clock:  time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/health", s.handleHealth)
	e.POST("/v1/generate", s.handleGenerate)
	e.GET("/v1/generations/:id", s.handleGetGeneration)
	e.DELETE("/v1/generations/:id", s.handleDeleteGeneration)
}

func (s *Server) handleHealth(c *echo.Context) error {
	resp := HealthResponse{Status: "ok", Version: version.String()}
	if eng, ok := s.engine.(*Engine); ok {
		resp.Verifier, resp.Draft = eng.Models()
		resp.Busy = eng.Busy()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGenerate(c *echo.Context) error {
	if s.engine == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "engine not configured", "")
	}
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err)
	}
	if err := validateGenerateRequest(req); err != nil {
		return writeBadRequest(c, err)
	}
	opts := Options{Prompt: req.Prompt}
	if req.MaxTokens != nil {
		opts.MaxTokens = *req.MaxTokens
	}
	if req.InitialK != nil {
		opts.InitialK = *req.InitialK
	}

	var writer *SSEStreamWriter
	if req.Stream != nil && *req.Stream {
		w, err := NewSSEStreamWriter(c)
		if err != nil {
			return writeBadRequest(c, err)
		}
		writer = w
	}

	gen := s.store.Create(req.Prompt, s.clock())
	log := s.log.With("generation", gen.ID)
	ctx := logger.WithContext(c.Request().Context(), log)

	// The event stream opens with the first delta, so a request the engine
	// rejects outright still gets a plain JSON status.
	var stream speculative.StreamFunc
	if writer != nil {
		stream = func(delta string) {
			if !writer.Started() {
				if err := writer.Begin(gen); err != nil {
					log.Warn("stream write failed", "error", err)
					return
				}
			}
			if err := writer.EmitDelta(delta); err != nil {
				log.Warn("stream write failed", "error", err)
			}
		}
	}

	result, genErr := s.engine.Generate(ctx, opts, stream)
	gen = s.finish(gen, result, genErr)
	rejected := errors.Is(genErr, ErrEngineBusy) || errors.Is(genErr, ErrInvalidRequest) || errors.Is(genErr, speculative.ErrTokenization)
	if rejected {
		s.store.Delete(gen.ID)
	} else {
		s.store.Save(gen)
	}

	if writer != nil && (writer.Started() || !rejected) {
		if !writer.Started() {
			if err := writer.Begin(gen); err != nil {
				return err
			}
		}
		if genErr != nil {
			return writer.Failed(gen)
		}
		return writer.Complete(gen)
	}

	switch {
	case genErr == nil:
		return c.JSON(http.StatusOK, gen)
	case errors.Is(genErr, ErrEngineBusy):
		return writeError(c, http.StatusConflict, "engine_busy", "another generation is running", "engine_busy")
	case errors.Is(genErr, ErrInvalidRequest), errors.Is(genErr, speculative.ErrTokenization):
		return writeBadRequest(c, genErr)
	case errors.Is(genErr, context.Canceled), errors.Is(genErr, context.DeadlineExceeded):
		return c.JSON(http.StatusOK, gen)
	default:
		log.Error("generation failed", "error", genErr)
		return c.JSON(http.StatusInternalServerError, gen)
	}
}

// finish folds the session outcome into the stored record. A failed session
// still carries the prefix that was committed before the error.
func (s *Server) finish(gen Generation, result *speculative.Result, err error) Generation {
	now := s.clock().Unix()
	gen.CompletedAt = &now
	if result != nil {
		gen.Text = result.Text
		gen.Tokens = append([]uint32(nil), result.Generated...)
		gen.Stats = toStats(result.Stats)
	}
	switch {
	case err == nil:
		gen.Status = StatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		gen.Status = StatusCancelled
		gen.Error = &ErrorBody{Message: err.Error(), Type: "cancelled"}
	default:
		gen.Status = StatusFailed
		gen.Error = &ErrorBody{Message: err.Error(), Type: errorType(err)}
	}
	return gen
}

func errorType(err error) string {
	switch {
	case errors.Is(err, ErrEngineBusy):
		return "engine_busy"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, speculative.ErrTokenization):
		return "invalid_request_error"
	case errors.Is(err, speculative.ErrModelForward):
		return "model_error"
	default:
		return "server_error"
	}
}

func validateGenerateRequest(req GenerateRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return badParam("prompt", "is required")
	}
	if req.MaxTokens != nil && *req.MaxTokens < 1 {
		return badParam("max_tokens", "must be at least 1")
	}
	if req.InitialK != nil && *req.InitialK < 1 {
		return badParam("initial_k", "must be at least 1")
	}
	return nil
}

func (s *Server) handleGetGeneration(c *echo.Context) error {
	gen, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "generation not found")
	}
	return c.JSON(http.StatusOK, gen)
}

func (s *Server) handleDeleteGeneration(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "generation not found")
	}
	return c.JSON(http.StatusOK, DeleteGenerationResp{
		ID:      id,
		Object:  "generation",
		Deleted: true,
	})
}
