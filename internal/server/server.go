// Package server exposes the decision service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gzhole/agentlock/internal/decision"
	"github.com/gzhole/agentlock/internal/logger"
	"github.com/gzhole/agentlock/internal/policy"
	"github.com/gzhole/agentlock/internal/proposer"
	"github.com/gzhole/agentlock/internal/state"
	"github.com/gzhole/agentlock/internal/trust"
)

var log = logger.New("server")

// StateReader is the read side of the state store used by inspection routes.
type StateReader interface {
	LookupAsset(target string) state.Asset
	TrustScore(source string) float64
	Snapshot() state.Snapshot
}

// Server handles decision, feedback and inspection requests.
type Server struct {
	svc    *decision.Service
	state  StateReader
	router *gin.Engine
}

// New builds the router. maxBody <= 0 uses MaxBodySize.
func New(svc *decision.Service, st StateReader, maxBody int64) *Server {
	if maxBody <= 0 {
		maxBody = MaxBodySize
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(SecurityHeadersMiddleware())
	router.Use(BodySizeLimitMiddleware(maxBody))

	s := &Server{svc: svc, state: st, router: router}
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	v1 := s.router.Group("/v1")
	{
		v1.POST("/decide", s.handleDecide)
		v1.POST("/feedback", s.handleFeedback)
		v1.GET("/trust/:source", s.handleTrust)
		v1.GET("/assets/:id", s.handleAsset)
		v1.GET("/state", s.handleState)
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func errorJSON(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"guards": s.svc.Engine().Guards(),
	})
}

// handleDecide handles POST /v1/decide.
func (s *Server) handleDecide(c *gin.Context) {
	var rec proposer.LogRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid log record: "+err.Error())
		return
	}

	resp, err := s.svc.Decide(c.Request.Context(), rec)
	if err != nil {
		var ee *policy.EvalError
		if errors.As(err, &ee) {
			// only the guard name leaves the process
			errorJSON(c, http.StatusInternalServerError, ee.Error())
			return
		}
		log.WithError(err).Error("decision failed")
		errorJSON(c, http.StatusInternalServerError, "decision failed")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// FeedbackRequest reports the real-world outcome of an executed action.
type FeedbackRequest struct {
	Sources []string `json:"sources" binding:"required,min=1,dive,required"`
	Outcome string   `json:"outcome" binding:"required"`
	Eta     *float64 `json:"eta"`
}

// handleFeedback handles POST /v1/feedback.
func (s *Server) handleFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid feedback: "+err.Error())
		return
	}
	outcome, err := trust.ParseOutcome(req.Outcome)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	scores, err := s.svc.Feedback(req.Sources, outcome, req.Eta)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome, "trust": scores})
}

func (s *Server) handleTrust(c *gin.Context) {
	source := c.Param("source")
	c.JSON(http.StatusOK, gin.H{
		"source": source,
		"score":  s.state.TrustScore(source),
	})
}

func (s *Server) handleAsset(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.LookupAsset(c.Param("id")))
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Snapshot())
}
