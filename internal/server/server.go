package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ragd/internal/contextbuilder"
	"ragd/internal/domain"
	"ragd/internal/promptbuilder"
	"ragd/internal/retriever"
	"ragd/internal/service"
)

// Metadata headers for streaming responses; they are final before the first
// body byte.
const (
	HeaderSources    = "X-RAG-Sources"
	HeaderChunks     = "X-RAG-Chunks"
	HeaderConfidence = "X-RAG-Confidence"
)

// Server exposes the pipeline over HTTP. Debug gates diagnostic detail in
// error responses.
type Server struct {
	svc    *service.Service
	logger *logrus.Logger
	debug  bool
}

func New(svc *service.Service, logger *logrus.Logger, debug bool) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{svc: svc, logger: logger, debug: debug}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	if !s.debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.POST("/query", s.handleQuery)
	api.POST("/ingest", s.handleIngest)
	r.GET("/health", s.handleHealth)
	return r
}

type queryOptions struct {
	K                 int      `json:"k"`
	IncludeCitation   bool     `json:"includeSourceCitation"`
	ResponseStyle     string   `json:"responseStyle"`
	FilterBySource    []string `json:"filterBySource"`
	Stream            bool     `json:"stream"`
	Temperature       float64  `json:"temperature"`
	MaxTokens         int      `json:"maxTokens"`
	RetrievalStrategy string   `json:"retrievalStrategy"`
	ContextStrategy   string   `json:"contextStrategy"`
	Rerank            bool     `json:"rerank"`
}

type queryRequest struct {
	Question            string                    `json:"question"`
	Options             queryOptions              `json:"options"`
	ConversationHistory []domain.ConversationTurn `json:"conversationHistory"`
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.clientError(c, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.clientError(c, domain.ErrEmptyQuestion)
		return
	}

	opts := service.QueryOptions{
		K:              req.Options.K,
		FilterBySource: req.Options.FilterBySource,
		Strategy:       retriever.Strategy(req.Options.RetrievalStrategy),
		Rerank:         req.Options.Rerank,
		ContextLayout:  contextbuilder.Layout(req.Options.ContextStrategy),
		Style:          promptbuilder.Style(req.Options.ResponseStyle),
		Citations:      req.Options.IncludeCitation,
		Temperature:    req.Options.Temperature,
		MaxTokens:      req.Options.MaxTokens,
	}

	if req.Options.Stream {
		s.streamQuery(c, req.Question, opts)
		return
	}

	var (
		result domain.AnswerResult
		err    error
	)
	if len(req.ConversationHistory) > 0 {
		result, err = s.svc.AnswerWithHistory(c.Request.Context(), req.Question, req.ConversationHistory, opts)
	} else {
		result, err = s.svc.Answer(c.Request.Context(), req.Question, opts)
	}
	if err != nil {
		s.queryError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) streamQuery(c *gin.Context, question string, opts service.QueryOptions) {
	stream, err := s.svc.AnswerStream(c.Request.Context(), question, opts)
	if err != nil {
		s.queryError(c, err)
		return
	}

	c.Header(HeaderSources, strings.Join(stream.Sources, ","))
	c.Header(HeaderChunks, fmt.Sprintf("%d", stream.ChunkCount))
	c.Header(HeaderConfidence, fmt.Sprintf("%.4f", stream.Confidence))
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	for token := range stream.Content {
		if _, err := c.Writer.WriteString(token); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if err := <-stream.Err; err != nil {
		// Headers are gone; the best we can do is log and cut the body.
		s.logger.WithError(err).Error("stream generation failed")
	}
}

type ingestRequest struct {
	Documents []struct {
		Content string `json:"content"`
		Source  string `json:"source"`
	} `json:"documents"`
}

func (s *Server) handleIngest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.clientError(c, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.Documents) == 0 {
		s.clientError(c, fmt.Errorf("documents must not be empty"))
		return
	}

	docs := make([]domain.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, domain.Document{
			Content:  d.Content,
			Metadata: domain.Metadata{Source: d.Source},
		})
	}

	result, err := s.svc.Ingest(c.Request.Context(), docs, nil)
	if err != nil {
		s.queryError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleHealth(c *gin.Context) {
	h := s.svc.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if !h.OK() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

func (s *Server) clientError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// queryError maps pipeline failures: validation trips 400, external-service
// failures trip 502 with detail only in debug mode.
func (s *Server) queryError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrEmptyQuestion) {
		s.clientError(c, err)
		return
	}
	s.logger.WithError(err).Error("query failed")

	body := gin.H{"error": "failed to process query"}
	if s.debug {
		body["detail"] = err.Error()
	}
	c.JSON(http.StatusBadGateway, body)
}
