package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/threadsense/internal/analyzer"
	"github.com/ibeckermayer/threadsense/internal/app"
	"github.com/ibeckermayer/threadsense/internal/auth"
	"github.com/ibeckermayer/threadsense/internal/insights"
	"github.com/ibeckermayer/threadsense/internal/report"
	"github.com/ibeckermayer/threadsense/internal/scraper"
	"github.com/ibeckermayer/threadsense/internal/store"
	"github.com/ibeckermayer/threadsense/internal/types"
)

// Service is what the HTTP API needs from the application
type Service interface {
	ScrapePost(ctx context.Context, req scraper.Request) (*types.ScrapeResult, error)
	Classify(ctx context.Context, text string) (types.Sentiment, error)
	AnalyzePost(ctx context.Context, req scraper.Request) (*app.Analysis, error)
	Summarize(ctx context.Context, dist types.Distribution, comments []types.CommentSentiment) (string, error)
	Report(an *app.Analysis, summary string) (*report.Report, error)
	ListScrapes(limit int) ([]store.Scrape, error)
	GetScrape(id string) (*store.Scrape, error)
	Status(ctx context.Context) app.Status
}

// Server is the HTTP API
type Server struct {
	svc Service
	log logrus.FieldLogger
}

// New creates a new API server
func New(svc Service, log logrus.FieldLogger) *Server {
	return &Server{
		svc: svc,
		log: log.WithField("component", "http"),
	}
}

// SetupRouter configures the Gin router with all API routes.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), s.accessLog(), cors())

	router.GET("/", s.HandleStatus)
	router.GET("/health", s.HandleHealth)

	router.POST("/scrape-facebook-post", s.HandleScrape)
	router.POST("/predict", s.HandlePredict)
	router.POST("/analyze-facebook-comments", s.HandleAnalyze)
	router.POST("/insights", s.HandleInsights)

	router.GET("/scrapes", s.HandleListScrapes)
	router.GET("/scrapes/:id", s.HandleGetScrape)

	return router
}

// PostRequest is the body of the scrape and analyze endpoints
type PostRequest struct {
	PostURL  string `json:"post_url" binding:"required"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

func (r PostRequest) toScrape() scraper.Request {
	return scraper.Request{
		PostURL:     r.PostURL,
		Credentials: auth.Credentials{Email: r.Email, Password: r.Password},
	}
}

// PredictRequest is the body of POST /predict
type PredictRequest struct {
	Text string `json:"text"`
}

// InsightsRequest is the body of POST /insights
type InsightsRequest struct {
	Distribution types.Distribution       `json:"distribution"`
	Comments     []types.CommentSentiment `json:"comments"`
}

// InsightsResponse is the result of POST /insights
type InsightsResponse struct {
	Text string `json:"text"`
}

// ErrorResponse is returned on every failure
type ErrorResponse struct {
	Error string `json:"error"`
	// Partial holds what a failed scrape collected before it stopped
	Partial *types.ScrapeResult `json:"partial,omitempty"`
}

// handleError maps domain errors to HTTP responses.
func (s *Server) handleError(c *gin.Context, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var scrapeErr *scraper.ScrapeError
	if errors.As(err, &scrapeErr) {
		resp.Partial = scrapeErr.Partial
	}

	entry := s.log.WithError(err).WithFields(logrus.Fields{
		"request_id": c.GetString(requestIDKey),
		"status":     status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}

	c.JSON(status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, scraper.ErrInvalidURL),
		errors.Is(err, analyzer.ErrEmptyText),
		errors.Is(err, insights.ErrNoComments):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, app.ErrArchiveDisabled):
		return http.StatusNotFound
	case errors.Is(err, analyzer.ErrClassification),
		errors.Is(err, app.ErrInsightsDisabled):
		return http.StatusServiceUnavailable
	default:
		// includes missing credentials, navigation and session failures
		return http.StatusInternalServerError
	}
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.log.WithError(err).WithField("request_id", c.GetString(requestIDKey)).Warn("malformed request")
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

// HandleStatus handles GET /
func (s *Server) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Status(c.Request.Context()))
}

// HandleHealth handles GET /health
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// HandleScrape handles POST /scrape-facebook-post
func (s *Server) HandleScrape(c *gin.Context) {
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	result, err := s.svc.ScrapePost(c.Request.Context(), req.toScrape())
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandlePredict handles POST /predict
func (s *Server) HandlePredict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	sentiment, err := s.svc.Classify(c.Request.Context(), req.Text)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, sentiment)
}

// HandleAnalyze handles POST /analyze-facebook-comments. ?format=html or
// ?format=text render a report instead of JSON.
func (s *Server) HandleAnalyze(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	switch format {
	case "json", "html", "text":
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown format " + strconv.Quote(format)})
		return
	}

	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	an, err := s.svc.AnalyzePost(c.Request.Context(), req.toScrape())
	if err != nil {
		s.handleError(c, err)
		return
	}

	if format == "json" {
		c.JSON(http.StatusOK, an.Comments)
		return
	}

	r, err := s.svc.Report(an, "")
	if err != nil {
		s.handleError(c, err)
		return
	}
	if format == "html" {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(r.HTMLBody))
		return
	}
	c.String(http.StatusOK, r.PlainBody)
}

// HandleInsights handles POST /insights
func (s *Server) HandleInsights(c *gin.Context) {
	var req InsightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	text, err := s.svc.Summarize(c.Request.Context(), req.Distribution, req.Comments)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, InsightsResponse{Text: text})
}

// ListScrapesResponse is the result of GET /scrapes
type ListScrapesResponse struct {
	Scrapes []store.Scrape `json:"scrapes"`
	Total   int            `json:"total"`
}

// HandleListScrapes handles GET /scrapes
func (s *Server) HandleListScrapes(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	scrapes, err := s.svc.ListScrapes(limit)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if scrapes == nil {
		scrapes = []store.Scrape{}
	}

	c.JSON(http.StatusOK, ListScrapesResponse{Scrapes: scrapes, Total: len(scrapes)})
}

// HandleGetScrape handles GET /scrapes/:id
func (s *Server) HandleGetScrape(c *gin.Context) {
	sc, err := s.svc.GetScrape(c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

const requestIDKey = "request_id"

// requestID tags each request with an id, reusing the caller's
// X-Request-ID when present
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).Round(time.Millisecond),
			"client_ip":  c.ClientIP(),
		}).Info("request")
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
