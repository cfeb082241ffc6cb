package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/GriffinCanCode/sitepack/internal/api/middleware"
	"github.com/GriffinCanCode/sitepack/internal/domain/auth"
	"github.com/GriffinCanCode/sitepack/internal/domain/mirror"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Downloader runs the download pipeline
type Downloader interface {
	Download(ctx context.Context, req mirror.Request, resp mirror.Responder) (*mirror.Job, error)
	Active() []mirror.Snapshot
}

// Authenticator issues and revokes sessions
type Authenticator interface {
	Login(username, password string) (*auth.Session, error)
	Logout(token string) bool
}

// Handlers contains all HTTP handlers
type Handlers struct {
	downloader Downloader
	auth       Authenticator
	logger     *zap.Logger
	started    time.Time
}

// NewHandlers creates a new handler set. authenticator may be nil when
// authentication is disabled.
func NewHandlers(downloader Downloader, authenticator Authenticator, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		downloader: downloader,
		auth:       authenticator,
		logger:     logger,
		started:    time.Now(),
	}
}

// DownloadRequest is the body of POST /download
type DownloadRequest struct {
	URL string `json:"url"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Root serves the download form
func (h *Handlers) Root(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

// Health reports liveness and the jobs currently running
func (h *Handlers) Health(c *gin.Context) {
	active := h.downloader.Active()
	if active == nil {
		active = []mirror.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"version":      Version,
		"uptime":       time.Since(h.started).Round(time.Second).String(),
		"auth_enabled": h.auth != nil,
		"active_jobs":  active,
	})
}

// Download mirrors the submitted URL and responds with the ZIP archive
func (h *Handlers) Download(c *gin.Context) {
	var req DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	resp := &ginResponder{c: c}
	job, err := h.downloader.Download(c.Request.Context(), mirror.Request{
		URL:       req.URL,
		UserAgent: c.Request.UserAgent(),
	}, resp)
	if err == nil {
		return
	}
	c.Error(err)

	if c.Writer.Written() {
		// Part of the archive is already on the wire; a clean close would
		// look like a complete download.
		fields := []zap.Field{zap.Error(err)}
		if job != nil {
			fields = append(fields, zap.String("job_id", job.ID.String()))
		}
		h.logger.Error("aborting partially sent archive", fields...)
		panic(http.ErrAbortHandler)
	}

	resp.reset()
	status := http.StatusInternalServerError
	message := "download failed: " + err.Error()

	var perr *mirror.Error
	if errors.As(err, &perr) {
		message = perr.Message()
		if perr.Kind == mirror.InvalidRequest {
			status = http.StatusBadRequest
		}
	}
	c.JSON(status, gin.H{"message": message})
}

// Login exchanges credentials for a bearer token
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	session, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "login failed"})
		return
	}

	h.logger.Info("session issued",
		zap.String("username", session.Username),
		zap.String("session_id", session.ID.String()),
	)
	c.JSON(http.StatusOK, gin.H{
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}

// Logout revokes the caller's bearer token
func (h *Handlers) Logout(c *gin.Context) {
	token := middleware.BearerToken(c)
	c.JSON(http.StatusOK, gin.H{"logged_out": token != "" && h.auth.Logout(token)})
}
