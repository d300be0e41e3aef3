package newsbot

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginPprof "github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

const (
	pprofPrefix             = "/debug"
	apiPrefix               = "/api"
	apiHealthCheck          = "/healthz"
	apiPathQuit             = "/quit"
	apiPathRegisterCommands = "/discord/register_commands"
	apiPathAnnouncements    = "/announcements"
	apiPathAnnouncement     = "/announcement/:id"
	apiPathSessions         = "/sessions"
	apiPathTemplates        = "/templates"
	apiPathInteractions     = "/interactions"
	apiDiscordInteractions  = "/discord/interactions"
)

const (
	xRequestIDHeader = "X-Request-ID"
	bearerPrefix     = "Bearer "

	defaultPageLimit = 25
)

var (
	Ascending  Sort = "asc"
	Descending Sort = "desc"
)

// API serves the read-only status/audit endpoints, plus a few
// operational actions (quit, register commands)
type API struct {
	config     *APIConfig
	httpServer *http.Server
	listener   net.Listener
	engine     *gin.Engine
	logger     *slog.Logger
	handlers   *APIHandlers
}

// newAPI sets up the gin engine, middleware and routes for the API
func newAPI(b *Bot, config *APIConfig) (*API, error) {
	r := gin.New()

	api := &API{
		config: config,
		engine: r,
		logger: slog.New(newLogHandler(config.LogLevel)).With(loggerNameKey, "api"),
	}
	handlers := &APIHandlers{b: b}
	api.handlers = handlers

	httpServer := &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	if config.SSL.Cert != "" {
		tlsCfg, e := tlsConfig(config.SSL.Cert, config.SSL.Key, config.SSL.TLSMinVersion)
		if e != nil {
			return nil, fmt.Errorf("error loading SSL certs: %w", e)
		}
		httpServer.TLSConfig = tlsCfg
	}
	api.httpServer = httpServer

	if b.config.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
		r.Use(gin.Recovery())
	}
	r.Use(
		requestIDMiddleware(),
		ginLoggingMiddleware(api.logger),
		cors.New(config.CORS.GINConfig()),
	)

	r.GET(apiHealthCheck, handlers.healthCheck)

	if b.config.Development {
		ginPprof.Register(r, pprofPrefix)
	}

	protected := r.Group(apiPrefix)
	protected.Use(bearerAuthMiddleware(config.Secret))

	protected.GET(apiPathAnnouncements, handlers.getAnnouncements)
	protected.GET(apiPathAnnouncement, handlers.getAnnouncement)
	protected.GET(apiPathSessions, handlers.getSessions)
	protected.GET(apiPathTemplates, handlers.getTemplates)
	protected.GET(apiPathInteractions, handlers.getInteractions)
	protected.POST(apiPathRegisterCommands, handlers.discordRegisterCommands)
	protected.POST(apiPathQuit, handlers.botQuit)

	return api, nil
}

func (a *API) Serve(ctx context.Context) error {
	if a.listener == nil {
		listenCfg := &net.ListenConfig{}
		ln, err := listenCfg.Listen(ctx, a.config.ListenNetwork, a.config.Listen)
		if err != nil {
			return fmt.Errorf("error listening on %s: %w", a.config.Listen, err)
		}
		if a.httpServer.TLSConfig != nil {
			ln = tls.NewListener(ln, a.httpServer.TLSConfig)
		} else {
			a.logger.Warn("starting API without TLS")
		}
		a.listener = ln
	}
	a.logger.Info("serving API", "addr", a.listener.Addr().String())
	return a.httpServer.Serve(a.listener)
}

// APIHandlers holds the handlers for each API route
type APIHandlers struct {
	b *Bot
}

type healthCheckResponse struct {
	DiscordGatewayConnected bool      `json:"discord_gateway_connected"`
	OpenSessions            int       `json:"open_sessions"`
	InteractionsInProgress  int64     `json:"interactions_in_progress"`
	Version                 string    `json:"version"`
	StartedAt               time.Time `json:"started_at"`
}

// httpReply represents a standard HTTP response message.
type httpReply struct {
	Message string `json:"message"`
}

// httpError represents an error message returned to the client
type httpError struct {
	Error string `json:"error"`
}

type Sort string

// Pagination represents the pagination parameters for API requests.
type Pagination struct {
	Limit  int  `form:"limit" binding:"omitempty,min=1,max=100"`
	Order  Sort `form:"order" binding:"omitempty,oneof=asc desc"`
	Offset int  `form:"offset" binding:"omitempty,min=0"`
}

func (p *Pagination) setDefaults() {
	if p.Order == "" {
		p.Order = Descending
	}
	if p.Limit == 0 {
		p.Limit = defaultPageLimit
	}
}

func (p Pagination) apply(query *gorm.DB) *gorm.DB {
	query = query.Limit(p.Limit).Offset(p.Offset)
	if p.Order == Ascending {
		return query.Order("created_at asc")
	}
	return query.Order("created_at desc")
}

// GetAnnouncementsQuery represents the query parameters for fetching
// AnnouncementRecord entries.
type GetAnnouncementsQuery struct {
	Pagination
	GuildID        string `form:"guild_id" binding:"omitempty,numeric"`
	OperatorID     string `form:"operator_id" binding:"omitempty,numeric"`
	IncludeDeleted bool   `form:"include_deleted"`
}

// GetInteractionsQuery represents the query parameters for fetching
// InteractionLog entries.
type GetInteractionsQuery struct {
	Pagination
	UserID string `form:"user_id" binding:"omitempty,numeric"`
}

func (h *APIHandlers) healthCheck(c *gin.Context) {
	c.JSON(
		http.StatusOK, healthCheckResponse{
			DiscordGatewayConnected: h.b.discord.connected.Load(),
			OpenSessions:            h.b.sessions.Len(),
			InteractionsInProgress:  h.b.interactionsInProgress.Load(),
			Version:                 Version,
			StartedAt:               h.b.startedAt,
		},
	)
}

// dbReady aborts with a 503 if the database hasn't been opened yet
func (h *APIHandlers) dbReady(c *gin.Context) bool {
	if h.b.db == nil {
		c.AbortWithStatusJSON(
			http.StatusServiceUnavailable,
			httpError{Error: "database not ready"},
		)
		return false
	}
	return true
}

func (h *APIHandlers) getAnnouncements(c *gin.Context) {
	var params GetAnnouncementsQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, httpError{Error: "invalid query"})
		return
	}
	if !h.dbReady(c) {
		return
	}
	params.setDefaults()

	query := h.b.db.WithContext(c.Request.Context()).Model(&AnnouncementRecord{})
	if params.IncludeDeleted {
		query = query.Unscoped()
	}
	if params.GuildID != "" {
		query = query.Where("guild_id = ?", params.GuildID)
	}
	if params.OperatorID != "" {
		query = query.Where("operator_id = ?", params.OperatorID)
	}

	var records []AnnouncementRecord
	if err := params.apply(query).Find(&records).Error; err != nil {
		ginContextLogger(c).ErrorContext(
			c.Request.Context(),
			"error getting announcements",
			tint.Err(err),
		)
		ginReplyError(c, "error getting announcements")
		return
	}
	c.JSON(http.StatusOK, records)
}

// getAnnouncement returns the record for the given announcement message ID
func (h *APIHandlers) getAnnouncement(c *gin.Context) {
	messageID := c.Param("id")
	if !isAllDigits(messageID) {
		c.JSON(http.StatusBadRequest, httpError{Error: "invalid message ID"})
		return
	}
	if !h.dbReady(c) {
		return
	}

	var record AnnouncementRecord
	err := h.b.db.WithContext(c.Request.Context()).Unscoped().Take(
		&record,
		"message_id = ?",
		messageID,
	).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, httpError{Error: "announcement not found"})
			return
		}
		ginContextLogger(c).ErrorContext(
			c.Request.Context(),
			"error getting announcement",
			tint.Err(err),
		)
		ginReplyError(c, "error getting announcement")
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *APIHandlers) getSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.b.sessions.List())
}

func (h *APIHandlers) getTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, listTemplates())
}

func (h *APIHandlers) getInteractions(c *gin.Context) {
	var params GetInteractionsQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, httpError{Error: "invalid query"})
		return
	}
	if !h.dbReady(c) {
		return
	}
	params.setDefaults()

	query := h.b.db.WithContext(c.Request.Context()).Model(&InteractionLog{})
	if params.UserID != "" {
		query = query.Where("user_id = ?", params.UserID)
	}
	var logs []InteractionLog
	if err := params.apply(query).Find(&logs).Error; err != nil {
		ginContextLogger(c).ErrorContext(
			c.Request.Context(),
			"error getting interactions",
			tint.Err(err),
		)
		ginReplyError(c, "error getting interactions")
		return
	}
	c.JSON(http.StatusOK, logs)
}

// discordRegisterCommands overwrites the bot's application commands
//
// Responses:
//   - 201 Created: If the commands were successfully registered.
//   - 500 Internal Server Error: If there was an error registering the commands.
func (h *APIHandlers) discordRegisterCommands(c *gin.Context) {
	log := ginContextLogger(c)
	log.Info("registering commands")

	createdCommands, err := h.b.RegisterCommands()
	if err != nil {
		log.Error("error registering commands", tint.Err(err))
		ginReplyError(c, "error registering commands")
		return
	}
	c.JSON(http.StatusCreated, createdCommands)
}

// botQuit sends a stop signal to the bot
func (h *APIHandlers) botQuit(c *gin.Context) {
	log := ginContextLogger(c)
	log.Warn("sending stop signal")
	if !h.b.Stop() {
		c.JSON(http.StatusConflict, httpError{Error: "already stopping"})
		return
	}
	ginReplyMessage(c, "quitting")
}

// bearerAuthMiddleware requires `Authorization: Bearer <secret>` on
// every request. If secret is empty, requests are allowed through.
func bearerAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		token, found := strings.CutPrefix(c.GetHeader("Authorization"), bearerPrefix)
		if !found || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			ginContextLogger(c).Warn("unauthorized API request")
			c.AbortWithStatusJSON(
				http.StatusUnauthorized,
				httpError{Error: "unauthorized"},
			)
			return
		}
		c.Next()
	}
}

// requestIDMiddleware assigns a unique request ID to each incoming
// request, set in the gin context and in the response headers.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(xRequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

// ginContextLogger returns the slog.Logger from the given gin context,
// or, if it doesn't exist, creates a logger with request details included,
// and sets the logger in the context so the next call to ginContextLogger
// will return the new logger.
func ginContextLogger(c *gin.Context) *slog.Logger {
	if logger, ok := c.Get(string(loggerContextKey)); ok {
		if requestLogger, isLogger := logger.(*slog.Logger); isLogger {
			return requestLogger
		}
	}
	return setGinContextLogger(c, slog.Default())
}

func setGinContextLogger(c *gin.Context, base *slog.Logger) *slog.Logger {
	requestID, _ := c.Get(xRequestIDHeader)
	path := c.Request.URL.Path
	if raw := c.Request.URL.RawQuery; raw != "" {
		path = path + "?" + raw
	}

	requestLogger := base.With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", path,
			"remote_addr", c.Request.RemoteAddr,
			"remote_ip", c.RemoteIP(),
			"user_agent", c.Request.UserAgent(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

// ginLoggingMiddleware logs each request, its duration and response
// status, using base as the parent logger
func ginLoggingMiddleware(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := setGinContextLogger(c, base)
		c.Next()
		latency := time.Since(start)

		response := slog.Group(
			"response",
			"status_code", c.Writer.Status(),
			"body_size", c.Writer.Size(),
		)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf("%s %s finished with errors", c.Request.Method, c.Request.URL),
				"duration", latency,
				"errors", errs.Errors(),
				response,
			)
			return
		}
		requestLogger.Info(
			fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL),
			"duration", latency,
			response,
		)
	}
}

// ginReplyMessage sends a JSON response with a message,
// with HTTP status code 200, via the gin context.
func ginReplyMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, httpReply{Message: message})
}

// ginReplyError sends a JSON response with a message,
// with HTTP status code 500, via the gin context.
func ginReplyError(c *gin.Context, err string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, httpError{Error: err})
}
