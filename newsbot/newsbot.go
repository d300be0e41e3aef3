package newsbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/arcward/scnewsbot/newsbot.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// Bot is the announcement bot. It owns the discord session, the builder
// sessions, the audit database and the optional HTTP servers.
type Bot struct {
	config *Config

	// read connection
	db *gorm.DB

	// gorm.DB wrapper for write/update/delete operations. When using
	// sqlite, writes are serialized.
	writeDB DBI

	logger     *slog.Logger
	logHandler slog.Handler

	// Handles discord integration, sessions
	discord *Discord

	// Open announcement builders
	sessions *sessionManager

	// Provides the back-end API
	api *API

	// Provides a webhook endpoint to use to receive Discord
	// interactions when the websocket/gateway isn't being used
	discordWebhookServer *DiscordWebhookServer

	// Handler for interactions received via webhook
	webhookInteractionHandler func(c *gin.Context)

	// Renames the member count channels
	memberCounter *memberCounter

	// signalStop enables an explicit stop signal to be sent to the bot,
	// such as by the `/api/quit` endpoint
	signalStop chan struct{}

	// signalReady has a value sent on it once Run has connected to
	// discord and started its background tasks
	signalReady chan struct{}

	// A signal is sent on this channel when shutdown finishes
	eventShutdown chan struct{}

	// prevents Run from executing concurrently
	runMu sync.Mutex

	// The time Run was called
	startedAt time.Time

	// interactionsInProgress is the number of interactions currently
	// being handled
	interactionsInProgress atomic.Int64

	// getInteractionHandlerFunc returns the InteractionHandler to use for
	// a gateway interaction. Command handling is the same for gateway and
	// webhook interactions, only the initial response differs.
	getInteractionHandlerFunc func(
		ctx context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler
}

// New creates a new Bot from the given config. Errors from each component
// are joined and returned.
func New(config *Config) (*Bot, error) {
	var errs []error

	switch config.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
		//
	default:
		errs = append(
			errs,
			errors.New("invalid database type (must be 'sqlite' or 'postgres')"),
		)
	}

	if config.Discord.httpClient == nil {
		config.Discord.httpClient = http.DefaultClient
	}

	b := &Bot{
		config:        config,
		signalReady:   make(chan struct{}, 1),
		signalStop:    make(chan struct{}, 1),
		eventShutdown: make(chan struct{}, 1),
	}

	b.logHandler = newLogHandler(config.LogLevel)
	b.logger = slog.New(b.logHandler)
	slog.SetDefault(b.logger)

	disc, err := newDiscord(config.Discord)
	if err != nil {
		errs = append(errs, err)
		disc = &Discord{config: config.Discord}
	}

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		newLogHandler(config.Discord.DiscordGoLogLevel).WithAttrs(
			[]slog.Attr{slog.String(loggerNameKey, "discordgo")},
		),
	)
	disc.logger = slog.New(newLogHandler(config.Discord.LogLevel)).With(
		loggerNameKey,
		"discord",
	)
	b.discord = disc

	b.sessions = newSessionManager(
		config.Bot.BuilderTimeout,
		b.logger.With(loggerNameKey, "builder"),
		b.onSessionExpired,
	)

	b.memberCounter = newMemberCounter(
		b,
		config.MemberCount,
		b.logger.With(loggerNameKey, "member_count"),
	)

	if config.API.Enabled {
		api, e := newAPI(b, config.API)
		errs = append(errs, e)
		b.api = api
	}

	if config.Discord.WebhookServer.Enabled {
		webhookServer, e := newWebhookServer(b, config.Discord.WebhookServer)
		errs = append(errs, e)
		b.discordWebhookServer = webhookServer
	}

	return b, errors.Join(errs...)
}

func (b *Bot) ValidateConfig() error {
	return structValidator.Struct(b.config)
}

func (b *Bot) getLogger(ctx context.Context) (
	context.Context,
	*slog.Logger,
) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = b.logger
		ctx = WithLogger(ctx, logger)
	}
	return ctx, logger
}

// authors resolves announcement author names via the discord API
func (b *Bot) authors() AuthorResolver {
	return sessionAuthorResolver{session: b.discord.session}
}

// RegisterCommands overwrites the bot's slash and context menu commands
func (b *Bot) RegisterCommands(options ...discordgo.RequestOption) (
	[]*discordgo.ApplicationCommand,
	error,
) {
	if b.discord.session == nil {
		session, err := b.discord.newSession()
		if err != nil {
			return nil, err
		}
		b.discord.session = session
	}
	return b.discord.registerCommands(b.applicationCommands(), options...)
}

// Run connects to discord and handles commands until ctx is canceled, or
// a stop signal is received.
func (b *Bot) Run(ctx context.Context) error {
	// prevents concurrent runs
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.startedAt = time.Now()
	logger := b.logger

	if err := b.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	ctx = WithLogger(ctx, logger)
	runtimeWG := &sync.WaitGroup{}

	b.webhookInteractionHandler = webhookReceiveHandler(ctx, b)

	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", b.config))

	// this is the 'runtime' context, which triggers a graceful shutdown
	// when canceled
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-b.signalStop:
			b.logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
			b.logger.Warn("context canceled")
			return
		}
	}()

	if b.api != nil {
		go func() {
			httpErr := b.api.Serve(ctx)
			if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
				b.logger.ErrorContext(ctx, "error serving api HTTP", tint.Err(httpErr))
			}
		}()
	}

	startCtx, startCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer startCancel()

	initErr := make(chan error, 1)
	go func() {
		logger.Debug("initializing run...")
		initErr <- b.initRun(startCtx)
	}()

	select {
	case <-startCtx.Done():
		return fmt.Errorf("startup cancelled or timed out")
	case err := <-initErr:
		if err != nil {
			logger.ErrorContext(ctx, "init error", tint.Err(err))
			if b.api != nil && b.api.listener != nil {
				if e := b.api.listener.Close(); e != nil {
					logger.ErrorContext(ctx, "error closing listener", tint.Err(e))
				}
			}
			return err
		}
		logger.InfoContext(ctx, "init complete")
	}

	if b.discordWebhookServer != nil {
		b.startWebhookServer(ctx, runtimeWG)
	}

	if discErr := b.initDiscordSession(ctx, runtimeWG); discErr != nil {
		logger.ErrorContext(ctx, "error creating discord session", tint.Err(discErr))
		return discErr
	}

	if err := b.discordInit(ctx, logger); err != nil {
		return err
	}

	if b.config.Discord.RegisterCommands {
		if _, err := b.RegisterCommands(); err != nil {
			logger.ErrorContext(ctx, "error registering commands", tint.Err(err))
		}
	}

	if b.memberCounter.enabled() {
		runtimeWG.Add(1)
		go func() {
			defer runtimeWG.Done()
			b.memberCounter.Run(ctx)
		}()
	}

	b.signalReady <- struct{}{}
	logger.InfoContext(ctx, "sent ready signal")

	// block until something cancels the main runtime context - generally
	// from an interrupt, or the `/api/quit` endpoint
	<-ctx.Done()

	return b.shutdown(ctx, runtimeWG)
}

func (b *Bot) initRun(ctx context.Context) error {
	b.logger.Debug("initializing DB...")
	if err := b.initDB(ctx); err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	b.logger.Debug("finished initializing DB")
	return nil
}

func (b *Bot) initDB(ctx context.Context) error {
	if b.db != nil && b.writeDB != nil {
		return nil
	}
	gormLogger := newGORMLogger(
		newLogHandler(b.config.DatabaseLogLevel),
		b.config.DatabaseSlowThreshold,
	)
	db, err := getDB(b.config.DatabaseType, b.config.Database, gormLogger)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	b.db = db
	b.writeDB = NewDatabase(
		db,
		b.logger,
		b.config.DatabaseType == dbTypePostgres,
	)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("error getting database connection: %w", err)
	}

	if b.config.DatabaseType == dbTypeSQLite {
		sqlDB.SetMaxOpenConns(sqliteMaxOpenConns)
		sqlDB.SetMaxIdleConns(sqliteMaxIdleConns)
		sqlDB.SetConnMaxLifetime(sqliteMaxConnLifetime)
		pragmaErrors := make([]error, 0, len(sqliteExecPragma))
		for _, p := range sqliteExecPragma {
			pragmaErrors = append(pragmaErrors, db.WithContext(ctx).Exec(p).Error)
		}
		if pragmaErr := errors.Join(pragmaErrors...); pragmaErr != nil {
			return pragmaErr
		}
	}
	return migrate(ctx, db)
}

func (b *Bot) initDiscordSession(ctx context.Context, runtimeWG *sync.WaitGroup) error {
	logger := b.logger.With(loggerNameKey, "discord_session")

	if b.discord.session == nil {
		disc, discErr := b.discord.newSession()
		if discErr != nil {
			return fmt.Errorf("error creating discord session: %w", discErr)
		}
		b.discord.session = disc
	}

	ctx = WithLogger(ctx, logger)

	for _, h := range b.discord.discordgoRemoveHandlerFuncs {
		h()
	}

	b.discord.session.SetIdentify(
		discordgo.Identify{
			Intents: b.config.Discord.GatewayIntents,
			Presence: discordgo.GatewayStatusUpdate{
				Status: string(discordgo.StatusOnline),
			},
		},
	)

	b.discord.discordgoRemoveHandlerFuncs = []func(){
		b.discord.session.AddHandler(b.discord.handlerConnect()),
		b.discord.session.AddHandler(b.discord.handlerDisconnect()),
		b.discord.session.AddHandler(b.discord.handlerReady()),
		b.discord.session.AddHandler(
			func(
				_ *discordgo.Session,
				i *discordgo.InteractionCreate,
			) {
				handler := b.getInteractionHandlerFunc(ctx, i)
				runtimeWG.Add(1)
				go func() {
					defer runtimeWG.Done()
					b.handleInteraction(ctx, handler)
				}()
			},
		),
		b.discord.session.AddHandler(
			func(
				_ *discordgo.Session,
				m *discordgo.MessageCreate,
			) {
				runtimeWG.Add(1)
				go func() {
					defer runtimeWG.Done()
					defer func() {
						if rc := recover(); rc != nil {
							b.handleRecover(ctx, rc)
						}
					}()
					b.handleMessage(ctx, m)
				}()
			},
		),
	}

	if b.getInteractionHandlerFunc == nil {
		b.getInteractionHandlerFunc = func(
			_ context.Context,
			i *discordgo.InteractionCreate,
		) InteractionHandler {
			return GatewayHandler{
				session:     b.discord.session,
				interaction: i,
				logger: b.discord.logger.With(
					slog.Group("interaction", interactionLogAttrs(*i)...),
				),
			}
		}
	}
	return nil
}

// discordInit opens the discord websocket connection and sets the
// custom status
func (b *Bot) discordInit(ctx context.Context, logger *slog.Logger) error {
	logger.InfoContext(ctx, "connecting to discord")
	if err := b.discord.session.Open(); err != nil {
		logger.ErrorContext(ctx, "error connecting to discord!", tint.Err(err))
		return fmt.Errorf("error connecting to discord: %w", err)
	}
	if status := b.config.Discord.CustomStatus; status != "" {
		go func() {
			if statusErr := b.discord.session.UpdateCustomStatus(status); statusErr != nil {
				logger.Error("error updating discord status", tint.Err(statusErr))
			}
		}()
	}
	return nil
}

func (b *Bot) startWebhookServer(ctx context.Context, runtimeWG *sync.WaitGroup) {
	runtimeWG.Add(1)
	go func() {
		defer runtimeWG.Done()
		httpErr := b.discordWebhookServer.Serve(ctx)
		if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
			b.logger.ErrorContext(ctx, "error serving webhook HTTP", tint.Err(httpErr))
		}
	}()
}

// handleInteraction logs the interaction, then routes it to the builder
// or command handlers.
func (b *Bot) handleInteraction(
	ctx context.Context,
	handler InteractionHandler,
) {
	b.interactionsInProgress.Add(1)
	defer b.interactionsInProgress.Add(-1)

	logger := handler.Logger()
	i := handler.GetInteraction()

	ctx = WithLogger(ctx, logger)
	defer func() {
		if rc := recover(); rc != nil {
			b.handleRecover(ctx, rc)
		}
	}()

	if i.Type == discordgo.InteractionPing {
		_ = handler.Respond(
			ctx, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponsePong,
			},
		)
		return
	}

	discordUser := getDiscordUser(i)
	if discordUser == nil {
		logger.ErrorContext(
			ctx,
			"no user found in interaction",
			"interaction", structToSlogValue(i),
		)
		return
	}
	logger.InfoContext(ctx, "received new interaction", "user", structToSlogValue(discordUser))

	interactionLog, err := newInteractionLog(i, discordUser, handler)
	if err != nil {
		logger.ErrorContext(ctx, "error marshaling interaction", tint.Err(err))
	}

	wg := &sync.WaitGroup{}
	defer wg.Wait()

	if b.writeDB != nil && interactionLog != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, createErr := b.writeDB.Create(ctx, interactionLog); createErr != nil {
				logger.ErrorContext(ctx, "error logging interaction", tint.Err(createErr))
			}
		}()
	}

	if discordUser.Bot {
		logger.WarnContext(ctx, "user is bot, ignoring", "user", discordUser)
		return
	}

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		customID := i.MessageComponentData().CustomID
		sessionID, control, ok := parseBuilderCustomID(builderCustomIDPrefix, customID)
		if !ok {
			logger.WarnContext(ctx, "unknown component", "custom_id", customID)
			_ = handler.Respond(ctx, ephemeralResponse(DefaultDiscordErrorMessage))
			return
		}
		b.handleBuilderComponent(ctx, handler, sessionID, control)
	case discordgo.InteractionModalSubmit:
		customID := i.ModalSubmitData().CustomID
		sessionID, optionID, ok := parseBuilderCustomID(builderModalPrefix, customID)
		if !ok {
			logger.WarnContext(ctx, "unknown modal", "custom_id", customID)
			_ = handler.Respond(ctx, ephemeralResponse(DefaultDiscordErrorMessage))
			return
		}
		b.handleBuilderModal(ctx, handler, sessionID, optionID)
	case discordgo.InteractionApplicationCommand:
		b.handleApplicationCommand(ctx, handler)
	default:
		logger.WarnContext(ctx, "unhandled interaction type", "type", i.Type.String())
	}
}

func (b *Bot) shutdown(
	ctx context.Context,
	runtimeWG *sync.WaitGroup,
) error {
	b.logger.WarnContext(ctx, "shutting down")
	defer func() {
		if b.eventShutdown != nil {
			go func() {
				b.eventShutdown <- struct{}{}
			}()
		}
	}()

	shutdownStart := time.Now()
	shutdownTimeout := b.config.ShutdownTimeout
	if shutdownTimeout.Seconds() == 0 {
		b.logger.Warn("immediate shutdown")
		b.closeServers()
		return fmt.Errorf("shutdown timeout is zero, closed immediately")
	}
	shutdownDeadline := shutdownStart.Add(shutdownTimeout)

	b.logger.InfoContext(
		ctx,
		"exiting!",
		"shutdown_timeout", shutdownTimeout,
		"shutdown_started", shutdownStart,
		"shutdown_deadline", shutdownDeadline,
		"open_sessions", b.sessions.Len(),
	)

	closeCtx, closeCancel := context.WithDeadline(
		context.Background(),
		shutdownDeadline,
	)
	defer closeCancel()

	gracefulShutdownCh := make(chan struct{}, 1)
	go func() {
		// builders can't be resumed after a restart, so close them
		// while the session can still edit their messages
		b.sessions.CloseAll()

		runtimeWG.Wait()
		runtimeStopEnd := time.Now()
		b.logger.InfoContext(
			ctx,
			"finished handling in-flight requests",
			"runtime_stop_duration", runtimeStopEnd.Sub(shutdownStart),
		)

		stopWG := &sync.WaitGroup{}
		if b.api != nil && b.api.httpServer != nil {
			stopWG.Add(1)
			go func() {
				defer stopWG.Done()
				b.logger.InfoContext(ctx, "stopping http server")
				_ = b.api.httpServer.Shutdown(closeCtx)
				b.logger.InfoContext(ctx, "http server stopped")
			}()
		}

		if b.discordWebhookServer != nil {
			stopWG.Add(1)
			go func() {
				defer stopWG.Done()
				b.logger.InfoContext(ctx, "stopping webhook http server")
				_ = b.discordWebhookServer.httpServer.Shutdown(closeCtx)
				b.logger.InfoContext(ctx, "webhook http server stopped")
			}()
		}

		if b.discord.session != nil {
			stopWG.Add(1)
			go func() {
				defer stopWG.Done()
				b.logger.InfoContext(ctx, "closing discord session")
				_ = b.discord.session.Close()
				for _, h := range b.discord.discordgoRemoveHandlerFuncs {
					h()
				}
				b.discord.discordgoRemoveHandlerFuncs = nil
				b.logger.InfoContext(ctx, "discord session closed")
			}()
		}

		stopWG.Wait()
		gracefulShutdownCh <- struct{}{}
	}()

	announcementTicker := time.NewTicker(10 * time.Second)
	defer announcementTicker.Stop()

	for {
		select {
		case <-gracefulShutdownCh:
			shutdownEnded := time.Now()
			b.logger.InfoContext(
				ctx,
				"shutdown complete",
				"shutdown_duration", shutdownEnded.Sub(shutdownStart),
			)
			return nil
		case <-announcementTicker.C:
			b.logger.Warn(
				fmt.Sprintf(
					"time until hard shutdown: %s",
					time.Until(shutdownDeadline).String(),
				),
			)
		case <-closeCtx.Done():
			b.logger.Warn("did not stop in time, forcing close")
			b.closeServers()
			return fmt.Errorf("did not stop in time")
		}
	}
}

func (b *Bot) closeServers() {
	if b.api != nil && b.api.httpServer != nil {
		go func() {
			_ = b.api.httpServer.Close()
		}()
	}
	if b.discordWebhookServer != nil {
		go func() {
			_ = b.discordWebhookServer.httpServer.Close()
		}()
	}
}

// Stop sends a stop signal to a running bot. It returns false if a
// stop signal is already pending.
func (b *Bot) Stop() bool {
	select {
	case b.signalStop <- struct{}{}:
		return true
	default:
		return false
	}
}

// handleRecover logs a recovered panic along with its stack trace
func (*Bot) handleRecover(ctx context.Context, rc any) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = slog.Default()
	}
	stackTrace := string(debug.Stack())
	var err error
	switch v := rc.(type) {
	case error:
		err = v
	case string:
		err = errors.New(v)
	default:
		err = fmt.Errorf("%v", v)
	}
	logger.ErrorContext(
		ctx,
		"recovered from panic",
		tint.Err(err),
		"stack_trace", stackTrace,
	)
}
