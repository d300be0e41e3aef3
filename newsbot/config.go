//nolint:lll // struct tags can't be split
package newsbot

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
	"github.com/go-playground/validator/v10"
)

const (
	EnvvarSetEnvPrefix = "SCNEWSBOT_ENV_PREFIX"
	DefaultEnvPrefix   = "SCN"

	DefaultDatabaseType    = "sqlite"
	DefaultDatabase        = "scnewsbot.sqlite3"
	DefaultLogLevel        = slog.LevelInfo
	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second

	DefaultDiscordWebhookServerListen        = "127.0.0.1:5001"
	DefaultDiscordWebhookServerTLSminVersion = tls.VersionTLS12
	DefaultDiscordGatewayIntent              = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent
	DefaultDiscordWebhookLogLevel = slog.LevelInfo
	DefaultDiscordLogLevel        = slog.LevelWarn
	DefaultDiscordgoLogLevel      = slog.LevelWarn
	DefaultDiscordErrorMessage    = "Sorry, something went wrong!"
	DefaultDiscordCustomStatus    = "Reading the comm-links"

	DefaultPrefix            = "sc "
	DefaultEmbedColor        = 0x2B2D31
	DefaultAnnouncementEmoji = "<:upvote:354233015842635776>"
	DefaultImageURL          = "https://cdn.discordapp.com/attachments/611922107345141760/1227292305556242582/41bannerEisenlowe.png?"
	DefaultBuilderTimeout    = 20 * time.Minute
	DefaultMemberCountPeriod = 30 * time.Minute

	DefaultAPIListen               = "127.0.0.1:5000"
	DefaultAPITLSMinVersion        = tls.VersionTLS12
	DefaultDatabaseSlowThreshold   = 200 * time.Millisecond
	DefaultDatabaseLogLevel        = slog.LevelInfo
	DefaultAPILogLevel             = slog.LevelInfo
	defaultListenNetwork           = "tcp"
	DefaultAPICORSAllowCredentials = true
)

// Extension names accepted in [BotConfig.Extensions]
const (
	ExtensionAnnouncements = "announcements"
	ExtensionTemplates     = "templates"
	ExtensionRStarCitizen  = "rstarcitizen"
)

var (
	DefaultExtensions = []string{
		ExtensionAnnouncements,
		ExtensionTemplates,
	}
	DefaultCORSAllowMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodOptions,
		http.MethodHead,
	}
	DefaultCORSAllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-Requested-With",
		"Cache-Control",
		xRequestIDHeader,
	}
	DefaultCORSExposeHeaders = []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		xRequestIDHeader,
	}
	DefaultCORSMaxAge = 12 * time.Hour

	// DefaultMemberCountChannels are the r/starcitizen member count channels
	DefaultMemberCountChannels = []string{
		"1223778123472965755",
		"1225449497124012134",
	}
)

var structValidator = validator.New()

func init() {
	structValidator.SetTagName("binding")
	structValidator.RegisterStructValidation(
		validateMemberCountConfig,
		MemberCountConfig{},
	)
}

type DiscordInteractionReceiveMethod string

var (
	discordInteractionReceiveMethodGateway DiscordInteractionReceiveMethod = "gateway"
	discordInteractionReceiveMethodWebhook DiscordInteractionReceiveMethod = "webhook"
)

type Config struct {
	// Database connection string
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// Debug adds the permissions.debug allow-lists to the regular ones
	Debug bool `yaml:"debug" mapstructure:"debug" json:"debug"`

	// Development enables pprof routes on the API server
	Development bool `yaml:"development" mapstructure:"development" json:"development"`

	Bot *BotConfig `yaml:"bot" mapstructure:"bot" json:"bot"`

	Permissions *PermissionsConfig `yaml:"permissions" mapstructure:"permissions" json:"permissions"`

	MemberCount *MemberCountConfig `yaml:"member_count" mapstructure:"member_count" json:"member_count"`

	// API configures the backend API server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// Discord configures aspects of the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// initialize and connect. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// BotConfig holds the announcement behavior settings
type BotConfig struct {
	// Prefix for text commands. A mention of the bot also works as a prefix.
	Prefix string `yaml:"prefix" mapstructure:"prefix" json:"prefix" binding:"required"`

	// Extensions selects which command sets are enabled
	Extensions []string `yaml:"extensions" mapstructure:"extensions" json:"extensions" binding:"dive,oneof=announcements templates rstarcitizen"`

	// EmbedColor is the accent color of rendered announcements
	EmbedColor int `yaml:"embed_color" mapstructure:"embed_color" json:"embed_color" binding:"min=0,max=16777215"`

	// RepostChannels receive a read-only copy of every published announcement
	RepostChannels []string `yaml:"repost_channels" mapstructure:"repost_channels" json:"repost_channels" binding:"dive,numeric"`

	// AnnouncementEmoji is added as a reaction to every published announcement
	AnnouncementEmoji string `yaml:"announcement_emoji" mapstructure:"announcement_emoji" json:"announcement_emoji"`

	// DefaultImageURL is the placeholder banner for new drafts
	DefaultImageURL string `yaml:"default_image_url" mapstructure:"default_image_url" json:"default_image_url"`

	// BuilderTimeout is how long a builder stays open without interaction
	BuilderTimeout time.Duration `yaml:"builder_timeout" mapstructure:"builder_timeout" json:"builder_timeout" binding:"min=1s"`
}

// ExtensionEnabled reports whether the named extension is enabled
func (b BotConfig) ExtensionEnabled(name string) bool {
	return slices.Contains(b.Extensions, name)
}

// AllowList is a set of guild, role and user IDs
type AllowList struct {
	AllowedGuilds []string `yaml:"allowed_guilds" mapstructure:"allowed_guilds" json:"allowed_guilds" binding:"dive,numeric"`
	AllowedRoles  []string `yaml:"allowed_roles" mapstructure:"allowed_roles" json:"allowed_roles" binding:"dive,numeric"`
	AllowedUsers  []string `yaml:"allowed_users" mapstructure:"allowed_users" json:"allowed_users" binding:"dive,numeric"`
}

// PermissionsConfig determines who may publish announcements. When
// [Config.Debug] is set, the Debug lists are added to the base lists.
type PermissionsConfig struct {
	AllowList `yaml:",inline" mapstructure:",squash"`

	Debug AllowList `yaml:"debug" mapstructure:"debug" json:"debug"`
}

// Effective returns the allow-list in effect, with the debug overlay
// appended when debug is true.
func (p PermissionsConfig) Effective(debug bool) AllowList {
	if !debug {
		return p.AllowList
	}
	return AllowList{
		AllowedGuilds: append(append([]string(nil), p.AllowedGuilds...), p.Debug.AllowedGuilds...),
		AllowedRoles:  append(append([]string(nil), p.AllowedRoles...), p.Debug.AllowedRoles...),
		AllowedUsers:  append(append([]string(nil), p.AllowedUsers...), p.Debug.AllowedUsers...),
	}
}

// MemberCountConfig configures the channels renamed to show the
// current member count (part of the rstarcitizen extension).
type MemberCountConfig struct {
	ChannelIDs []string      `yaml:"channel_ids" mapstructure:"channel_ids" json:"channel_ids" binding:"dive,numeric"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval" json:"interval"`
}

func validateMemberCountConfig(sl validator.StructLevel) {
	value, ok := sl.Current().Interface().(MemberCountConfig)
	if !ok {
		return
	}
	if len(value.ChannelIDs) > 0 && value.Interval < time.Minute {
		sl.ReportError(value.Interval, "Interval", "interval", "min", "1m")
	}
}

// DiscordConfig configures the discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// Required when receiving webhook events rather than websockets
	WebhookServer DiscordWebhookServerConfig `yaml:"webhook_server" mapstructure:"webhook_server" json:"webhook_server"`

	// GuildID specifies the guild ID used when registering slash commands.
	// Leave empty for commands to be registered as global.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// RegisterCommands overwrites the slash commands on each startup
	RegisterCommands bool `yaml:"register_commands" mapstructure:"register_commands" json:"register_commands"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// CustomStatus is set on the bot's presence when connected
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	httpClient *http.Client
}

// DiscordWebhookServerConfig represents the configuration for the Discord
// interactions webhook server, used when interactions are received via
// an outgoing webhook rather than the gateway.
type DiscordWebhookServerConfig struct {
	// Determines if the webhook server should be active.
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// The address and port on which the server should listen (e.g., "127.0.0.1:5001").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required_if=Enabled true"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"required_if=Enabled true,omitempty,oneof=tcp tcp4 tcp6 unix"`

	// Configuration for SSL/TLS.
	SSL SSLConfig `yaml:"ssl" mapstructure:"ssl" json:"ssl"`

	// The public key used for verifying Discord interaction POST requests.
	// In the Discord dev portal for your bot, this is under 'General Information'
	PublicKey string `yaml:"public_key" mapstructure:"public_key" json:"public_key" binding:"required_if=Enabled true"`

	// The logging level for the webhook server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// APIConfig configures the backend API server
type APIConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// The address and port on which the server should listen (e.g., "127.0.0.1:5000").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required_if=Enabled true"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"required_if=Enabled true,omitempty,oneof=tcp tcp4 tcp6 unix"`

	// Secret is the bearer token required on /api routes. Leave empty
	// to leave them unauthenticated.
	Secret string `yaml:"secret" mapstructure:"secret" json:"secret" log:"[redacted]"`

	// Configuration for SSL/TLS. When no certificate is set, the API
	// is served over plain HTTP.
	SSL SSLConfig `yaml:"ssl" mapstructure:"ssl" json:"ssl"`

	// The logging level for the API server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Cross-origin configuration
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// SSLConfig specifies cert paths and the TLS version to use
type SSLConfig struct {
	// Path to an SSL certificate
	Cert string `yaml:"cert" mapstructure:"cert" json:"cert"`

	// Path to an SSL cert key
	Key string `yaml:"key" mapstructure:"key" json:"key"`

	// Minimum TLS version
	TLSMinVersion uint16 `yaml:"tls_min_version" mapstructure:"tls_min_version" json:"tls_min_version"`
}

// CORSConfig specifies cross-origin resource sharing settings
type CORSConfig struct {
	AllowOrigins     []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	ExposeHeaders    []string      `yaml:"expose_headers" mapstructure:"expose_headers" json:"expose_headers"`
	AllowCredentials bool          `yaml:"allow_credentials" mapstructure:"allow_credentials" json:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func (c CORSConfig) GINConfig() cors.Config {
	cfg := cors.Config{
		AllowOrigins:     c.AllowOrigins,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		MaxAge:           c.MaxAge,
		ExposeHeaders:    c.ExposeHeaders,
		AllowCredentials: c.AllowCredentials,
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	}
	return cfg
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins:     []string{},
		AllowMethods:     slices.Clone(DefaultCORSAllowMethods),
		AllowHeaders:     slices.Clone(DefaultCORSAllowHeaders),
		ExposeHeaders:    slices.Clone(DefaultCORSExposeHeaders),
		MaxAge:           DefaultCORSMaxAge,
		AllowCredentials: DefaultAPICORSAllowCredentials,
	}
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}
	discordWebhookLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)
	discordWebhookLogLevel.Set(DefaultDiscordWebhookLogLevel)

	return &Config{
		DatabaseType:          DefaultDatabaseType,
		Database:              DefaultDatabase,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              mainLogLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Bot: &BotConfig{
			Prefix:            DefaultPrefix,
			Extensions:        slices.Clone(DefaultExtensions),
			EmbedColor:        DefaultEmbedColor,
			RepostChannels:    []string{},
			AnnouncementEmoji: DefaultAnnouncementEmoji,
			DefaultImageURL:   DefaultImageURL,
			BuilderTimeout:    DefaultBuilderTimeout,
		},
		Permissions: &PermissionsConfig{},
		MemberCount: &MemberCountConfig{
			ChannelIDs: slices.Clone(DefaultMemberCountChannels),
			Interval:   DefaultMemberCountPeriod,
		},
		Discord: &DiscordConfig{
			WebhookServer: DiscordWebhookServerConfig{
				Enabled:       false,
				Listen:        DefaultDiscordWebhookServerListen,
				ListenNetwork: defaultListenNetwork,
				SSL: SSLConfig{
					TLSMinVersion: DefaultDiscordWebhookServerTLSminVersion,
				},
				LogLevel:          discordWebhookLogLevel,
				ReadHeaderTimeout: DefaultReadHeaderTimeout,
				ReadTimeout:       DefaultReadTimeout,
				WriteTimeout:      DefaultWriteTimeout,
				IdleTimeout:       DefaultIdleTimeout,
			},
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
			CustomStatus:      DefaultDiscordCustomStatus,
		},
		API: &APIConfig{
			Listen:        DefaultAPIListen,
			ListenNetwork: defaultListenNetwork,
			SSL: SSLConfig{
				TLSMinVersion: DefaultAPITLSMinVersion,
			},
			LogLevel:          apiLogLevel,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			ReadTimeout:       DefaultReadTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			CORS:              DefaultCORSConfig(),
		},
	}
}
