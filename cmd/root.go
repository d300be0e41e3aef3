package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/arcward/scnewsbot/newsbot"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = newsbot.DefaultConfig()
	configFile string
	envFile    string
)

// keys holding lists, which need converting when set from the environment
var stringSliceKeys = []string{
	"bot.extensions",
	"bot.repost_channels",
	"permissions.allowed_guilds",
	"permissions.allowed_roles",
	"permissions.allowed_users",
	"permissions.debug.allowed_guilds",
	"permissions.debug.allowed_roles",
	"permissions.debug.allowed_users",
	"member_count.channel_ids",
	"api.cors.allow_origins",
	"api.cors.allow_methods",
	"api.cors.allow_headers",
	"api.cors.expose_headers",
}

// keys holding log levels, which are converted to *slog.LevelVar
var logLevelKeys = []string{
	"log_level",
	"database_log_level",
	"discord.log_level",
	"discord.discordgo_log_level",
	"discord.webhook_server.log_level",
	"api.log_level",
}

var rootCmd = &cobra.Command{
	Use:   "scnewsbot [flags]",
	Short: "r/starcitizen discord news bot",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := unmarshalConfig(cfg); err != nil {
			log.Fatalln(err)
		}
	},
}

func unmarshalConfig(c *newsbot.Config) error {
	return viper.Unmarshal(
		c,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				LevelToStringHookFunc(),
			),
		),
		// c starts out as DefaultConfig, so lists from the env or config
		// file replace the defaults rather than overlaying them
		func(dc *mapstructure.DecoderConfig) {
			dc.ZeroFields = true
		},
	)
}

func getLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setDefaults() {
	viper.SetDefault("database", newsbot.DefaultDatabase)
	viper.SetDefault("database_type", newsbot.DefaultDatabaseType)
	viper.SetDefault("database_slow_threshold", newsbot.DefaultDatabaseSlowThreshold)
	viper.SetDefault("database_log_level", newsbot.DefaultDatabaseLogLevel.String())
	viper.SetDefault("development", false)
	viper.SetDefault("debug", false)

	viper.SetDefault("log_level", newsbot.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", newsbot.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", newsbot.DefaultShutdownTimeout)

	// Bot behavior
	viper.SetDefault("bot.prefix", newsbot.DefaultPrefix)
	viper.SetDefault("bot.extensions", newsbot.DefaultExtensions)
	viper.SetDefault("bot.embed_color", newsbot.DefaultEmbedColor)
	viper.SetDefault("bot.repost_channels", []string{})
	viper.SetDefault("bot.announcement_emoji", newsbot.DefaultAnnouncementEmoji)
	viper.SetDefault("bot.default_image_url", newsbot.DefaultImageURL)
	viper.SetDefault("bot.builder_timeout", newsbot.DefaultBuilderTimeout)

	// Permissions
	viper.SetDefault("permissions.allowed_guilds", []string{})
	viper.SetDefault("permissions.allowed_roles", []string{})
	viper.SetDefault("permissions.allowed_users", []string{})
	viper.SetDefault("permissions.debug.allowed_guilds", []string{})
	viper.SetDefault("permissions.debug.allowed_roles", []string{})
	viper.SetDefault("permissions.debug.allowed_users", []string{})

	// Member count channels
	viper.SetDefault("member_count.channel_ids", newsbot.DefaultMemberCountChannels)
	viper.SetDefault("member_count.interval", newsbot.DefaultMemberCountPeriod)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.register_commands", false)
	viper.SetDefault("discord.log_level", newsbot.DefaultDiscordLogLevel.String())
	viper.SetDefault("discord.discordgo_log_level", newsbot.DefaultDiscordgoLogLevel.String())
	viper.SetDefault("discord.gateway_intents", int(newsbot.DefaultDiscordGatewayIntent))
	viper.SetDefault("discord.custom_status", newsbot.DefaultDiscordCustomStatus)

	// Discord: Webhook server
	viper.SetDefault("discord.webhook_server.enabled", false)
	viper.SetDefault("discord.webhook_server.listen", newsbot.DefaultDiscordWebhookServerListen)
	viper.SetDefault("discord.webhook_server.listen_network", "tcp")
	viper.SetDefault("discord.webhook_server.public_key", "")
	viper.SetDefault("discord.webhook_server.ssl.cert", "")
	viper.SetDefault("discord.webhook_server.ssl.key", "")
	viper.SetDefault(
		"discord.webhook_server.ssl.tls_min_version",
		newsbot.DefaultDiscordWebhookServerTLSminVersion,
	)
	viper.SetDefault("discord.webhook_server.read_timeout", newsbot.DefaultReadTimeout)
	viper.SetDefault("discord.webhook_server.read_header_timeout", newsbot.DefaultReadHeaderTimeout)
	viper.SetDefault("discord.webhook_server.write_timeout", newsbot.DefaultWriteTimeout)
	viper.SetDefault("discord.webhook_server.idle_timeout", newsbot.DefaultIdleTimeout)
	viper.SetDefault(
		"discord.webhook_server.log_level",
		newsbot.DefaultDiscordWebhookLogLevel.String(),
	)

	// API config
	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.listen", newsbot.DefaultAPIListen)
	viper.SetDefault("api.listen_network", "tcp")
	viper.SetDefault("api.secret", "")
	viper.SetDefault("api.log_level", newsbot.DefaultAPILogLevel.String())
	viper.SetDefault("api.ssl.cert", "")
	viper.SetDefault("api.ssl.key", "")
	viper.SetDefault("api.ssl.tls_min_version", newsbot.DefaultAPITLSMinVersion)
	viper.SetDefault("api.read_timeout", newsbot.DefaultReadTimeout)
	viper.SetDefault("api.read_header_timeout", newsbot.DefaultReadHeaderTimeout)
	viper.SetDefault("api.write_timeout", newsbot.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", newsbot.DefaultIdleTimeout)

	// API: CORS config
	viper.SetDefault("api.cors.allow_headers", newsbot.DefaultCORSAllowHeaders)
	viper.SetDefault("api.cors.allow_methods", newsbot.DefaultCORSAllowMethods)
	viper.SetDefault("api.cors.expose_headers", newsbot.DefaultCORSExposeHeaders)
	viper.SetDefault("api.cors.allow_origins", []string{})
	viper.SetDefault("api.cors.max_age", newsbot.DefaultCORSMaxAge)
	viper.SetDefault("api.cors.allow_credentials", newsbot.DefaultAPICORSAllowCredentials)
}

func initConfig() {
	if envFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", envFile)
		if err := godotenv.Load(envFile); err != nil {
			log.Fatalf("error loading env file %s: %v", envFile, err)
		}
	}

	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			log.Fatalf("error reading config file %s: %v", configFile, err)
		}
	}

	envPrefix := os.Getenv(newsbot.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = newsbot.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	for _, key := range stringSliceKeys {
		viper.Set(key, viper.GetStringSlice(key))
	}

	for _, key := range logLevelKeys {
		if _, ok := viper.Get(key).(*slog.LevelVar); ok {
			continue
		}
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//goland:noinspection GoLinter,GoLinter
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use (TOML, YAML or JSON)",
	)
	rootCmd.PersistentFlags().StringVar(
		&envFile,
		"env-file",
		"",
		"Env file to load (defaults to .env, if present)",
	)
}
