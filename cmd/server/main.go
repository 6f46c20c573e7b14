package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/coursecast/server/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

var (
	secret = configVar[string]{
		envKey:  "SERVER_SECRET",
		flagKey: "secret",
		usage:   "Secret used to sign session tokens",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 8080,
		usage:        "Server port",
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	databaseDSN = configVar[string]{
		envKey:  "DATABASE_DSN",
		flagKey: "database-dsn",
		usage:   "Postgres connection string",
	}
	databaseMaxOpenConns = configVar[int]{
		envKey:       "DATABASE_MAX_OPEN_CONNS",
		flagKey:      "database-max-open-conns",
		defaultValue: 20,
		usage:        "Maximum number of open database connections",
	}
	databaseAutoMigrate = configVar[bool]{
		envKey:       "DATABASE_AUTO_MIGRATE",
		flagKey:      "database-auto-migrate",
		defaultValue: false,
		usage:        "Create or update progress tables on start",
	}
	redisEnabled = configVar[bool]{
		envKey:       "REDIS_ENABLED",
		flagKey:      "redis-enabled",
		defaultValue: false,
		usage:        "Fan out room events to other instances through redis",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
		usage:        "Redis host",
	}
	redisPassword = configVar[string]{
		envKey:  "REDIS_PASSWORD",
		flagKey: "redis-password",
		usage:   "Redis password",
	}
	typingTTL = configVar[time.Duration]{
		envKey:       "CHAT_TYPING_TTL",
		flagKey:      "typing-ttl",
		defaultValue: 3 * time.Second,
		usage:        "How long a typing indicator lives without renewal",
	}
	messageMaxLength = configVar[int]{
		envKey:       "CHAT_MESSAGE_MAX_LENGTH",
		flagKey:      "message-max-length",
		defaultValue: 2000,
		usage:        "Maximum chat message length in characters",
	}
	allowAnonymous = configVar[bool]{
		envKey:       "CHAT_ALLOW_ANONYMOUS",
		flagKey:      "allow-anonymous",
		defaultValue: true,
		usage:        "Let connections without a session join rooms as listeners",
	}
	maxConnectionsPerUser = configVar[int]{
		envKey:       "CHAT_MAX_CONNECTIONS_PER_USER",
		flagKey:      "max-connections-per-user",
		defaultValue: 10,
		usage:        "Concurrent websocket connections allowed per signed-in user, 0 disables the cap",
	}
	sendBufferSize = configVar[int]{
		envKey:       "WS_SEND_BUFFER_SIZE",
		flagKey:      "send-buffer-size",
		defaultValue: 64,
		usage:        "Outbound event buffer per connection",
	}
	sessionTTL = configVar[time.Duration]{
		envKey:       "SESSION_TTL",
		flagKey:      "session-ttl",
		defaultValue: 24 * time.Hour,
		usage:        "Session token lifetime",
	}
	allowedOrigins = configVar[string]{
		envKey:  "SERVER_ALLOWED_ORIGINS",
		flagKey: "allowed-origins",
		usage:   "Comma separated list of allowed CORS origins, empty allows all",
	}
)

func bindString(v configVar[string]) {
	pflag.String(v.flagKey, v.defaultValue, v.usage)
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func bindInt(v configVar[int]) {
	pflag.Int(v.flagKey, v.defaultValue, v.usage)
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func bindBool(v configVar[bool]) {
	pflag.Bool(v.flagKey, v.defaultValue, v.usage)
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func bindDuration(v configVar[time.Duration]) {
	pflag.Duration(v.flagKey, v.defaultValue, v.usage)
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func loadAppConfig() *app.AppConfig {
	for _, v := range []configVar[string]{secret, host, logLevel, databaseDSN, redisHost, redisPassword, allowedOrigins} {
		bindString(v)
	}
	for _, v := range []configVar[int]{port, databaseMaxOpenConns, redisPort, messageMaxLength, maxConnectionsPerUser, sendBufferSize} {
		bindInt(v)
	}
	for _, v := range []configVar[bool]{databaseAutoMigrate, redisEnabled, allowAnonymous} {
		bindBool(v)
	}
	for _, v := range []configVar[time.Duration]{typingTTL, sessionTTL} {
		bindDuration(v)
	}
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	return &app.AppConfig{
		Secret:                viper.GetString(secret.flagKey),
		Host:                  viper.GetString(host.flagKey),
		Port:                  viper.GetInt(port.flagKey),
		LogLevel:              viper.GetString(logLevel.flagKey),
		DatabaseDSN:           viper.GetString(databaseDSN.flagKey),
		DatabaseMaxOpenConns:  viper.GetInt(databaseMaxOpenConns.flagKey),
		DatabaseAutoMigrate:   viper.GetBool(databaseAutoMigrate.flagKey),
		RedisEnabled:          viper.GetBool(redisEnabled.flagKey),
		RedisHost:             viper.GetString(redisHost.flagKey),
		RedisPort:             viper.GetInt(redisPort.flagKey),
		RedisPassword:         viper.GetString(redisPassword.flagKey),
		TypingTTL:             viper.GetDuration(typingTTL.flagKey),
		MessageMaxLength:      viper.GetInt(messageMaxLength.flagKey),
		AllowAnonymous:        viper.GetBool(allowAnonymous.flagKey),
		MaxConnectionsPerUser: viper.GetInt(maxConnectionsPerUser.flagKey),
		SendBufferSize:        viper.GetInt(sendBufferSize.flagKey),
		SessionTTL:            viper.GetDuration(sessionTTL.flagKey),
		AllowedOrigins:        splitList(viper.GetString(allowedOrigins.flagKey)),
	}
}

func main() {
	ctx := context.Background()

	// .env is optional, real environment wins
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
