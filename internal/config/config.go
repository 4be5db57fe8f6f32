// Package config defines the configuration contract and handles loading and
// validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyBotToken         = "BOT_TOKEN"
	KeyBotOwner         = "BOT_OWNER"
	KeyMongoURL         = "MONGO_URL"
	KeyMongoDB          = "MONGO_DB"
	KeyDefaultPayeeName = "DEFAULT_PAYEE_NAME"
	KeyDefaultNote      = "DEFAULT_NOTE"
	KeyLogChannel       = "LOG_CHANNEL"
	KeyAppEnv           = "APP_ENV"
	KeyLogLevel         = "LOG_LEVEL"
	KeyHTTPPort         = "HTTP_PORT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv    = EnvProduction
	DefaultLogLevel  = "info"
	DefaultHTTPPort  = 8080
	DefaultPayeeName = "UPI Payment"
	DefaultNote      = "Payment"

	// Database names by environment.
	DefaultMongoDBProd = "upi_qr_bot"
	DefaultMongoDBDev  = "upi_qr_bot_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyBotToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyBotOwner,
		Example:     "123456789",
		Required:    true,
		Description: "Telegram user_id allowed to run /users and /broadcast.",
	},
	{
		Key:         KeyMongoURL,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string for the users collection.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Default:     DefaultMongoDBProd,
		Description: "MongoDB database name.",
		Notes:       "Defaults to " + DefaultMongoDBProd + " (production) or " + DefaultMongoDBDev + " (development).",
	},
	{
		Key:         KeyDefaultPayeeName,
		Example:     DefaultPayeeName,
		Default:     DefaultPayeeName,
		Description: "Payee name used when /qr omits one.",
	},
	{
		Key:         KeyDefaultNote,
		Example:     DefaultNote,
		Default:     DefaultNote,
		Description: "Transaction note used when /qr omits one.",
	},
	{
		Key:         KeyLogChannel,
		Example:     "-1001234567890",
		Description: "Chat id notified about new users; disabled when unset.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/metrics port.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	BotToken         string
	BotOwnerID       int64
	MongoURL         string
	MongoDB          string
	DefaultPayeeName string
	DefaultNote      string
	LogChannelID     int64
	AppEnv           string
	LogLevel         string
	HTTPPort         int
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:           firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		BotToken:         strings.TrimSpace(os.Getenv(KeyBotToken)),
		MongoURL:         strings.TrimSpace(os.Getenv(KeyMongoURL)),
		MongoDB:          strings.TrimSpace(os.Getenv(KeyMongoDB)),
		DefaultPayeeName: firstNonEmpty(strings.TrimSpace(os.Getenv(KeyDefaultPayeeName)), DefaultPayeeName),
		DefaultNote:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeyDefaultNote)), DefaultNote),
		LogLevel:         firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:         DefaultHTTPPort,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	if cfg.MongoDB == "" {
		if cfg.AppEnv == EnvDevelopment {
			cfg.MongoDB = DefaultMongoDBDev
		} else {
			cfg.MongoDB = DefaultMongoDBProd
		}
	}

	missing := make([]string, 0)

	if cfg.BotToken == "" {
		missing = append(missing, KeyBotToken)
	}

	ownerRaw := strings.TrimSpace(os.Getenv(KeyBotOwner))
	if ownerRaw == "" {
		missing = append(missing, KeyBotOwner)
	} else {
		ownerID, parseErr := strconv.ParseInt(ownerRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyBotOwner, parseErr)
		}
		cfg.BotOwnerID = ownerID
	}

	if cfg.MongoURL == "" {
		missing = append(missing, KeyMongoURL)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if err := validateMongoURL(cfg.MongoURL); err != nil {
		return Config{}, err
	}

	logChannelRaw := strings.TrimSpace(os.Getenv(KeyLogChannel))
	if logChannelRaw != "" {
		channelID, parseErr := strconv.ParseInt(logChannelRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyLogChannel, parseErr)
		}
		cfg.LogChannelID = channelID
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// FormatRedacted renders the resolved configuration with secrets masked,
// suitable for startup diagnostics.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"bot_token: " + maskToken(cfg.BotToken),
		"bot_owner: " + strconv.FormatInt(cfg.BotOwnerID, 10),
		"mongo_url: " + redactMongoURL(cfg.MongoURL),
		"mongo_db: " + cfg.MongoDB,
		"default_payee_name: " + cfg.DefaultPayeeName,
		"default_note: " + cfg.DefaultNote,
		"log_channel: " + strconv.FormatInt(cfg.LogChannelID, 10),
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
	}

	return strings.Join(lines, "\n")
}

func maskToken(token string) string {
	if len(token) <= 4 {
		return "redacted"
	}

	return token[:4] + "...redacted"
}

func redactMongoURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "unparseable"
	}

	parsed.User = nil
	return parsed.String()
}

func validateMongoURL(raw string) error {
	if strings.HasPrefix(raw, "mongodb://") || strings.HasPrefix(raw, "mongodb+srv://") {
		return nil
	}

	return fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURL)
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
