package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
)

// Env is the deployment profile selected by the ENV variable.
type Env string

const (
	EnvLocal Env = "local"
	EnvDev   Env = "dev"
	EnvProd  Env = "prod"
)

const (
	DefaultOwnerPrefix      = "s!"
	DefaultPermissionsPath  = "data/commands_permissions/main_commands.json"
	DefaultLogDir           = "."
	DefaultLogRetentionDays = 14
)

var (
	ErrMissingToken = errors.New("DISCORD_TOKEN is not set in .env file")
	ErrMissingEnv   = errors.New("ENV is not set")
	ErrInvalidEnv   = errors.New("invalid environment")
)

type Config struct {
	Env                 Env
	Token               string
	GuildID             string
	DatabasePath        string
	OwnerIDs            []snowflake.ID
	OwnerPrefix         string
	LoggingChannelID    snowflake.ID
	SupportServerInvite string
	PermissionsPath     string
	LogDir              string
	LogRetentionDays    int
	MetricsAddr         string
	Silent              bool
	Debug               bool
}

// ParseEnv validates an ENV value. There is no default profile.
func ParseEnv(s string) (Env, error) {
	switch Env(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", ErrMissingEnv
	case EnvLocal:
		return EnvLocal, nil
	case EnvDev:
		return EnvDev, nil
	case EnvProd:
		return EnvProd, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidEnv, s)
}

// Load reads .env and the profile specific .env.<env> file, then builds the
// configuration from the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env, err := ParseEnv(os.Getenv("ENV"))
	if err != nil {
		return nil, err
	}
	_ = godotenv.Load(".env." + string(env))

	return FromEnv(env, os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests can avoid the
// process environment.
func FromEnv(env Env, getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Env:                 env,
		Token:               getenv("DISCORD_TOKEN"),
		GuildID:             strings.TrimSpace(getenv("GUILD_ID")),
		DatabasePath:        getenv("DATABASE_PATH"),
		OwnerPrefix:         getenv("OWNER_PREFIX"),
		SupportServerInvite: getenv("SUPPORT_SERVER_INVITE"),
		PermissionsPath:     getenv("PERMISSIONS_PATH"),
		LogDir:              getenv("LOG_DIR"),
		LogRetentionDays:    DefaultLogRetentionDays,
		MetricsAddr:         getenv("METRICS_ADDR"),
	}

	cfg.Silent, _ = strconv.ParseBool(getenv("SILENT"))
	cfg.Debug, _ = strconv.ParseBool(getenv("DEBUG"))

	if cfg.DatabasePath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		cfg.DatabasePath = filepath.Join(folder, "singularity-"+string(env)+".db")
	}
	if cfg.OwnerPrefix == "" {
		cfg.OwnerPrefix = DefaultOwnerPrefix
	}
	if cfg.PermissionsPath == "" {
		cfg.PermissionsPath = DefaultPermissionsPath
	}
	if cfg.LogDir == "" {
		cfg.LogDir = DefaultLogDir
	}

	if raw := getenv("LOG_RETENTION_DAYS"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_RETENTION_DAYS: %w", err)
		}
		cfg.LogRetentionDays = days
	}

	if raw := strings.TrimSpace(getenv("LOGGING_CHANNEL_ID")); raw != "" {
		id, err := snowflake.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid LOGGING_CHANNEL_ID: %w", err)
		}
		cfg.LoggingChannelID = id
	}

	if raw := getenv("OWNER_IDS"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := snowflake.Parse(part)
			if err != nil {
				return nil, fmt.Errorf("invalid OWNER_IDS entry %q: %w", part, err)
			}
			cfg.OwnerIDs = append(cfg.OwnerIDs, id)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	if len(c.OwnerPrefix) == 0 {
		return fmt.Errorf("OWNER_PREFIX must not be empty")
	}
	if c.LogRetentionDays < 0 {
		return fmt.Errorf("LOG_RETENTION_DAYS must not be negative")
	}
	return nil
}

// DevGuildID returns the development guild, or nil when commands are global.
func (c *Config) DevGuildID() *snowflake.ID {
	if c.GuildID == "" {
		return nil
	}
	id, err := snowflake.Parse(c.GuildID)
	if err != nil {
		return nil
	}
	return &id
}

func (c *Config) IsOwner(id snowflake.ID) bool {
	for _, owner := range c.OwnerIDs {
		if owner == id {
			return true
		}
	}
	return false
}
