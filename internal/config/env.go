package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override secrets from the config file.
const (
	EnvToken      = "SHAREBOT_TOKEN"
	EnvStorageDSN = "SHAREBOT_STORAGE_DSN"
	EnvRedisURL   = "SHAREBOT_REDIS_URL"
	EnvAMQPURL    = "SHAREBOT_AMQP_URL"
	EnvOwners     = "SHAREBOT_OWNERS"
)

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if cfg == nil {
		return nil
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, EnvToken)
	set(&cfg.Storage.DSN, EnvStorageDSN)
	set(&cfg.Session.RedisURL, EnvRedisURL)
	set(&cfg.Events.AMQPURL, EnvAMQPURL)

	if raw := strings.TrimSpace(getenv(EnvOwners)); raw != "" {
		ids, err := parseOwners(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvOwners, err)
		}
		cfg.Telegram.OwnerUserIDs = ids
	}
	return nil
}

// parseOwners reads a comma or whitespace separated list of user ids.
func parseOwners(raw string) ([]int64, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == ';' })
	out := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", f)
		}
		out = append(out, id)
	}
	return out, nil
}
