package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TILEHOOK_"

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
		log.Debug().Str("file", f).Msg("environment file loaded")
	}
	return nil
}

type envBinding struct {
	name  string
	apply func(c *Config, v string) error
}

func envString(dst func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func envInt(dst func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func envBool(dst func(c *Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

var envBindings = []envBinding{
	{"API_HOST", envString(func(c *Config) *string { return &c.API.Host })},
	{"API_PORT", envInt(func(c *Config) *int { return &c.API.Port })},
	{"API_TOKEN", envString(func(c *Config) *string { return &c.API.AuthToken })},
	{"API_ENABLED", envBool(func(c *Config) *bool { return &c.API.Enabled })},
	{"CAPTURE_ENABLED", envBool(func(c *Config) *bool { return &c.Capture.Enabled })},
	{"CAPTURE_DIR", envString(func(c *Config) *string { return &c.Capture.Directory })},
	{"DB_PATH", envString(func(c *Config) *string { return &c.Database.Path })},
	{"DEFAULT_SIDE", envString(func(c *Config) *string { return &c.Codec.DefaultSide })},
	{"LOG_LEVEL", envString(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_DIR", envString(func(c *Config) *string { return &c.Logging.Directory })},
	{"MQTT_ENABLED", envBool(func(c *Config) *bool { return &c.MQTT.Enabled })},
	{"MQTT_BROKER", envString(func(c *Config) *string { return &c.MQTT.BrokerURL })},
	{"MQTT_USERNAME", envString(func(c *Config) *string { return &c.MQTT.Username })},
	{"MQTT_PASSWORD", envString(func(c *Config) *string { return &c.MQTT.Password })},
	{"RULES_PATH", envString(func(c *Config) *string { return &c.Rules.Path })},
	{"CATCHABLE_NPCS", func(c *Config, v string) error {
		var ids []int16
		for _, f := range strings.Split(v, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			n, err := strconv.ParseInt(f, 10, 16)
			if err != nil {
				return err
			}
			ids = append(ids, int16(n))
		}
		c.Codec.CatchableNPCs = ids
		return nil
	}},
}

// ApplyEnv overlays TILEHOOK_* variables on the configuration. Overrides
// are not saved back to the file. It returns the names that were applied.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) ([]string, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var applied []string
	for _, b := range envBindings {
		name := EnvPrefix + b.name
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := b.apply(c, v); err != nil {
			return applied, fmt.Errorf("invalid %s=%q: %w", name, v, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}
