// tilehook decodes, inspects and rewrites Terraria-style game packets.
//
// It runs as a stream filter between a game client and server, records
// traffic to compressed capture files, replays captures through the codec
// to check byte-exact round trips, and exposes an inspection API with
// Prometheus metrics and optional MQTT telemetry.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/tilehook-project/tilehook/internal/config"
	"github.com/tilehook-project/tilehook/internal/util"
)

// Version is set by ldflags.
var Version = "dev"

var (
	configDirFlag = &cli.StringFlag{
		Name:    "config-dir",
		Aliases: []string{"c"},
		Value:   config.DefaultConfigDir,
		Usage:   "directory holding config.json",
		EnvVars: []string{config.EnvPrefix + "CONFIG_DIR"},
	}
	envFileFlag = &cli.StringSliceFlag{
		Name:  "env-file",
		Usage: "dotenv files to load before applying TILEHOOK_* overrides",
		Value: cli.NewStringSlice(".env"),
	}
	sideFlag = &cli.StringFlag{
		Name:    "side",
		Aliases: []string{"s"},
		Usage:   "side that produced the frames (server or client); defaults to codec.default_side",
	}
)

func main() {
	app := &cli.App{
		Name:    "tilehook",
		Usage:   "game packet codec, filter and capture tool",
		Version: Version,
		Flags:   []cli.Flag{configDirFlag, envFileFlag},
		Before:  setup,
		Commands: []*cli.Command{
			initCmd,
			serveCmd,
			filterCmd,
			decodeCmd,
			replayCmd,
			importCmd,
			shellCmd,
			kindsCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("tilehook failed")
		os.Exit(1)
	}
}

// setup loads the environment and configuration shared by every command.
func setup(c *cli.Context) error {
	// console only until the config names a log directory
	early := util.DefaultLogConfig()
	early.Directory = ""
	if err := util.InitLogger(early); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := config.LoadDotEnv(c.StringSlice(envFileFlag.Name)...); err != nil {
		return err
	}

	cfg, err := config.Load(c.String(configDirFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applied, err := cfg.ApplyEnv(nil)
	if err != nil {
		return err
	}

	lc := cfg.GetLogging()
	if err := util.InitLogger(util.LogConfig{
		Level:      lc.Level,
		Directory:  lc.Directory,
		MaxBackups: lc.MaxBackups,
		Console:    lc.Console,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}
	if len(applied) > 0 {
		log.Info().Strs("vars", applied).Msg("environment overrides applied")
	}

	log.Debug().
		Str("version", Version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Str("config", cfg.Path()).
		Msg("tilehook starting")

	c.App.Metadata = map[string]interface{}{"config": cfg}
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata["config"].(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

// validate logs warnings and fails on configuration errors.
func validate(cfg *config.Config) error {
	result := config.Validate(cfg)
	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if result.IsValid() {
		return nil
	}
	for _, e := range result.Errors {
		log.Error().Str("field", e.Field).Msg(e.Message)
	}
	return fmt.Errorf("configuration validation failed with %d errors", len(result.Errors))
}
