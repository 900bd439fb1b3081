package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RunSetupWizard asks for the settings a first run needs and saves them.
// Empty answers keep the shown default.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "tilehook setup")
	fmt.Fprintln(out)

	cfg.mu.Lock()

	fmt.Fprintln(out, "-- Codec --")
	cfg.Codec.DefaultSide = promptString(reader, out, "Default side (server/client)", cfg.Codec.DefaultSide)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "-- Inspection API --")
	cfg.API.Enabled = promptBool(reader, out, "Enable inspection API", cfg.API.Enabled)
	if cfg.API.Enabled {
		cfg.API.Host = promptString(reader, out, "Listen address", cfg.API.Host)
		cfg.API.Port = promptInt(reader, out, "Listen port", cfg.API.Port)
		token := cfg.API.AuthToken
		if token == "" {
			token = uuid.NewString()
		}
		cfg.API.AuthToken = promptString(reader, out, "API token", token)
		cfg.API.TLSEnabled = promptBool(reader, out, "Serve over TLS", cfg.API.TLSEnabled)
		if cfg.API.TLSEnabled && cfg.API.TLSCertFile == "" {
			cfg.API.SelfSignedCert = promptBool(reader, out, "Generate a self-signed certificate", true)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "-- Capture --")
	cfg.Capture.Enabled = promptBool(reader, out, "Record traffic captures", cfg.Capture.Enabled)
	if cfg.Capture.Enabled {
		cfg.Capture.Directory = promptString(reader, out, "Capture directory", cfg.Capture.Directory)
		cfg.Capture.RetentionDays = promptInt(reader, out, "Keep captures for days", cfg.Capture.RetentionDays)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "-- MQTT Telemetry --")
	cfg.MQTT.Enabled = promptBool(reader, out, "Enable MQTT telemetry", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.BrokerURL = promptString(reader, out, "Broker host", cfg.MQTT.BrokerURL)
		cfg.MQTT.Port = promptInt(reader, out, "Broker port", cfg.MQTT.Port)
	}

	cfg.mu.Unlock()

	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Fprintln(out, "\nConfiguration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(out, "\nConfiguration saved to %s\n", cfg.Path())
	return nil
}

func promptString(reader *bufio.Reader, out io.Writer, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(out, "  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptInt(reader *bufio.Reader, out io.Writer, prompt string, defaultVal int) int {
	fmt.Fprintf(out, "  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, out io.Writer, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
