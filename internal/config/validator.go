package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/tilehook-project/tilehook/internal/protocol"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := &ValidationResult{}

	if _, err := protocol.ParseSide(cfg.Codec.DefaultSide); err != nil {
		result.AddError("codec.default_side", err.Error())
	}

	validateAPI(&cfg.API, result)
	validateCapture(&cfg.Capture, result)
	validateMQTT(&cfg.MQTT, result)

	if strings.TrimSpace(cfg.Database.Path) == "" {
		result.AddError("database.path", "database path is required")
	}
	if cfg.Database.SamplesPerKind < 0 {
		result.AddError("database.samples_per_kind", "must not be negative")
	}
	if cfg.Database.SampleQueue < 0 {
		result.AddError("database.sample_queue", "must not be negative")
	}

	if cfg.Timers.StatsFlushInterval < 1 {
		result.AddError("timers.stats_flush_interval_sec", "must be at least 1 second")
	} else if cfg.Timers.StatsFlushInterval < 10 {
		result.AddWarning("timers.stats_flush_interval_sec",
			"flushing stats more often than every 10s causes many small writes")
	}

	return result
}

func validateAPI(api *APIConfig, result *ValidationResult) {
	if !api.Enabled {
		return
	}
	validatePort(api.Port, "api.port", result)

	if api.Host != "" && api.Host != "localhost" && net.ParseIP(api.Host) == nil {
		result.AddError("api.host", fmt.Sprintf("not an IP address: %s", api.Host))
	}

	if strings.TrimSpace(api.AuthToken) == "" {
		result.AddWarning("api.auth_token", "no token configured, protected routes are open")
	} else if len(api.AuthToken) < 16 {
		result.AddWarning("api.auth_token", "token shorter than 16 characters")
	}

	if api.TLSEnabled && !api.SelfSignedCert {
		if strings.TrimSpace(api.TLSCertFile) == "" {
			result.AddError("api.tls_cert_file", "TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(api.TLSKeyFile) == "" {
			result.AddError("api.tls_key_file", "TLS key file is required when TLS is enabled")
		}
	}

	if api.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}

	for _, entry := range api.IPWhitelist {
		if net.ParseIP(entry) == nil {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				result.AddError("api.ip_whitelist", fmt.Sprintf("invalid IP or CIDR: %s", entry))
			}
		}
	}

	if api.MaxBodyBytes < 3 {
		result.AddError("api.max_body_bytes", "must allow at least one envelope header")
	}
}

func validateCapture(c *CaptureConfig, result *ValidationResult) {
	if !c.Enabled {
		return
	}
	if strings.TrimSpace(c.Directory) == "" {
		result.AddError("capture.directory", "capture directory is required when enabled")
	}
	if c.RetentionDays < 1 {
		result.AddError("capture.retention_days", "retention days must be at least 1")
	}
	if _, err := time.Parse("15:04", c.CleanupTime); err != nil {
		result.AddError("capture.cleanup_time", fmt.Sprintf("invalid time %q (want HH:MM)", c.CleanupTime))
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if m.UseTLS && m.CAFile == "" {
		result.AddWarning("mqtt.ca_file", "no CA file, the system pool is used")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(host string, port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
