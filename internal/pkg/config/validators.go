// internal/pkg/config/validators.go
package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// rule checks one aspect of a loaded configuration
type rule func(*Config) error

// Validate applies the rules for the configured environment and reports
// every failure at once.
func (c *Config) Validate() error {
	rules := []rule{requiredFields, limits, eventsBackend}
	if c.IsProduction() {
		rules = append(rules, productionHardening)
	}
	if c.Security.AuthEnabled {
		rules = append(rules, authSettings)
	}

	var errs []error
	for _, r := range rules {
		if err := r(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func limits(c *Config) error {
	var errs []error
	if c.Database.MaxConnections < c.Database.MinConnections {
		errs = append(errs, fmt.Errorf("database max_connections must be >= min_connections"))
	}
	if c.Redis.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("redis pool_size must be positive"))
	}
	if c.Security.RateLimitRequests <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit_requests must be positive"))
	}
	if c.Alerts.DefaultThreshold < 0 {
		errs = append(errs, fmt.Errorf("alert default threshold cannot be negative"))
	}
	if c.Reports.SourceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("report source timeout must be positive"))
	}
	return errors.Join(errs...)
}

func eventsBackend(c *Config) error {
	switch c.Events.Backend {
	case "asynq", "inline", "none":
		return nil
	case "kafka":
		var errs []error
		if len(c.Events.KafkaBrokers) == 0 {
			errs = append(errs, fmt.Errorf("%w: kafka brokers", ErrMissingRequiredConfig))
		}
		if c.Events.KafkaTopic == "" {
			errs = append(errs, fmt.Errorf("%w: kafka topic", ErrMissingRequiredConfig))
		}
		return errors.Join(errs...)
	default:
		return fmt.Errorf("unknown events backend %q", c.Events.Backend)
	}
}

func productionHardening(c *Config) error {
	var errs []error
	if c.Database.Password == "" || strings.HasPrefix(c.Database.Password, "MISSING_") {
		errs = append(errs, fmt.Errorf("%w: database password", ErrMissingRequiredConfig))
	}
	if c.Database.SSLMode == "disable" {
		errs = append(errs, fmt.Errorf("database SSL must be enabled in production"))
	}
	if !c.Security.SecureHeaders {
		errs = append(errs, fmt.Errorf("secure headers must be enabled in production"))
	}
	if len(c.Security.AllowedOrigins) == 0 {
		errs = append(errs, fmt.Errorf("allowed origins must be configured in production"))
	}
	if c.Security.JWTSecret == devJWTSecret {
		errs = append(errs, fmt.Errorf("default JWT secret cannot be used in production"))
	}
	if c.Server.TLSEnabled && (c.Server.TLSCertFile == "" || c.Server.TLSKeyFile == "") {
		errs = append(errs, fmt.Errorf("TLS cert and key files must be provided when TLS is enabled"))
	}
	return errors.Join(errs...)
}

func authSettings(c *Config) error {
	var errs []error
	if len(c.Security.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("JWT secret must be at least 32 characters"))
	}
	if c.IsProduction() && slices.Contains(c.Security.AllowedOrigins, "*") {
		errs = append(errs, fmt.Errorf("wildcard origin (*) not allowed in production"))
	}
	return errors.Join(errs...)
}

// requiredFields walks the config and rejects empty fields tagged required:"true"
func requiredFields(c *Config) error {
	return walkRequired(reflect.ValueOf(c).Elem(), "")
}

func walkRequired(v reflect.Value, prefix string) error {
	var errs []error
	for i := 0; i < v.NumField(); i++ {
		f, sf := v.Field(i), v.Type().Field(i)
		name := sf.Name
		if prefix != "" {
			name = prefix + "." + name
		}

		if sf.Tag.Get("required") == "true" && unset(f) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingRequiredConfig, name))
		}
		if f.Kind() == reflect.Struct {
			if err := walkRequired(f, name); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// unset treats zero values and MISSING_ placeholders as absent
func unset(v reflect.Value) bool {
	if v.Kind() == reflect.String {
		return v.String() == "" || strings.HasPrefix(v.String(), "MISSING_")
	}
	return v.IsZero()
}
