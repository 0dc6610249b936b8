package config

import (
	"net/url"
)

const maskedValue = "********"

// MaskSensitiveSettings returns a copy of config with passwords, tokens and
// URI credentials replaced so it can be logged or printed.
func MaskSensitiveSettings(config *Config) *Config {
	masked := *config
	masked.MongoDB.URI = MaskURI(config.MongoDB.URI)
	masked.AppUser.Password = maskIfSet(config.AppUser.Password)
	masked.Secrets.Vault.Token = maskIfSet(config.Secrets.Vault.Token)
	masked.Secrets.AWS.AccessKey = maskIfSet(config.Secrets.AWS.AccessKey)
	masked.Secrets.AWS.SecretKey = maskIfSet(config.Secrets.AWS.SecretKey)
	return &masked
}

// MaskURI hides the password of a connection URI. Unparseable input is
// masked entirely.
func MaskURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return maskedValue
	}
	if u.User == nil {
		return raw
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), maskedValue)
	}
	return u.String()
}

// LogFields flattens the masked settings into key/value pairs for zap's
// sugared logger.
func LogFields(config *Config) []interface{} {
	m := MaskSensitiveSettings(config)
	return []interface{}{
		"mongodb_uri", m.MongoDB.URI,
		"database", m.MongoDB.Database,
		"connect_timeout", m.MongoDB.ConnectTimeout,
		"operation_timeout", m.MongoDB.OperationTimeout,
		"connect_retries", m.MongoDB.ConnectRetries,
		"plan_file", m.Plan.File,
		"secret_provider", m.Secrets.Provider,
		"pushgateway", m.Metrics.PushgatewayURL != "",
		"tracing", m.Tracing.Enabled,
	}
}

func maskIfSet(v string) string {
	if v == "" {
		return ""
	}
	return maskedValue
}
