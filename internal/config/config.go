// Package config loads ldaptree settings from a file, LDAPTREE_* environment
// variables and struct-tag defaults.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"

	"github.com/isometry/ldaptree/internal/ldap"
)

// EnvPrefix is the prefix of environment overrides: LDAPTREE_AUTH_PASSWORD
// sets auth.password.
const EnvPrefix = "LDAPTREE"

// Config is the complete ldaptree configuration.
type Config struct {
	Connection ConnectionConfig `mapstructure:"connection"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Projection ProjectionConfig `mapstructure:"projection"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ConnectionConfig selects and reaches the directory server.
type ConnectionConfig struct {
	// URLs are tried in order. When empty, servers are discovered from
	// Domain through DNS SRV records.
	URLs     []string      `mapstructure:"urls" validate:"dive,startswith=ldap"`
	Domain   string        `mapstructure:"domain" validate:"omitempty,fqdn"`
	BaseDN   string        `mapstructure:"base_dn"`
	Timeout  time.Duration `mapstructure:"timeout" default:"30s" validate:"gt=0"`
	PageSize uint32        `mapstructure:"page_size" default:"1000" validate:"gt=0,lte=100000"`
	TLS      TLSConfig     `mapstructure:"tls"`
}

// TLSConfig controls transport security.
type TLSConfig struct {
	// Mode is "required" (LDAPS or StartTLS), "disabled" (plain LDAP) or
	// "opportunistic" (whatever the URL scheme says).
	Mode               string `mapstructure:"mode" default:"required" validate:"oneof=required disabled opportunistic"`
	CACertFile         string `mapstructure:"ca_cert_file" validate:"omitempty,file"`
	CACert             string `mapstructure:"ca_cert"`
	ClientCertFile     string `mapstructure:"client_cert_file" validate:"omitempty,file"`
	ClientKeyFile      string `mapstructure:"client_key_file" validate:"omitempty,file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// AuthConfig selects the bind method. Kerberos is used when a realm and a
// credential source are given, simple bind when a username and password are,
// SASL EXTERNAL when only a client certificate is, otherwise anonymous.
type AuthConfig struct {
	Username string         `mapstructure:"username"`
	Password string         `mapstructure:"password"`
	Kerberos KerberosConfig `mapstructure:"kerberos"`
}

// KerberosConfig configures GSSAPI binds.
type KerberosConfig struct {
	Realm  string `mapstructure:"realm" validate:"omitempty,uppercase"`
	Keytab string `mapstructure:"keytab" validate:"omitempty,file"`
	Config string `mapstructure:"config"`
	CCache string `mapstructure:"ccache"`
	SPN    string `mapstructure:"spn"`
}

// ProjectionConfig tunes the tree projection.
type ProjectionConfig struct {
	// LiveUpdate saves an edited entry before a collection cursor moves on.
	// When false edits are kept until the collection is flushed.
	LiveUpdate bool `mapstructure:"live_update" default:"true"`

	// Attributes limits what is loaded for each entry; empty loads all user
	// attributes.
	Attributes []string `mapstructure:"attributes"`
}

// LoggingConfig controls the log level.
type LoggingConfig struct {
	Level string `mapstructure:"level" default:"warn" validate:"oneof=trace debug info warn error off TRACE DEBUG INFO WARN ERROR OFF"`
}

// MetricsConfig controls metrics collection.
type MetricsConfig struct {
	// TextfilePath, when set, receives the metrics in the node exporter
	// textfile format when the command exits.
	TextfilePath string `mapstructure:"textfile_path"`
}

// keys lists every setting that can be overridden from the environment.
// viper only matches environment variables for keys it already knows.
var keys = []string{
	"connection.urls",
	"connection.domain",
	"connection.base_dn",
	"connection.timeout",
	"connection.page_size",
	"connection.tls.mode",
	"connection.tls.ca_cert_file",
	"connection.tls.ca_cert",
	"connection.tls.client_cert_file",
	"connection.tls.client_key_file",
	"connection.tls.insecure_skip_verify",
	"auth.username",
	"auth.password",
	"auth.kerberos.realm",
	"auth.kerberos.keytab",
	"auth.kerberos.config",
	"auth.kerberos.ccache",
	"auth.kerberos.spn",
	"projection.live_update",
	"projection.attributes",
	"logging.level",
	"metrics.textfile_path",
}

// Load reads configuration from configPath (or the default location when
// empty), applies LDAPTREE_* environment overrides and defaults, and
// validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// ConfigDir returns $XDG_CONFIG_HOME/ldaptree, falling back to
// ~/.config/ldaptree and then the working directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ldaptree")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "ldaptree")
}

// ConnectionConfig converts the configuration into client settings.
func (c *Config) ConnectionConfig() *ldap.ConnectionConfig {
	cc := ldap.DefaultConfig()

	cc.LDAPURLs = c.Connection.URLs
	cc.Domain = c.Connection.Domain
	cc.BaseDN = c.Connection.BaseDN
	cc.Timeout = c.Connection.Timeout
	cc.PageSize = c.Connection.PageSize

	switch c.Connection.TLS.Mode {
	case "disabled":
		cc.UseTLS, cc.SkipTLS = false, true
	case "opportunistic":
		cc.UseTLS, cc.SkipTLS = false, false
	default:
		cc.UseTLS, cc.SkipTLS = true, false
	}
	cc.TLSCACertFile = c.Connection.TLS.CACertFile
	cc.TLSCACert = c.Connection.TLS.CACert
	cc.TLSClientCertFile = c.Connection.TLS.ClientCertFile
	cc.TLSClientKeyFile = c.Connection.TLS.ClientKeyFile
	if c.Connection.TLS.InsecureSkipVerify {
		cc.TLSConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, //nolint:gosec // explicitly requested
		}
	}

	cc.BindDN = c.Auth.Username
	cc.Password = c.Auth.Password
	cc.KerberosRealm = c.Auth.Kerberos.Realm
	cc.KerberosKeytab = c.Auth.Kerberos.Keytab
	cc.KerberosConfig = c.Auth.Kerberos.Config
	cc.KerberosCCache = c.Auth.Kerberos.CCache
	cc.KerberosSPN = c.Auth.Kerberos.SPN

	return cc
}
