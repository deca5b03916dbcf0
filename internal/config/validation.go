package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-hclog"

	"github.com/isometry/ldaptree/internal/ldap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	for i, raw := range cfg.Connection.URLs {
		if _, err := ldap.ParseLDAPURL(raw); err != nil {
			return fmt.Errorf("connection.urls[%d]: %w", i, err)
		}
	}

	if len(cfg.Connection.URLs) == 0 && cfg.Connection.Domain == "" {
		return errors.New("connection: either urls or domain must be set")
	}

	if cfg.Auth.Username != "" && cfg.Auth.Password == "" && cfg.Auth.Kerberos.Realm == "" {
		return errors.New("auth: password is required for simple bind")
	}

	tlsCfg := cfg.Connection.TLS
	if (tlsCfg.ClientCertFile == "") != (tlsCfg.ClientKeyFile == "") {
		return errors.New("connection.tls: client_cert_file and client_key_file must be set together")
	}
	if tlsCfg.ClientCertFile != "" && tlsCfg.Mode == "disabled" {
		return errors.New("connection.tls: a client certificate needs TLS")
	}

	return nil
}

// LogLevel returns the configured level for the log subsystems.
func (c *Config) LogLevel() hclog.Level {
	return hclog.LevelFromString(strings.ToLower(c.Logging.Level))
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
