package ldap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

const defaultKrb5Conf = "/etc/krb5.conf"

// kerberosBind performs a GSSAPI bind on conn.
func kerberosBind(ctx context.Context, conn *ldap.Conn, cfg *ConnectionConfig, server *ServerInfo) error {
	principal, realm, err := kerberosPrincipal(cfg)
	if err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	gssapiClient, err := createGSSAPIClient(ctx, cfg, principal, realm)
	if err != nil {
		LogKerberosEvent(ctx, "ticket_acquisition_failed", map[string]any{
			"principal": principal,
			"realm":     realm,
			"error":     err.Error(),
		})
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(cfg, server)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		LogKerberosEvent(ctx, "authentication_failed", map[string]any{
			"spn":   spn,
			"error": err.Error(),
		})
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	LogKerberosEvent(ctx, "ticket_acquired", map[string]any{
		"principal": principal,
		"spn":       spn,
	})
	return nil
}

// kerberosPrincipal splits the configured bind identity into principal and
// realm. An explicit realm wins over a "user@REALM" suffix.
func kerberosPrincipal(cfg *ConnectionConfig) (string, string, error) {
	if cfg == nil {
		return "", "", errors.New("configuration cannot be nil")
	}

	principal, realm := cfg.BindDN, cfg.KerberosRealm
	if user, suffix, ok := strings.Cut(principal, "@"); ok {
		principal = user
		if realm == "" {
			realm = suffix
		}
	}

	if realm == "" {
		return "", "", errors.New("kerberos realm is required (set kerberos_realm or include realm in bind_dn)")
	}

	return principal, realm, nil
}

// createGSSAPIClient creates a GSSAPI client based on the configuration.
// Priority order: explicit ccache, default ccache, keytab, password.
func createGSSAPIClient(ctx context.Context, cfg *ConnectionConfig, principal, realm string) (ldap.GSSAPIClient, error) {
	krb5conf := cfg.KerberosConfig
	switch {
	case krb5conf != "" && !fileExists(krb5conf):
		return nil, fmt.Errorf("kerberos configuration file not found at %s; create it or unset kerberos_config to discover KDCs through DNS:\n%s",
			krb5conf, exampleKrb5Conf(realm))
	case krb5conf == "" && fileExists(defaultKrb5Conf):
		krb5conf = defaultKrb5Conf
	case krb5conf == "":
		path, cleanup, err := writeRuntimeKrb5Conf(ctx, realm, cfg.Domain)
		if err != nil {
			return nil, err
		}
		// gokrb5 reads the file while the client is built.
		defer cleanup()
		krb5conf = path
	}

	if cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache) {
		LogKerberosEvent(ctx, "ccache_loaded", map[string]any{"ccache": cfg.KerberosCCache})
		return gssapi.NewClientFromCCache(cfg.KerberosCCache, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	if defaultCCache := defaultCCachePath(); fileExists(defaultCCache) {
		LogKerberosEvent(ctx, "ccache_loaded", map[string]any{"ccache": defaultCCache})
		return gssapi.NewClientFromCCache(defaultCCache, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	if principal == "" {
		return nil, errors.New("a principal is required when no credential cache is available")
	}

	if cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab) {
		LogKerberosEvent(ctx, "keytab_loaded", map[string]any{"keytab": cfg.KerberosKeytab})
		return gssapi.NewClientWithKeytab(principal, realm, cfg.KerberosKeytab, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	if cfg.Password != "" {
		return gssapi.NewClientWithPassword(principal, realm, cfg.Password, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	return nil, errors.New("no suitable credentials found for Kerberos authentication")
}

// buildServicePrincipal returns cfg.KerberosSPN, or ldap/<host> for server.
func buildServicePrincipal(cfg *ConnectionConfig, server *ServerInfo) (string, error) {
	if cfg != nil && cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}

	if server == nil || server.Host == "" {
		return "", errors.New("hostname is required for service principal")
	}

	host, _, _ := strings.Cut(server.Host, ":")
	return "ldap/" + host, nil
}

func defaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()
	return true
}

func exampleKrb5Conf(realm string) string {
	if realm == "" {
		realm = "EXAMPLE.COM"
	}
	kdc := "kdc." + strings.ToLower(realm)

	return fmt.Sprintf(`[libdefaults]
    default_realm = %s
    dns_lookup_kdc = false

[realms]
    %s = {
        kdc = %s:88
    }`, realm, realm, kdc)
}
