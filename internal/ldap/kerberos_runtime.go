package ldap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
)

// runtimeKrb5Conf renders a krb5.conf that discovers KDCs through DNS.
func runtimeKrb5Conf(realm, domain string) string {
	realm = strings.ToUpper(realm)
	if domain == "" {
		domain = realm
	}
	domain = strings.ToLower(domain)

	return fmt.Sprintf(`[libdefaults]
    default_realm = %s
    dns_lookup_kdc = true
    dns_lookup_realm = false
    rdns = false

[realms]
    %s = {
    }

[domain_realm]
    .%s = %s
    %s = %s
`, realm, realm, domain, realm, domain, realm)
}

// writeRuntimeKrb5Conf validates and writes a runtime krb5.conf to a
// temporary file. The caller removes it once the client is built.
func writeRuntimeKrb5Conf(ctx context.Context, realm, domain string) (string, func(), error) {
	content := runtimeKrb5Conf(realm, domain)
	if _, err := krb5config.NewFromString(content); err != nil {
		return "", nil, fmt.Errorf("generated krb5.conf is invalid: %w", err)
	}

	f, err := os.CreateTemp("", "ldaptree-krb5-*.conf")
	if err != nil {
		return "", nil, fmt.Errorf("creating runtime krb5.conf: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing runtime krb5.conf: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("writing runtime krb5.conf: %w", err)
	}

	tflog.SubsystemDebug(ctx, SubsystemKerberos, "Generated runtime krb5.conf", map[string]any{
		"realm": strings.ToUpper(realm),
		"path":  f.Name(),
	})

	return f.Name(), cleanup, nil
}
