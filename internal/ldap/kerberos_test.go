package ldap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKerberosPrincipal(t *testing.T) {
	tests := []struct {
		name          string
		config        *ConnectionConfig
		wantPrincipal string
		wantRealm     string
		wantErr       string
	}{
		{
			name:    "nil config",
			wantErr: "configuration cannot be nil",
		},
		{
			name:          "explicit realm",
			config:        &ConnectionConfig{BindDN: "svc", KerberosRealm: "EXAMPLE.COM"},
			wantPrincipal: "svc",
			wantRealm:     "EXAMPLE.COM",
		},
		{
			name:          "realm from bind identity",
			config:        &ConnectionConfig{BindDN: "svc@EXAMPLE.COM"},
			wantPrincipal: "svc",
			wantRealm:     "EXAMPLE.COM",
		},
		{
			name:          "explicit realm wins",
			config:        &ConnectionConfig{BindDN: "svc@OTHER.ORG", KerberosRealm: "EXAMPLE.COM"},
			wantPrincipal: "svc",
			wantRealm:     "EXAMPLE.COM",
		},
		{
			name:    "missing realm",
			config:  &ConnectionConfig{BindDN: "svc"},
			wantErr: "kerberos realm is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal, realm, err := kerberosPrincipal(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrincipal, principal)
			assert.Equal(t, tt.wantRealm, realm)
		})
	}
}

func TestBuildServicePrincipal(t *testing.T) {
	tests := []struct {
		name    string
		config  *ConnectionConfig
		server  *ServerInfo
		want    string
		wantErr bool
	}{
		{
			name:   "derived from host",
			config: &ConnectionConfig{},
			server: &ServerInfo{Host: "dc1.example.com", Port: 389},
			want:   "ldap/dc1.example.com",
		},
		{
			name:   "port stripped",
			config: &ConnectionConfig{},
			server: &ServerInfo{Host: "dc1.example.com:636"},
			want:   "ldap/dc1.example.com",
		},
		{
			name:   "explicit override",
			config: &ConnectionConfig{KerberosSPN: "ldap/vip.example.com"},
			server: &ServerInfo{Host: "dc1.example.com"},
			want:   "ldap/vip.example.com",
		},
		{
			name:    "missing host",
			config:  &ConnectionConfig{},
			server:  &ServerInfo{},
			wantErr: true,
		},
		{
			name:    "missing server",
			config:  &ConnectionConfig{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildServicePrincipal(tt.config, tt.server)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateGSSAPIClientMissingKrb5Conf(t *testing.T) {
	cfg := &ConnectionConfig{
		BindDN:         "svc",
		Password:       "secret",
		KerberosRealm:  "EXAMPLE.COM",
		KerberosConfig: filepath.Join(t.TempDir(), "missing.conf"),
	}

	_, err := createGSSAPIClient(t.Context(), cfg, "svc", "EXAMPLE.COM")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kerberos configuration file not found")
	assert.Contains(t, err.Error(), "default_realm = EXAMPLE.COM")
}

func TestCreateGSSAPIClientNoCredentials(t *testing.T) {
	dir := t.TempDir()
	krb5conf := filepath.Join(dir, "krb5.conf")
	require.NoError(t, os.WriteFile(krb5conf, []byte(exampleKrb5Conf("EXAMPLE.COM")), 0o600))
	t.Setenv("KRB5CCNAME", "FILE:"+filepath.Join(dir, "no-ccache"))

	cfg := &ConnectionConfig{
		BindDN:         "svc",
		KerberosRealm:  "EXAMPLE.COM",
		KerberosConfig: krb5conf,
	}

	_, err := createGSSAPIClient(t.Context(), cfg, "svc", "EXAMPLE.COM")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no suitable credentials")
}

func TestDefaultCCachePath(t *testing.T) {
	t.Setenv("KRB5CCNAME", "FILE:/tmp/custom_cc")
	assert.Equal(t, "/tmp/custom_cc", defaultCCachePath())

	t.Setenv("KRB5CCNAME", "/tmp/plain_cc")
	assert.Equal(t, "/tmp/plain_cc", defaultCCachePath())
}

func TestFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "present")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	assert.True(t, fileExists(path))
	assert.False(t, fileExists(path+".missing"))
	assert.False(t, fileExists(""))
}

func TestConnectionConfig_GetAuthMethod(t *testing.T) {
	tests := []struct {
		name   string
		config *ConnectionConfig
		want   AuthMethod
	}{
		{
			name:   "simple bind",
			config: &ConnectionConfig{BindDN: "cn=admin,dc=example,dc=com", Password: "secret"},
			want:   AuthMethodSimpleBind,
		},
		{
			name:   "kerberos with keytab",
			config: &ConnectionConfig{BindDN: "svc", KerberosRealm: "EXAMPLE.COM", KerberosKeytab: "/etc/krb5.keytab"},
			want:   AuthMethodKerberos,
		},
		{
			name:   "kerberos with ccache only",
			config: &ConnectionConfig{KerberosRealm: "EXAMPLE.COM", KerberosCCache: "/tmp/krb5cc_1000"},
			want:   AuthMethodKerberos,
		},
		{
			name:   "external",
			config: &ConnectionConfig{TLSClientCertFile: "client.pem", TLSClientKeyFile: "client.key"},
			want:   AuthMethodExternal,
		},
		{
			name:   "anonymous",
			config: &ConnectionConfig{},
			want:   AuthMethodAnonymous,
		},
		{
			name:   "bind dn without password",
			config: &ConnectionConfig{BindDN: "cn=admin,dc=example,dc=com"},
			want:   AuthMethodAnonymous,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.config.GetAuthMethod()
			assert.Equal(t, tt.want, got, "got %s", got)
		})
	}
}

func TestAuthMethod_String(t *testing.T) {
	assert.Equal(t, "anonymous", AuthMethodAnonymous.String())
	assert.Equal(t, "simple", AuthMethodSimpleBind.String())
	assert.Equal(t, "kerberos", AuthMethodKerberos.String())
	assert.Equal(t, "external", AuthMethodExternal.String())
	assert.Equal(t, "unknown", AuthMethod(42).String())
}

func TestRuntimeKrb5Conf(t *testing.T) {
	conf := runtimeKrb5Conf("example.com", "Corp.Example.com")

	assert.Contains(t, conf, "default_realm = EXAMPLE.COM")
	assert.Contains(t, conf, "dns_lookup_kdc = true")
	assert.Contains(t, conf, ".corp.example.com = EXAMPLE.COM")
}

func TestWriteRuntimeKrb5Conf(t *testing.T) {
	path, cleanup, err := writeRuntimeKrb5Conf(t.Context(), "EXAMPLE.COM", "")
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "default_realm = EXAMPLE.COM")

	cleanup()
	assert.False(t, fileExists(path))
}
