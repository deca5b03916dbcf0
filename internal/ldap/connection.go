package ldap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// resolveServers returns the configured URLs, or SRV-discovered servers.
func resolveServers(ctx context.Context, cfg *ConnectionConfig, discovery *SRVDiscovery) ([]*ServerInfo, error) {
	if len(cfg.LDAPURLs) > 0 {
		servers := make([]*ServerInfo, 0, len(cfg.LDAPURLs))
		for _, raw := range cfg.LDAPURLs {
			server, err := ParseLDAPURL(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid LDAP URL %s: %w", raw, err)
			}
			servers = append(servers, server)
		}
		return servers, nil
	}

	if cfg.Domain == "" {
		return nil, errors.New("either domain or LDAP URLs must be specified")
	}

	discoveryCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	return discovery.DiscoverServers(discoveryCtx, cfg.Domain)
}

// dial opens a connection to server, upgrading plain connections with
// StartTLS unless TLS is skipped.
func dial(ctx context.Context, cfg *ConnectionConfig, server *ServerInfo) (*ldap.Conn, error) {
	url := ServerInfoToURL(server)

	tlsConfig, err := buildTLSConfig(cfg, server.Host)
	if err != nil {
		return nil, err
	}

	LogConnectionEvent(ctx, "connection_attempt", map[string]any{
		"url":    url,
		"source": server.Source,
	})

	opts := []ldap.DialOpt{ldap.DialWithDialer(&net.Dialer{Timeout: cfg.Timeout})}
	if server.UseTLS {
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig))
	}

	conn, err := ldap.DialURL(url, opts...)
	if err != nil {
		return nil, NewConnectionError("failed to connect to "+url, true, err)
	}

	if !server.UseTLS && cfg.UseTLS && !cfg.SkipTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			conn.Close()
			return nil, NewConnectionError("StartTLS failed on "+url, false, err)
		}
	}

	if cfg.Timeout > 0 {
		conn.SetTimeout(cfg.Timeout)
	}

	return conn, nil
}

// authenticate binds conn using the configured method.
func authenticate(ctx context.Context, conn *ldap.Conn, cfg *ConnectionConfig, server *ServerInfo) error {
	method := cfg.GetAuthMethod()
	start := time.Now()

	tflog.SubsystemDebug(ctx, SubsystemLDAP, "Performing authentication", map[string]any{
		"auth_method": method.String(),
	})

	var err error
	switch method {
	case AuthMethodAnonymous:
		return nil
	case AuthMethodSimpleBind:
		err = conn.Bind(cfg.BindDN, cfg.Password)
	case AuthMethodKerberos:
		err = kerberosBind(ctx, conn, cfg, server)
	case AuthMethodExternal:
		err = conn.ExternalBind()
	default:
		err = fmt.Errorf("unsupported authentication method: %s", method)
	}

	fields := map[string]any{
		"auth_method": method.String(),
		"bind_dn":     cfg.BindDN,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		LogConnectionEvent(ctx, "authentication_failed", fields)
		return WrapError("bind", cfg.BindDN, err)
	}

	LogConnectionEvent(ctx, "authentication_success", fields)
	return nil
}
