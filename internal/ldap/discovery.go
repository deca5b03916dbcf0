package ldap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// srvResolver is the subset of *net.Resolver used for discovery.
type srvResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// SRVDiscovery locates directory servers for a domain through DNS SRV records.
type SRVDiscovery struct {
	resolver srvResolver
}

// NewSRVDiscovery creates a new SRV discovery instance.
func NewSRVDiscovery() *SRVDiscovery {
	return &SRVDiscovery{resolver: net.DefaultResolver}
}

// DiscoverServers discovers servers for domain. _ldaps._tcp records are
// preferred; _ldap._tcp is consulted only when none exist. With no records at
// all, the domain name itself is tried on the standard ports.
func (d *SRVDiscovery) DiscoverServers(ctx context.Context, domain string) ([]*ServerInfo, error) {
	if domain == "" {
		return nil, errors.New("domain cannot be empty")
	}

	start := time.Now()
	tflog.SubsystemDebug(ctx, SubsystemLDAP, "Starting server discovery for domain", map[string]any{
		"domain": domain,
	})

	services := []struct {
		name   string
		useTLS bool
	}{
		{"_ldaps._tcp." + domain, true},
		{"_ldap._tcp." + domain, false},
	}

	var servers []*ServerInfo
	for _, svc := range services {
		found, err := d.lookupSRV(ctx, svc.name, svc.useTLS)
		if err != nil {
			tflog.SubsystemDebug(ctx, SubsystemLDAP, "SRV lookup failed, continuing to next service", map[string]any{
				"service": svc.name,
				"error":   err.Error(),
			})
			continue
		}
		servers = append(servers, found...)
		if svc.useTLS {
			break
		}
	}

	if len(servers) == 0 {
		tflog.SubsystemDebug(ctx, SubsystemLDAP, "No SRV records found, using fallback servers", map[string]any{
			"domain": domain,
		})
		return fallbackServers(domain), nil
	}

	sortServersByPriority(servers)

	tflog.SubsystemDebug(ctx, SubsystemLDAP, "Server discovery completed", map[string]any{
		"duration":     time.Since(start).String(),
		"server_count": len(servers),
	})
	return servers, nil
}

func (d *SRVDiscovery) lookupSRV(ctx context.Context, service string, useTLS bool) ([]*ServerInfo, error) {
	_, records, err := d.resolver.LookupSRV(ctx, "", "", service)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup failed for %s: %w", service, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no SRV records found for %s", service)
	}

	servers := make([]*ServerInfo, 0, len(records))
	for _, srv := range records {
		servers = append(servers, &ServerInfo{
			Host:     strings.TrimSuffix(srv.Target, "."),
			Port:     int(srv.Port),
			UseTLS:   useTLS,
			Priority: int(srv.Priority),
			Weight:   int(srv.Weight),
			Source:   "srv",
		})
	}
	return servers, nil
}

func fallbackServers(domain string) []*ServerInfo {
	return []*ServerInfo{
		{Host: domain, Port: 636, UseTLS: true, Priority: 0, Weight: 100, Source: "fallback"},
		{Host: domain, Port: 389, UseTLS: false, Priority: 1, Weight: 100, Source: "fallback"},
	}
}

// sortServersByPriority orders by ascending priority, then descending weight.
func sortServersByPriority(servers []*ServerInfo) {
	slices.SortStableFunc(servers, func(a, b *ServerInfo) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		return b.Weight - a.Weight
	})
}

// ValidateServerInfo validates server information.
func ValidateServerInfo(server *ServerInfo) error {
	if server == nil {
		return errors.New("server info cannot be nil")
	}
	if server.Host == "" {
		return errors.New("server host cannot be empty")
	}
	if server.Port <= 0 || server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", server.Port)
	}
	if server.Priority < 0 {
		return fmt.Errorf("priority cannot be negative: %d", server.Priority)
	}
	if server.Weight < 0 {
		return fmt.Errorf("weight cannot be negative: %d", server.Weight)
	}
	return nil
}

// ServerInfoToURL converts ServerInfo to LDAP URL.
func ServerInfoToURL(server *ServerInfo) string {
	scheme := "ldap"
	if server.UseTLS {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(server.Host, strconv.Itoa(server.Port)))
}

// ParseLDAPURL parses an ldap:// or ldaps:// URL into ServerInfo.
func ParseLDAPURL(raw string) (*ServerInfo, error) {
	if raw == "" {
		return nil, errors.New("URL cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	server := &ServerInfo{
		Host:   u.Hostname(),
		Weight: 100,
		Source: "config",
	}

	switch u.Scheme {
	case "ldaps":
		server.UseTLS = true
		server.Port = 636
	case "ldap":
		server.Port = 389
	default:
		return nil, errors.New("unsupported scheme, must be ldap:// or ldaps://")
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %s", p)
		}
		server.Port = port
	}

	return server, ValidateServerInfo(server)
}
