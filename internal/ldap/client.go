package ldap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

const defaultFilter = "(objectClass=*)"

// client implements Client over a single lazily established connection.
// Requests are serialised on mu; a transport failure drops the connection so
// the next request redials. Nothing is retried.
type client struct {
	mu        sync.Mutex
	config    *ConnectionConfig
	discovery *SRVDiscovery
	conn      *ldap.Conn
	server    *ServerInfo
	closed    bool
}

// NewClient validates config and returns a client. No connection is made
// until the first request or an explicit Connect.
func NewClient(ctx context.Context, config *ConnectionConfig) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tflog.SubsystemDebug(ctx, SubsystemLDAP, "Created LDAP client", map[string]any{
		"domain":          config.Domain,
		"ldap_urls_count": len(config.LDAPURLs),
		"auth_method":     config.GetAuthMethod().String(),
		"use_tls":         config.UseTLS,
	})

	return &client{
		config:    config,
		discovery: NewSRVDiscovery(),
	}, nil
}

func validateConfig(config *ConnectionConfig) error {
	if config.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	if len(config.LDAPURLs) == 0 && config.Domain == "" {
		return errors.New("either domain or LDAP URLs must be specified")
	}

	for _, raw := range config.LDAPURLs {
		if _, err := ParseLDAPURL(raw); err != nil {
			return fmt.Errorf("invalid LDAP URL %s: %w", raw, err)
		}
	}

	if config.UseTLS && config.SkipTLS {
		return errors.New("use_tls and skip_tls are mutually exclusive")
	}

	return nil
}

// Connect establishes and authenticates the connection if not already open.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked(ctx)
}

func (c *client) connectLocked(ctx context.Context) error {
	if c.closed {
		return NewConnectionError("client is closed", false, nil)
	}
	if c.conn != nil && !c.conn.IsClosing() {
		return nil
	}

	servers, err := resolveServers(ctx, c.config, c.discovery)
	if err != nil {
		return NewConnectionError("server resolution failed", true, err)
	}

	var lastErr error
	for _, server := range servers {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := dial(ctx, c.config, server)
		if err != nil {
			LogConnectionEvent(ctx, "connection_failed", map[string]any{
				"url":   ServerInfoToURL(server),
				"error": err.Error(),
			})
			lastErr = err
			continue
		}

		if err := authenticate(ctx, conn, c.config, server); err != nil {
			conn.Close()
			// Credentials are the same for every server.
			return err
		}

		c.conn, c.server = conn, server
		LogConnectionEvent(ctx, "connection_established", map[string]any{
			"url": ServerInfoToURL(server),
		})
		return nil
	}

	return NewConnectionError("no reachable directory server", true, lastErr)
}

// do runs fn on the open connection, connecting first if needed.
func (c *client) do(ctx context.Context, operation, dn string, fn func(conn *ldap.Conn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	err := fn(c.conn)
	if err == nil {
		return nil
	}

	LogLDAPError(ctx, SubsystemLDAP, operation, err, map[string]any{"dn": dn})
	if ldap.IsErrorWithCode(err, ldap.ErrorNetwork) {
		LogConnectionEvent(ctx, "connection_lost", map[string]any{
			"url":   ServerInfoToURL(c.server),
			"error": err.Error(),
		})
		c.conn.Close()
		c.conn, c.server = nil, nil
	}

	return WrapError(operation, dn, err)
}

// Close closes the connection. The client cannot be reused.
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn != nil {
		c.conn.Close()
		c.conn, c.server = nil, nil
	}
	return nil
}

// Bind re-authenticates the open connection as bindDN.
func (c *client) Bind(ctx context.Context, bindDN, password string) error {
	return c.do(ctx, "bind", bindDN, func(conn *ldap.Conn) error {
		return conn.Bind(bindDN, password)
	})
}

// BindWithConfig re-authenticates using the configured method.
func (c *client) BindWithConfig(ctx context.Context) error {
	return c.do(ctx, "bind", c.config.BindDN, func(conn *ldap.Conn) error {
		return authenticate(ctx, conn, c.config, c.server)
	})
}

// Search performs a single-request LDAP search.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, errors.New("search request cannot be nil")
	}

	var result *SearchResult
	err := LogOperation(ctx, SubsystemLDAP, "search", searchFields(req), func() error {
		return c.do(ctx, "search", req.BaseDN, func(conn *ldap.Conn) error {
			res, err := conn.Search(toLDAPSearch(req, nil))
			if err != nil {
				return err
			}
			result = &SearchResult{Entries: res.Entries, Total: len(res.Entries)}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// SearchWithPaging performs an LDAP search using the simple paged results
// control, collecting every page.
func (c *client) SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, errors.New("search request cannot be nil")
	}

	pageSize := c.config.PageSize
	if pageSize == 0 {
		pageSize = 1000
	}

	var entries []*ldap.Entry
	fields := searchFields(req)
	fields["page_size"] = pageSize

	err := LogOperation(ctx, SubsystemLDAP, "paged_search", fields, func() error {
		return c.do(ctx, "search", req.BaseDN, func(conn *ldap.Conn) error {
			paging := ldap.NewControlPaging(pageSize)
			for page := 1; ; page++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				res, err := conn.Search(toLDAPSearch(req, []ldap.Control{paging}))
				if err != nil {
					return err
				}
				entries = append(entries, res.Entries...)

				tflog.SubsystemTrace(ctx, SubsystemLDAP, "Received search page", map[string]any{
					"page":          page,
					"page_entries":  len(res.Entries),
					"total_entries": len(entries),
				})

				response, ok := ldap.FindControl(res.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
				if !ok || len(response.Cookie) == 0 {
					return nil
				}
				paging.SetCookie(response.Cookie)
			}
		})
	})
	if err != nil {
		return nil, err
	}

	return &SearchResult{Entries: entries, Total: len(entries)}, nil
}

// Add creates a new LDAP entry.
func (c *client) Add(ctx context.Context, req *AddRequest) error {
	if req == nil {
		return errors.New("add request cannot be nil")
	}
	if req.DN == "" {
		return errors.New("add request requires a DN")
	}

	return LogOperation(ctx, SubsystemLDAP, "add", map[string]any{
		"dn":              req.DN,
		"attribute_count": len(req.Attributes),
	}, func() error {
		return c.do(ctx, "add", req.DN, func(conn *ldap.Conn) error {
			return conn.Add(toLDAPAdd(req))
		})
	})
}

// Modify applies req.Changes to one entry in a single request.
func (c *client) Modify(ctx context.Context, req *ModifyRequest) error {
	if req == nil {
		return errors.New("modify request cannot be nil")
	}
	if req.DN == "" {
		return errors.New("modify request requires a DN")
	}
	if len(req.Changes) == 0 {
		return nil
	}

	return LogOperation(ctx, SubsystemLDAP, "modify", map[string]any{
		"dn":           req.DN,
		"change_count": len(req.Changes),
	}, func() error {
		return c.do(ctx, "modify", req.DN, func(conn *ldap.Conn) error {
			return conn.Modify(toLDAPModify(req))
		})
	})
}

// Delete removes a leaf entry.
func (c *client) Delete(ctx context.Context, dn string) error {
	if dn == "" {
		return errors.New("delete requires a DN")
	}

	return LogOperation(ctx, SubsystemLDAP, "delete", map[string]any{"dn": dn}, func() error {
		return c.do(ctx, "delete", dn, func(conn *ldap.Conn) error {
			return conn.Del(ldap.NewDelRequest(dn, nil))
		})
	})
}

// Ping reads the root DSE.
func (c *client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", "", func(conn *ldap.Conn) error {
		_, err := conn.Search(ldap.NewSearchRequest(
			"", ldap.ScopeBaseObject, ldap.NeverDerefAliases,
			1, int(c.config.Timeout/time.Second), false,
			defaultFilter, []string{"namingContexts"}, nil,
		))
		return err
	})
}

// WhoAmI returns the authorization identity of the bound connection.
func (c *client) WhoAmI(ctx context.Context) (string, error) {
	var authzID string
	err := c.do(ctx, "whoami", "", func(conn *ldap.Conn) error {
		res, err := conn.WhoAmI(nil)
		if err != nil {
			return err
		}
		authzID = res.AuthzID
		return nil
	})
	return authzID, err
}

func searchFields(req *SearchRequest) map[string]any {
	return map[string]any{
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
	}
}

func toLDAPSearch(req *SearchRequest, controls []ldap.Control) *ldap.SearchRequest {
	filter := req.Filter
	if filter == "" {
		filter = defaultFilter
	}

	return ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		int(req.DerefAliases),
		req.SizeLimit,
		int(req.TimeLimit/time.Second),
		false,
		filter,
		req.Attributes,
		controls,
	)
}

func toLDAPAdd(req *AddRequest) *ldap.AddRequest {
	add := ldap.NewAddRequest(req.DN, nil)
	for _, attr := range req.Attributes {
		add.Attribute(attr.Name, attr.Values)
	}
	return add
}

func toLDAPModify(req *ModifyRequest) *ldap.ModifyRequest {
	mod := ldap.NewModifyRequest(req.DN, nil)
	for _, change := range req.Changes {
		switch change.Operation {
		case ModifyAdd:
			mod.Add(change.Attribute, change.Values)
		case ModifyDelete:
			mod.Delete(change.Attribute, change.Values)
		case ModifyReplace:
			mod.Replace(change.Attribute, change.Values)
		}
	}
	return mod
}
