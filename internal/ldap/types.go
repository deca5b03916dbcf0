package ldap

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// ConnectionConfig holds configuration for the directory connection.
type ConnectionConfig struct {
	// Connection settings
	Domain   string        // Domain for SRV discovery
	LDAPURLs []string      // Direct LDAP URLs (overrides domain)
	BaseDN   string        // Base DN for searches
	Timeout  time.Duration // Dial and request timeout
	PageSize uint32        // Page size for paged listings

	// Authentication settings
	BindDN         string // DN or UPN used for simple bind
	Password       string // Password for simple bind
	KerberosRealm  string // Kerberos realm for GSSAPI authentication
	KerberosKeytab string // Path to Kerberos keytab file
	KerberosCCache string // Path to Kerberos credential cache
	KerberosConfig string // Path to Kerberos config file (krb5.conf)
	KerberosSPN    string // Service principal; derived from the host when empty

	// TLS settings
	TLSConfig         *tls.Config // Custom TLS configuration
	UseTLS            bool        // Require TLS (LDAPS or StartTLS)
	SkipTLS           bool        // Plain LDAP, no StartTLS
	TLSCACertFile     string      // Path to CA certificate file
	TLSCACert         string      // CA certificate content
	TLSClientCertFile string      // Path to client certificate file
	TLSClientKeyFile  string      // Path to client private key file
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Timeout:  30 * time.Second,
		PageSize: 1000,
		UseTLS:   true,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// ServerInfo contains information about a directory server.
type ServerInfo struct {
	Host     string
	Port     int
	UseTLS   bool
	Priority int
	Weight   int
	Source   string // "srv", "config"
}

// Client is the directory operations surface used by the tree layer and CLI.
type Client interface {
	// Connection management
	Connect(ctx context.Context) error
	Close() error

	// Authentication
	Bind(ctx context.Context, bindDN, password string) error
	BindWithConfig(ctx context.Context) error

	// Basic operations
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	Add(ctx context.Context, req *AddRequest) error
	Modify(ctx context.Context, req *ModifyRequest) error
	Delete(ctx context.Context, dn string) error

	// Health and identity
	Ping(ctx context.Context) error
	WhoAmI(ctx context.Context) (string, error)
}

// SearchRequest encapsulates LDAP search parameters.
type SearchRequest struct {
	BaseDN       string
	Scope        SearchScope
	Filter       string
	Attributes   []string
	SizeLimit    int
	TimeLimit    time.Duration
	DerefAliases DerefAliases
}

// SearchResult contains search results and metadata.
type SearchResult struct {
	Entries []*ldap.Entry
	Total   int
	HasMore bool
}

// Attribute is one named, ordered, multi-valued attribute.
type Attribute struct {
	Name   string
	Values []string
}

// AddRequest creates an entry with the given attributes.
type AddRequest struct {
	DN         string
	Attributes []Attribute
}

// ModifyOperation is the kind of a single modification.
type ModifyOperation int

const (
	ModifyAdd ModifyOperation = iota
	ModifyDelete
	ModifyReplace
)

func (o ModifyOperation) String() string {
	switch o {
	case ModifyAdd:
		return "add"
	case ModifyDelete:
		return "delete"
	case ModifyReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Modification is one change within a ModifyRequest. Values is empty for a
// delete of the whole attribute.
type Modification struct {
	Operation ModifyOperation
	Attribute string
	Values    []string
}

// ModifyRequest applies its changes to one entry, in order, atomically.
type ModifyRequest struct {
	DN      string
	Changes []Modification
}

// SearchScope defines LDAP search scope.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// DerefAliases defines alias dereferencing behavior.
type DerefAliases int

const (
	NeverDerefAliases DerefAliases = iota
	DerefInSearching
	DerefFindingBaseObj
	DerefAlways
)

// AuthMethod defines authentication method types.
type AuthMethod int

const (
	AuthMethodAnonymous  AuthMethod = iota // No bind
	AuthMethodSimpleBind                   // DN/password authentication
	AuthMethodKerberos                     // GSSAPI/Kerberos authentication
	AuthMethodExternal                     // SASL EXTERNAL over a client certificate
)

// String returns string representation of authentication method.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodAnonymous:
		return "anonymous"
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	case AuthMethodExternal:
		return "external"
	default:
		return "unknown"
	}
}

// GetAuthMethod determines the authentication method from the configuration.
func (c *ConnectionConfig) GetAuthMethod() AuthMethod {
	// Kerberos authentication takes precedence
	if c.KerberosRealm != "" && (c.KerberosKeytab != "" || c.KerberosCCache != "" || c.BindDN != "") {
		return AuthMethodKerberos
	}

	if c.BindDN != "" && c.Password != "" {
		return AuthMethodSimpleBind
	}

	if c.TLSClientCertFile != "" && c.TLSClientKeyFile != "" {
		return AuthMethodExternal
	}

	return AuthMethodAnonymous
}

// ConnectionError represents connection-related errors.
type ConnectionError struct {
	message   string
	retryable bool
	cause     error
}

func (e *ConnectionError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

// IsRetryable reports whether reconnecting may succeed.
func (e *ConnectionError) IsRetryable() bool {
	return e.retryable
}

func (e *ConnectionError) Unwrap() error {
	return e.cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, retryable bool, cause error) *ConnectionError {
	return &ConnectionError{
		message:   message,
		retryable: retryable,
		cause:     cause,
	}
}
