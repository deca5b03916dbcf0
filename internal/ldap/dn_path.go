package ldap

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// JoinDN returns the DN of rdn below base. rdn may itself hold several RDNs.
// An empty side is the identity.
func JoinDN(base, rdn string) string {
	switch {
	case rdn == "":
		return base
	case base == "":
		return rdn
	default:
		return rdn + "," + base
	}
}

// SplitDN returns the part of dn below base, such that JoinDN(base, result)
// names the same entry as dn. Attribute types and values are compared
// case-insensitively. It fails with ErrPathMismatch if dn is not base or a
// descendant of it.
func SplitDN(dn, base string) (string, error) {
	if base == "" {
		return dn, nil
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN %q: %w", dn, err)
	}

	parsedBase, err := ldap.ParseDN(base)
	if err != nil {
		return "", fmt.Errorf("invalid base DN %q: %w", base, err)
	}

	depth := len(parsed.RDNs) - len(parsedBase.RDNs)
	if depth < 0 {
		return "", fmt.Errorf("%w: %q is above %q", ErrPathMismatch, dn, base)
	}

	for i, rdn := range parsedBase.RDNs {
		if !parsed.RDNs[depth+i].EqualFold(rdn) {
			return "", fmt.Errorf("%w: %q is not below %q", ErrPathMismatch, dn, base)
		}
	}

	parts := make([]string, 0, depth)
	for _, rdn := range parsed.RDNs[:depth] {
		parts = append(parts, formatRDN(rdn))
	}

	return strings.Join(parts, ","), nil
}

// RDNType returns the attribute type of the leading RDN of name: "uid" for
// "uid=bob,ou=People". It returns "" when name has no type.
func RDNType(name string) string {
	typ, _, ok := strings.Cut(name, "=")
	if !ok {
		return ""
	}
	return strings.TrimSpace(typ)
}

// attributeType matches an RFC 4512 descriptor (keystring) or numeric OID.
var attributeType = regexp.MustCompile(`^(?:[A-Za-z][A-Za-z0-9-]*|[0-9]+(?:\.[0-9]+)+)$`)

// IsAttributeType reports whether name is a valid attribute type: a
// descriptor such as "uid" or a numeric OID such as "0.9.2342.19200300.100.1.1".
func IsAttributeType(name string) bool {
	return attributeType.MatchString(name)
}

// ParentDN returns dn without its leading RDN.
func ParentDN(dn string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN %q: %w", dn, err)
	}
	if len(parsed.RDNs) == 0 {
		return "", fmt.Errorf("%w: the root has no parent", ErrPathMismatch)
	}

	parts := make([]string, 0, len(parsed.RDNs)-1)
	for _, rdn := range parsed.RDNs[1:] {
		parts = append(parts, formatRDN(rdn))
	}
	return strings.Join(parts, ","), nil
}

// formatRDN renders rdn with re-escaped values, keeping the type spelling.
func formatRDN(rdn *ldap.RelativeDN) string {
	parts := make([]string, 0, len(rdn.Attributes))
	for _, attr := range rdn.Attributes {
		parts = append(parts, attr.Type+"="+EscapeDNValue(attr.Value))
	}
	return strings.Join(parts, "+")
}
