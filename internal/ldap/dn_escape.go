package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// EscapeDNValue escapes an attribute value for use inside an RDN (RFC 4514).
//
//   - "Doe, John" becomes "Doe\, John"
//   - " John " becomes "\ John\ "
//   - "#123" becomes "\#123"
func EscapeDNValue(value string) string {
	if !NeedsDNEscaping(value) {
		return value
	}

	var sb strings.Builder
	sb.Grow(len(value) + 8)

	last := len(value) - 1
	for i := 0; i < len(value); i++ {
		b := value[i]
		switch {
		case b == 0:
			sb.WriteString(`\00`)
			continue
		case b == ',', b == '+', b == '"', b == '\\', b == '<', b == '>', b == ';', b == '=':
			sb.WriteByte('\\')
		case b == '#' && i == 0:
			sb.WriteByte('\\')
		case b == ' ' && (i == 0 || i == last):
			sb.WriteByte('\\')
		}
		sb.WriteByte(b)
	}

	return sb.String()
}

// NeedsDNEscaping reports whether EscapeDNValue would change value.
func NeedsDNEscaping(value string) bool {
	if value == "" {
		return false
	}

	if value[0] == ' ' || value[len(value)-1] == ' ' || value[0] == '#' {
		return true
	}

	return strings.ContainsAny(value, ",+\"\\<>;=\x00")
}

// UnescapeDNValue reverses EscapeDNValue, including hex pairs such as "\2C".
func UnescapeDNValue(value string) (string, error) {
	if !strings.Contains(value, `\`) {
		return value, nil
	}

	dn, err := ldap.ParseDN("x=" + value)
	if err != nil {
		return "", fmt.Errorf("invalid escaped value %q: %w", value, err)
	}
	if len(dn.RDNs) != 1 || len(dn.RDNs[0].Attributes) != 1 {
		return "", fmt.Errorf("invalid escaped value %q: unescaped separator", value)
	}

	return dn.RDNs[0].Attributes[0].Value, nil
}
