/*
Package ldap is the directory client used by ldaptree.

# Connection

A Client holds one connection, opened on first use. Servers come from
explicit ldap:// or ldaps:// URLs or from DNS SRV discovery on a domain
(_ldaps._tcp preferred over _ldap._tcp, then the bare domain on the standard
ports). Plain connections are upgraded with StartTLS unless TLS is skipped.

Authentication is chosen from the configuration:

  - Kerberos (GSSAPI) when a realm and a ccache, keytab or principal are set
  - simple bind with a DN and password
  - SASL EXTERNAL with a TLS client certificate
  - anonymous otherwise

Requests are serialised and never retried. A transport failure closes the
connection and the next request dials again.

# Names

JoinDN and SplitDN convert between absolute DNs and names relative to a
base. SplitDN fails with ErrPathMismatch for a DN outside the base.

# Errors

Failures are returned as *LDAPError with the result code and a category.
Use ResultCode, IsNoSuchObject and the Is*Error helpers rather than
inspecting messages.

# Logging

All logging goes through tflog subsystems ("ldap", "kerberos", "directory"); register
them with WithSubsystems on a context that carries a root logger.
*/
package ldap
