package ldap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrorCategory represents different categories of LDAP errors.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryConflict       ErrorCategory = "conflict"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// ErrPathMismatch is returned by SplitDN when a DN is not below the given base.
var ErrPathMismatch = errors.New("dn is not rooted at base")

// LDAPError carries the operation, result code and DN of a failed request.
type LDAPError struct {
	Operation string        // The operation that failed
	Category  ErrorCategory // Error category
	LDAPCode  uint16        // LDAP result code
	Message   string        // Human-readable message
	ServerMsg string        // Server-provided message
	DN        string        // DN involved in the operation (if applicable)
	Cause     error         // Underlying error
}

func (e *LDAPError) Error() string {
	var parts []string

	if e.LDAPCode > 0 {
		parts = append(parts, fmt.Sprintf("LDAP %s failed (code %d)", e.Operation, e.LDAPCode))
	} else {
		parts = append(parts, fmt.Sprintf("LDAP %s failed", e.Operation))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.ServerMsg != "" && e.ServerMsg != e.Message {
		parts = append(parts, fmt.Sprintf("server: %s", e.ServerMsg))
	}

	if e.DN != "" {
		parts = append(parts, fmt.Sprintf("DN: %s", e.DN))
	}

	return strings.Join(parts, " - ")
}

func (e *LDAPError) Unwrap() error {
	return e.Cause
}

// NewLDAPError classifies err as a failure of operation against dn.
func NewLDAPError(operation, dn string, err error) *LDAPError {
	if err == nil {
		return nil
	}

	ldapErr := &LDAPError{
		Operation: operation,
		DN:        dn,
		Cause:     err,
	}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		ldapErr.LDAPCode = resultErr.ResultCode
		if resultErr.Err != nil {
			ldapErr.ServerMsg = resultErr.Err.Error()
		}
		ldapErr.Category = categorizeError(resultErr.ResultCode)
		ldapErr.Message = resultCodeMessage(resultErr.ResultCode)
	} else {
		ldapErr.Category = categorizeGenericError(err)
		ldapErr.Message = err.Error()
	}

	return ldapErr
}

// categorizeError categorizes an error based on LDAP result code.
func categorizeError(code uint16) ErrorCategory {
	switch code {
	case ldap.LDAPResultInvalidCredentials,
		ldap.LDAPResultInappropriateAuthentication,
		ldap.LDAPResultStrongAuthRequired,
		ldap.LDAPResultAuthMethodNotSupported:
		return ErrorCategoryAuthentication

	case ldap.LDAPResultInsufficientAccessRights,
		ldap.LDAPResultUnwillingToPerform:
		return ErrorCategoryPermission

	case ldap.LDAPResultNoSuchObject,
		ldap.LDAPResultNoSuchAttribute,
		ldap.LDAPResultUndefinedAttributeType:
		return ErrorCategoryNotFound

	case ldap.LDAPResultEntryAlreadyExists,
		ldap.LDAPResultAttributeOrValueExists,
		ldap.LDAPResultObjectClassViolation,
		ldap.LDAPResultNotAllowedOnNonLeaf:
		return ErrorCategoryConflict

	case ldap.LDAPResultInvalidAttributeSyntax,
		ldap.LDAPResultConstraintViolation,
		ldap.LDAPResultInvalidDNSyntax,
		ldap.LDAPResultNamingViolation:
		return ErrorCategoryValidation

	case ldap.LDAPResultServerDown,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultAdminLimitExceeded:
		return ErrorCategoryServer

	case ldap.LDAPResultConnectError,
		ldap.LDAPResultProtocolError,
		ldap.ErrorNetwork:
		return ErrorCategoryConnection

	default:
		return ErrorCategoryUnknown
	}
}

// categorizeGenericError categorizes non-LDAP errors by message.
func categorizeGenericError(err error) ErrorCategory {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return ErrorCategoryConnection
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "network"),
		strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "broken pipe"):
		return ErrorCategoryConnection
	case strings.Contains(errStr, "authentication"),
		strings.Contains(errStr, "credentials"),
		strings.Contains(errStr, "kerberos"):
		return ErrorCategoryAuthentication
	case strings.Contains(errStr, "permission"),
		strings.Contains(errStr, "denied"):
		return ErrorCategoryPermission
	}

	return ErrorCategoryUnknown
}

func resultCodeMessage(code uint16) string {
	if msg, ok := ldap.LDAPResultCodeMap[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown LDAP error (code %d)", code)
}

// WrapError wraps err with operation context unless it is already wrapped.
func WrapError(operation, dn string, err error) error {
	if err == nil {
		return nil
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		if ldapErr.Operation == "" {
			ldapErr.Operation = operation
		}
		return err
	}

	return NewLDAPError(operation, dn, err)
}

// ResultCode returns the LDAP result code carried by err, or 0 if none.
func ResultCode(err error) uint16 {
	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) && ldapErr.LDAPCode != 0 {
		return ldapErr.LDAPCode
	}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		return resultErr.ResultCode
	}

	return 0
}

// IsNoSuchObject reports whether err is a noSuchObject result.
func IsNoSuchObject(err error) bool {
	return err != nil && ResultCode(err) == ldap.LDAPResultNoSuchObject
}

// GetErrorCategory returns the category of an error.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		return ldapErr.Category
	}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		return categorizeError(resultErr.ResultCode)
	}

	return categorizeGenericError(err)
}

// IsNotFoundError checks if an error indicates a "not found" condition.
func IsNotFoundError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryNotFound
}

// IsConflictError checks if an error indicates a conflict (already exists).
func IsConflictError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryConflict
}

// IsAuthenticationError checks if an error indicates an authentication problem.
func IsAuthenticationError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryAuthentication
}

// IsConnectionError checks if an error indicates a transport problem.
func IsConnectionError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryConnection
}
