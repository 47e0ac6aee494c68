package ir

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Error is a call-aborting failure reported by any govkit component.
//
// Every precondition violation surfaces as an *Error carrying the failure
// reason (Code) and the offending values (Details). There is no
// warn-and-continue path: the call that produced the error has no effect.
type Error struct {
	// Code identifies the failure reason.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details holds the offending values, rendered as strings.
	Details map[string]string
}

// ErrorCode categorizes failures.
type ErrorCode string

// Authorization errors: the caller lacks the required capability.
const (
	ErrCodeUnauthorized                 ErrorCode = "UNAUTHORIZED"
	ErrCodeSetupApplicationUnauthorized ErrorCode = "SETUP_APPLICATION_UNAUTHORIZED"
	ErrCodeDaoUnauthorized              ErrorCode = "DAO_UNAUTHORIZED"
)

// State-conflict errors: a precondition about current state does not hold.
const (
	ErrCodeAlreadyGranted                     ErrorCode = "ALREADY_GRANTED"
	ErrCodeAlreadyRevoked                     ErrorCode = "ALREADY_REVOKED"
	ErrCodeAlreadyFrozen                      ErrorCode = "ALREADY_FROZEN"
	ErrCodeFrozen                             ErrorCode = "FROZEN"
	ErrCodeAnyAddressDisallowedForWhoAndWhere ErrorCode = "ANY_ADDRESS_DISALLOWED_FOR_WHO_AND_WHERE"
	ErrCodePermissionsForAnyAddressDisallowed ErrorCode = "PERMISSIONS_FOR_ANY_ADDRESS_DISALLOWED"
	ErrCodeConditionNotAContract              ErrorCode = "CONDITION_NOT_A_CONTRACT"
	ErrCodeSetupAlreadyPrepared               ErrorCode = "SETUP_ALREADY_PREPARED"
	ErrCodeSetupNotApplicable                 ErrorCode = "SETUP_NOT_APPLICABLE"
	ErrCodePluginAlreadyInstalled             ErrorCode = "PLUGIN_ALREADY_INSTALLED"
	ErrCodeInvalidAppliedSetupID              ErrorCode = "INVALID_APPLIED_SETUP_ID"
	ErrCodeInvalidUpdateVersion               ErrorCode = "INVALID_UPDATE_VERSION"
	ErrCodePluginProxyUpgradeFailed           ErrorCode = "PLUGIN_PROXY_UPGRADE_FAILED"
	ErrCodeReentrantCall                      ErrorCode = "REENTRANT_CALL"
	ErrCodeActionFailed                       ErrorCode = "ACTION_FAILED"
	ErrCodeUnknownCallback                    ErrorCode = "UNKNOWN_CALLBACK"
	ErrCodeAlreadyInitialized                 ErrorCode = "ALREADY_INITIALIZED"
)

// Reference errors: a referenced version or registry entry is malformed or missing.
const (
	ErrCodeRepoNonexistent                     ErrorCode = "REPO_NONEXISTENT"
	ErrCodeVersionHashDoesNotExist             ErrorCode = "VERSION_HASH_DOES_NOT_EXIST"
	ErrCodeInvalidReleaseIncrement             ErrorCode = "INVALID_RELEASE_INCREMENT"
	ErrCodeReleaseZeroNotAllowed               ErrorCode = "RELEASE_ZERO_NOT_ALLOWED"
	ErrCodeReleaseDoesNotExist                 ErrorCode = "RELEASE_DOES_NOT_EXIST"
	ErrCodeBuildLimitReached                   ErrorCode = "BUILD_LIMIT_REACHED"
	ErrCodeEmptyReleaseMetadata                ErrorCode = "EMPTY_RELEASE_METADATA"
	ErrCodePluginSetupAlreadyInPreviousRelease ErrorCode = "PLUGIN_SETUP_ALREADY_IN_PREVIOUS_RELEASE"
	ErrCodeInvalidPluginSubdomain              ErrorCode = "INVALID_PLUGIN_SUBDOMAIN"
	ErrCodeSubdomainAlreadyRegistered          ErrorCode = "SUBDOMAIN_ALREADY_REGISTERED"
	ErrCodeRepoAlreadyRegistered               ErrorCode = "REPO_ALREADY_REGISTERED"
	ErrCodeAccountNotFound                     ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrCodeUnknownMethod                       ErrorCode = "UNKNOWN_METHOD"
)

// Interface errors: a collaborator does not implement the expected capability set.
const (
	ErrCodeIPluginNotSupported         ErrorCode = "IPLUGIN_NOT_SUPPORTED"
	ErrCodePluginNonupgradeable        ErrorCode = "PLUGIN_NONUPGRADEABLE"
	ErrCodeInvalidPluginSetupInterface ErrorCode = "INVALID_PLUGIN_SETUP_INTERFACE"
)

// Resource errors: a batch exceeded a fixed limit.
const (
	ErrCodeInsufficientGas     ErrorCode = "INSUFFICIENT_GAS"
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodeTooManyActions      ErrorCode = "TOO_MANY_ACTIONS"
)

// NewError creates an Error. kv is an alternating list of detail keys and values.
func NewError(code ErrorCode, message string, kv ...string) *Error {
	e := &Error{Code: code, Message: message}
	if len(kv) > 0 {
		e.Details = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Details[kv[i]] = kv[i+1]
		}
	}
	return e
}

// Error implements the error interface. Details are rendered in key order so
// messages are stable across runs.
func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + e.Details[k]
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

// Is matches another *Error by code, so errors.Is(err, &Error{Code: c}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err's chain contains an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsAuthorizationError reports whether err is one of the authorization failures.
func IsAuthorizationError(err error) bool {
	switch CodeOf(err) {
	case ErrCodeUnauthorized, ErrCodeSetupApplicationUnauthorized, ErrCodeDaoUnauthorized:
		return true
	}
	return false
}
