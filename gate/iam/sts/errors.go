package sts

import (
	"errors"
	"net/http"

	"github.com/reefgate/reefgate/gate/iam/providers"
)

// Typed sentinel errors for error-code mapping with errors.Is. Token
// validation sentinels are shared with the providers package so the auth
// engines and the STS service agree on the taxonomy.
var (
	ErrTypedTokenMalformed        = providers.ErrTokenMalformed
	ErrTypedTokenExpired          = providers.ErrTokenExpired
	ErrTypedSignatureInvalid      = providers.ErrSignatureInvalid
	ErrTypedInvalidIssuer         = providers.ErrIssuerNotTrusted
	ErrTypedInvalidAudience       = providers.ErrAudienceMismatch
	ErrTypedMissingClaims         = providers.ErrMissingClaims
	ErrTypedAccessDenied          = errors.New("access denied")
	ErrTypedInvalidParameterValue = errors.New("invalid parameter value")
	ErrTypedMissingParameter      = errors.New("missing required parameter")
	ErrTypedPackedPolicyTooLarge  = errors.New("packed session policy exceeds the allowed size")
	ErrTypedMalformedPolicy       = errors.New("malformed policy document")
)

// STSErrorCode represents STS error codes
type STSErrorCode string

const (
	STSErrAccessDenied            STSErrorCode = "AccessDenied"
	STSErrExpiredToken            STSErrorCode = "ExpiredTokenException"
	STSErrInvalidIdentityToken    STSErrorCode = "InvalidIdentityToken"
	STSErrInvalidParameterValue   STSErrorCode = "InvalidParameterValue"
	STSErrMalformedPolicyDocument STSErrorCode = "MalformedPolicyDocument"
	STSErrMissingParameter        STSErrorCode = "MissingParameter"
	STSErrPackedPolicyTooLarge    STSErrorCode = "PackedPolicyTooLarge"
	STSErrSTSNotReady             STSErrorCode = "ServiceUnavailable"
	STSErrInternalError           STSErrorCode = "InternalError"
)

// stsErrorResponses maps error codes to HTTP status and default messages
var stsErrorResponses = map[STSErrorCode]struct {
	HTTPStatusCode int
	Message        string
}{
	STSErrAccessDenied:            {http.StatusForbidden, "Access Denied"},
	STSErrExpiredToken:            {http.StatusBadRequest, "Token has expired"},
	STSErrInvalidIdentityToken:    {http.StatusBadRequest, "The web identity token could not be validated"},
	STSErrInvalidParameterValue:   {http.StatusBadRequest, "Invalid parameter value"},
	STSErrMalformedPolicyDocument: {http.StatusBadRequest, "Malformed policy document"},
	STSErrMissingParameter:        {http.StatusBadRequest, "Missing required parameter"},
	STSErrPackedPolicyTooLarge:    {http.StatusBadRequest, "Packed policy too large"},
	STSErrSTSNotReady:             {http.StatusServiceUnavailable, "STS service not ready"},
	STSErrInternalError:           {http.StatusInternalServerError, "Internal error"},
}

// HTTPStatus returns the HTTP status for the error code.
func (c STSErrorCode) HTTPStatus() int {
	if info, ok := stsErrorResponses[c]; ok {
		return info.HTTPStatusCode
	}
	return http.StatusInternalServerError
}

// Message returns the default message for the error code.
func (c STSErrorCode) Message() string {
	if info, ok := stsErrorResponses[c]; ok {
		return info.Message
	}
	return stsErrorResponses[STSErrInternalError].Message
}

// IsSenderFault reports whether the error is attributed to the caller.
// Server-side errors use "Receiver" type per the AWS wire convention.
func (c STSErrorCode) IsSenderFault() bool {
	return c != STSErrInternalError && c != STSErrSTSNotReady
}

// ErrorCodeFor maps a service error to its external STS error code using
// the typed sentinels. Unrecognized errors are internal by definition:
// everything the caller can cause carries a sentinel.
func ErrorCodeFor(err error) STSErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTypedTokenExpired):
		return STSErrExpiredToken
	case errors.Is(err, ErrTypedTokenMalformed),
		errors.Is(err, ErrTypedSignatureInvalid),
		errors.Is(err, ErrTypedInvalidIssuer),
		errors.Is(err, ErrTypedInvalidAudience),
		errors.Is(err, ErrTypedMissingClaims):
		return STSErrInvalidIdentityToken
	case errors.Is(err, ErrTypedPackedPolicyTooLarge):
		return STSErrPackedPolicyTooLarge
	case errors.Is(err, ErrTypedMalformedPolicy):
		return STSErrMalformedPolicyDocument
	case errors.Is(err, ErrTypedMissingParameter):
		return STSErrMissingParameter
	case errors.Is(err, ErrTypedInvalidParameterValue):
		return STSErrInvalidParameterValue
	case errors.Is(err, ErrTypedAccessDenied):
		return STSErrAccessDenied
	default:
		return STSErrInternalError
	}
}

// Opaque collapses identity-validation detail into a generic denial.
// Deployments that do not want to reveal why a token was rejected map
// through this before writing the response.
func (c STSErrorCode) Opaque() STSErrorCode {
	switch c {
	case STSErrExpiredToken, STSErrInvalidIdentityToken:
		return STSErrAccessDenied
	default:
		return c
	}
}
