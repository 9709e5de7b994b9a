// Package apperr defines the typed error taxonomy shared by every module:
// not-found, forbidden, conflict, authentication and authorization failures.
// Each error carries a stable machine-readable code and the HTTP status the
// boundary should answer with. Unexpected storage errors are deliberately NOT
// part of this taxonomy; they stay plain wrapped errors and surface as 500s.
package apperr

import (
	"errors"
	"net/http"
)

// Error is a business error with a stable code.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Stable error codes. The code space follows the admin panel's public API
// contract and must not be renumbered.
const (
	CodeAuthDenied        = 10001
	CodePasswordWrong     = 10011
	CodeUserNotFound      = 10021
	CodeBookNotFound      = 10022
	CodeGroupForbidden    = 10023
	CodeGroupNotFound     = 10024
	CodeLoginFailed       = 10031
	CodeUsernameTaken     = 10071
	CodeGroupNameTaken    = 10072
	CodeRootGrantRefused  = 10073
	CodeRootUndeletable   = 10074
	CodeGuestUndeletable  = 10075
	CodeEmailTaken        = 10076
	CodeTargetGroupAbsent = 10077
	CodeRootUserImmutable = 10078
	CodeRootUndeletable2  = 10079
	CodeAdminUntouchable  = 10081
	CodeDuplicateGrant    = 10230
	CodePermissionAbsent  = 10231
	CodeBookTitleTaken    = 10240
	CodeFileTooLarge      = 10121
	CodeFileExtension     = 10122
)

// NotFound returns a 404 error with the given code.
func NotFound(code int, message string) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusNotFound}
}

// Forbidden returns a 403 error with the given code.
func Forbidden(code int, message string) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusForbidden}
}

// Conflict returns a 409 error with the given code.
func Conflict(code int, message string) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusConflict}
}

// AuthFailed returns a 401 error: the request carries no usable identity.
func AuthFailed(code int, message string) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusUnauthorized}
}

// Denied returns a 403 authorization error. The message is intentionally
// generic: denials never reveal which permission was missing.
func Denied() *Error {
	return &Error{Code: CodeAuthDenied, Message: "permission denied", Status: http.StatusForbidden}
}

// BadRequest returns a 400 error with the given code.
func BadRequest(code int, message string) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusBadRequest}
}

// From extracts an *Error from err's chain, or nil if err is not a business
// error. Callers use this to decide between the typed envelope and a generic
// internal failure.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// CodeOf returns the stable code of err, or 0 for non-business errors.
func CodeOf(err error) int {
	if e := From(err); e != nil {
		return e.Code
	}
	return 0
}
