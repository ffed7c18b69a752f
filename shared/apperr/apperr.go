// Package apperr defines the error taxonomy shared by every service.
//
// Each error carries a stable oops code. Handlers translate the code into an
// HTTP status and a numeric code via Describe; the message shown to callers is
// the oops hint, so wrapped causes never leak into responses.
package apperr

import (
	"net/http"

	"github.com/samber/oops"
)

const (
	CodeParams    = "PARAMS_ERROR"
	CodeNotLogin  = "NOT_LOGIN_ERROR"
	CodeNoAuth    = "NO_AUTH_ERROR"
	CodeNotFound  = "NOT_FOUND_ERROR"
	CodeOperation = "OPERATION_ERROR"
	CodeSystem    = "SYSTEM_ERROR"
)

type descriptor struct {
	number  int
	status  int
	message string
}

var descriptors = map[string]descriptor{
	CodeParams:    {40000, http.StatusBadRequest, "invalid request parameters"},
	CodeNotLogin:  {40100, http.StatusUnauthorized, "not logged in"},
	CodeNoAuth:    {40101, http.StatusForbidden, "no permission"},
	CodeNotFound:  {40400, http.StatusNotFound, "requested data does not exist"},
	CodeOperation: {50001, http.StatusBadRequest, "operation failed"},
	CodeSystem:    {50000, http.StatusInternalServerError, "system error"},
}

// Params reports malformed or missing input, a uniqueness conflict, or a failed code match.
func Params(msg string) error {
	return oops.Code(CodeParams).Hint(msg).Errorf("%s", msg)
}

// NotLogin reports a missing, expired or unresolvable token, or a missing session.
func NotLogin() error {
	return oops.Code(CodeNotLogin).Hint(descriptors[CodeNotLogin].message).Errorf("not logged in")
}

// NoAuth reports a role or ownership mismatch.
func NoAuth() error {
	return oops.Code(CodeNoAuth).Hint(descriptors[CodeNoAuth].message).Errorf("no permission")
}

func NotFound(msg string) error {
	return oops.Code(CodeNotFound).Hint(msg).Errorf("%s", msg)
}

// Operation reports a violated precondition, e.g. logout without a token cookie.
func Operation(msg string) error {
	return oops.Code(CodeOperation).Hint(msg).Errorf("%s", msg)
}

// System wraps a persistence or cache failure.
func System(msg string, cause error) error {
	if cause == nil {
		return oops.Code(CodeSystem).Hint(msg).Errorf("%s", msg)
	}
	return oops.Code(CodeSystem).Hint(msg).Wrapf(cause, "%s", msg)
}

// CodeOf returns the taxonomy code carried by err, or CodeSystem for foreign errors.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok {
			if _, known := descriptors[code]; known {
				return code
			}
		}
	}
	return CodeSystem
}

// Is reports whether err carries the given taxonomy code.
func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// Describe maps err to its numeric code, HTTP status and caller-facing message.
func Describe(err error) (number int, status int, message string) {
	code := CodeOf(err)
	d := descriptors[code]
	message = d.message
	if oopsErr, ok := oops.AsOops(err); ok {
		if hint := oopsErr.Hint(); hint != "" {
			message = hint
		}
	}
	return d.number, d.status, message
}
