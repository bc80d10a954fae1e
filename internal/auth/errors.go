package auth

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/salvator/api/schemas"
)

// ErrMissingCredentials is returned before touching the page when either half is empty.
var ErrMissingCredentials = errors.New("auth: identifier and secret are both required")

// Error reports a login that ended in a non-authenticated state.
type Error struct {
	Result schemas.AuthResult
}

func (e *Error) Error() string {
	switch e.Result {
	case schemas.AuthInvalidCredentials:
		return "login rejected: invalid credentials"
	case schemas.AuthChallengeRequired:
		return "login blocked: the site requires an extra verification step, complete it in a browser and retry"
	default:
		return fmt.Sprintf("login outcome could not be determined (%s)", e.Result)
	}
}

// ResultOf extracts the AuthResult carried by err, if any.
func ResultOf(err error) (schemas.AuthResult, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Result, true
	}
	return "", false
}
