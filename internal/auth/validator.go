package auth

import (
	"context"
	"strings"

	"github.com/frahmantamala/attendance-management/internal"
)

const BearerPrefix = "Bearer "

type Validator interface {
	Validate(ctx context.Context, header string) (*Identity, string, error)
}

// SessionValidator verifies a bearer header in two phases: the token's own
// signature and expiry, then a live session row. Sign-out relies on the
// second phase.
type SessionValidator struct {
	tokens   TokenIssuer
	sessions SessionChecker
}

var _ Validator = (*SessionValidator)(nil)

func NewSessionValidator(tokens TokenIssuer, sessions SessionChecker) *SessionValidator {
	return &SessionValidator{tokens: tokens, sessions: sessions}
}

// Validate returns the identity and raw token, or the first failure in order:
// malformed header, missing token, expired or invalid token, dead session.
func (v *SessionValidator) Validate(ctx context.Context, header string) (*Identity, string, error) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return nil, "", internal.ErrMalformedHeader
	}

	token := strings.TrimSpace(header[len(BearerPrefix):])
	if token == "" {
		return nil, "", internal.ErrMissingToken
	}

	claims, err := v.tokens.Parse(token)
	if err != nil {
		return nil, "", err
	}

	if err := v.sessions.CheckSession(ctx, token); err != nil {
		if _, ok := internal.IsAppError(err); ok {
			return nil, "", err
		}
		return nil, "", internal.NewTransportError("session lookup failed", err)
	}

	identity := claims.Identity()
	return &identity, token, nil
}
