package guard

import "github.com/vitalview/vitalcore/pkg/domain"

// TokenSource exposes the presence of an authenticated session. The
// guard checks presence only; token validity and expiry belong to the
// session layer.
type TokenSource interface {
	Authenticated() bool
}

// TokenSourceFunc adapts a function to the TokenSource interface.
type TokenSourceFunc func() bool

func (f TokenSourceFunc) Authenticated() bool { return f() }

// AuthGuard defers fetches while no authenticated session exists. The
// deferral is not retryable: the caller must re-authenticate.
type AuthGuard struct {
	tokens TokenSource
}

// NewAuthGuard creates the auth admission gate.
func NewAuthGuard(tokens TokenSource) *AuthGuard {
	return &AuthGuard{tokens: tokens}
}

func (g *AuthGuard) Name() string  { return NameAuth }
func (g *AuthGuard) Priority() int { return priorityAuth }

// Evaluate fails with AUTH_TOKEN_ABSENT when no session token is present.
func (g *AuthGuard) Evaluate() domain.Verdict {
	if g.tokens != nil && g.tokens.Authenticated() {
		return domain.Verdict{Pass: true}
	}
	return domain.Verdict{
		Pass:   false,
		Reason: domain.ReasonAuthTokenAbsent,
	}
}
