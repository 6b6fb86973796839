// Package auth resolves the caller identity a credential is issued to:
// either an authenticated local account (resolved from an external
// identity-provider token) or a validated anonymous pseudo-identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.scenegrid.dev/internal/perms"
)

var (
	// ErrVerificationFailed covers bad or unverifiable identity tokens.
	ErrVerificationFailed = errors.New("identity verification failed")
	// ErrUnknownAccount means the token verified but maps to no local account.
	ErrUnknownAccount = errors.New("no local account for identity")
	// ErrInvalidAnonName means the supplied anonymous username does not
	// match the anonymous name pattern.
	ErrInvalidAnonName = errors.New("invalid anonymous username")
)

// Anonymous usernames carry a fixed prefix so they can never collide with a
// registered account, and are restricted to the topic-safe alphabet.
var (
	AnonymousRe = regexp.MustCompile(`^anonymous-[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)
	ClientRe    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)
)

// Identity is the caller a credential is issued to. Constructed per request,
// never persisted.
type Identity struct {
	Authenticated bool
	Username      string
	FullName      string
	Email         string
	IsStaff       bool
	IsSuperuser   bool
}

// Privileged reports whether the identity carries the staff override.
func (id Identity) Privileged() bool {
	return id.Authenticated && (id.IsStaff || id.IsSuperuser)
}

// Anonymous validates a caller-supplied anonymous username and returns the
// corresponding unauthenticated identity.
func Anonymous(username string) (Identity, error) {
	if !AnonymousRe.MatchString(username) {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidAnonName, username)
	}
	return Identity{Username: username}, nil
}

// Verifier validates an external identity-provider token and returns the
// provider-scoped subject identifier. The verification call itself is an
// external collaborator; see GoogleVerifier for the default implementation.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (uid string, err error)
}

// Resolver maps inbound identity tokens to local accounts.
type Resolver struct {
	verifier Verifier
	store    perms.Store
	timeout  time.Duration
}

// NewResolver creates an identity resolver.
func NewResolver(verifier Verifier, store perms.Store, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{verifier: verifier, store: store, timeout: timeout}
}

// FromIDToken verifies an identity-provider token and resolves it to a
// local account through the social-identity lookup.
func (r *Resolver) FromIDToken(ctx context.Context, idToken string) (Identity, error) {
	if idToken == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrVerificationFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	uid, err := r.verifier.Verify(ctx, idToken)
	if err != nil {
		slog.Debug("Identity token rejected", "error", err)
		return Identity{}, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	account, err := r.store.AccountBySocialUID(ctx, uid)
	if err != nil {
		if errors.Is(err, perms.ErrNotFound) {
			return Identity{}, ErrUnknownAccount
		}
		return Identity{}, fmt.Errorf("account lookup: %w", err)
	}

	return Identity{
		Authenticated: true,
		Username:      account.Username,
		FullName:      account.FullName,
		Email:         account.Email,
		IsStaff:       account.IsStaff,
		IsSuperuser:   account.IsSuperuser,
	}, nil
}
