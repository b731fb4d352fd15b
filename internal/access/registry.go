// ABOUTME: Access registry resolving upstream identities to local access records
// ABOUTME: Lookup prefers the stable subject id, falls back to email, and links identities

package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pursuitworks/pursuit-gateway/internal/store"
)

// ErrNoAccess means no enabled access record matches the identity.
// Callers translate this into an authorization failure, never a crash.
var ErrNoAccess = errors.New("no enabled access record for identity")

// Registry resolves authenticated upstream identities to access
// records and manages provisioning.
type Registry struct {
	store  store.Store
	logger *slog.Logger
}

func NewRegistry(st store.Store) *Registry {
	return &Registry{
		store:  st,
		logger: slog.Default().With("component", "access"),
	}
}

// Resolve finds the enabled access record for an upstream identity.
// The stable subject id is authoritative; email is a fallback for
// records provisioned before the subject id was known. A successful
// email match back-fills the subject id so future logins resolve
// directly.
func (r *Registry) Resolve(ctx context.Context, externalID, email string) (*store.User, error) {
	if externalID != "" {
		user, err := r.store.GetUserByExternalID(ctx, externalID, true)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("resolving by subject id: %w", err)
		}
	}

	if email == "" {
		return nil, ErrNoAccess
	}

	user, err := r.store.GetUserByEmail(ctx, email, true)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoAccess
	}
	if err != nil {
		return nil, fmt.Errorf("resolving by email: %w", err)
	}

	if externalID != "" && user.ExternalID == "" {
		if err := r.store.LinkExternalID(ctx, user.ID, externalID); err != nil {
			// Linking is an optimization; the email match already
			// established access.
			r.logger.Warn("failed to link subject id", "user_id", user.ID, "error", err)
		} else {
			user.ExternalID = externalID
		}
	}

	return user, nil
}

// TouchLogin records a successful login. Failures are logged and
// swallowed; a bookkeeping error must never block a login.
func (r *Registry) TouchLogin(ctx context.Context, userID string) {
	if err := r.store.TouchLastLogin(ctx, userID); err != nil {
		r.logger.Warn("failed to record login", "user_id", userID, "error", err)
	}
}

// Provision creates a disabled, read-only access record for an
// identity that authenticated upstream but has no record yet. An
// operator must enable it before the user gets in.
func (r *Registry) Provision(ctx context.Context, externalID, email, fullName string) (*store.User, error) {
	user := &store.User{
		ID:            uuid.New().String(),
		ExternalID:    externalID,
		Email:         email,
		FullName:      fullName,
		AccessEnabled: false,
		Permissions:   store.DefaultPermissions(),
	}
	if err := r.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			// Concurrent first login; the other writer won.
			return r.store.GetUserByEmail(ctx, email, false)
		}
		return nil, fmt.Errorf("provisioning access record: %w", err)
	}
	r.logger.Info("provisioned access record", "email", email, "enabled", false)
	return user, nil
}
