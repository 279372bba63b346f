package identity

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"

	"civicwatch/config"
	"civicwatch/core/store"
	"civicwatch/core/utils"
)

// ErrUnauthenticated means the presented credential did not resolve to
// a live session.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrBadCredentials means a login attempt failed; it is deliberately
// the same for unknown users and wrong passwords.
var ErrBadCredentials = errors.New("bad credentials")

// Resolver turns an opaque session credential into a Principal and
// issues sessions on login.
type Resolver struct {
	sessions store.SessionStore
	users    store.UsersStore
	cfg      *config.AppConfig
	logger   *utils.Logger
}

func NewResolver(sessions store.SessionStore, users store.UsersStore, cfg *config.AppConfig, logger *utils.Logger) *Resolver {
	return &Resolver{sessions: sessions, users: users, cfg: cfg, logger: logger}
}

func (r *Resolver) Login(ctx context.Context, username, password string) (*store.SessionRecord, error) {
	user, err := r.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, ErrBadCredentials
	}
	if !VerifyPassword(password, r.cfg.Pepper, user.Salt, user.PasswordHash) {
		return nil, ErrBadCredentials
	}
	now := utils.NowUTC()
	rec := &store.SessionRecord{
		ID:           uuid.Must(uuid.NewV4()).String(),
		UserID:       user.ID,
		Role:         user.Role,
		DepartmentID: user.DepartmentID,
		CreatedAt:    now,
		LastSeenAt:   now,
		ExpiresAt:    now.Add(r.cfg.EffectiveSessionTTL()),
	}
	if err := r.sessions.SaveSession(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Resolve maps a credential to a Principal. The Principal is immutable
// for the lifetime of the request.
func (r *Resolver) Resolve(ctx context.Context, credential string) (Principal, error) {
	if credential == "" {
		return Principal{}, ErrUnauthenticated
	}
	rec, err := r.sessions.GetSession(ctx, credential)
	if err != nil {
		return Principal{}, err
	}
	if rec == nil {
		return Principal{}, ErrUnauthenticated
	}
	_ = r.sessions.UpdateActivity(ctx, rec.ID, utils.NowUTC(), r.cfg.EffectiveSessionTTL())
	return Principal{ID: rec.UserID, Role: rec.Role, DepartmentID: rec.DepartmentID}, nil
}

func (r *Resolver) Logout(ctx context.Context, credential string) error {
	if credential == "" {
		return nil
	}
	return r.sessions.DeleteSession(ctx, credential)
}
