package token

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/agrifin/auth-service/internal/model"
	"github.com/agrifin/auth-service/internal/repository"
)

// SessionStore is the slice of the session repository the service
// depends on. Rotate must be a single atomic conditional write; see
// repository.SessionRepo for the Redis implementation.
type SessionStore interface {
	Create(ctx context.Context, id string, userID uint64, tokenHash string, exp time.Time) error
	Rotate(ctx context.Context, id, presentedHash, newHash string, newExp time.Time) (uint64, error)
	Find(ctx context.Context, id string) (model.Session, error)
	Invalidate(ctx context.Context, id string) error
	InvalidateAllForUser(ctx context.Context, userID uint64) error
}

// UserSource loads users during rotation so fresh role and email
// claims are embedded in each new access token.
type UserSource interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Pair is an issued access/refresh token pair.
type Pair struct {
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Service issues, verifies and rotates token pairs. All expiry
// arithmetic goes through a single clock so tests can pin time and
// comparisons stay consistent across operations.
type Service struct {
	signer     *Signer
	sessions   SessionStore
	users      UserSource
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewService(signer *Signer, sessions SessionStore, users UserSource, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		signer:     signer,
		sessions:   sessions,
		users:      users,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock overrides the clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IssuePair signs a short-lived access token for the user and opens
// a new refresh session. The raw refresh token is returned to the
// caller exactly once; only its hash survives.
func (s *Service) IssuePair(ctx context.Context, u model.User) (Pair, error) {
	now := s.now().UTC()
	access, err := s.signer.SignAccess(Payload{
		Sub:       u.ID,
		Email:     u.Email,
		Role:      u.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.accessTTL),
	})
	if err != nil {
		return Pair{}, err
	}

	sessionID := uuid.NewString()
	refresh, err := NewOpaqueToken(sessionID)
	if err != nil {
		return Pair{}, err
	}
	refreshExp := now.Add(s.refreshTTL)
	if err := s.sessions.Create(ctx, sessionID, u.ID, HashOpaqueToken(refresh), refreshExp); err != nil {
		return Pair{}, err
	}

	return Pair{
		SessionID:        sessionID,
		AccessToken:      access,
		AccessExpiresAt:  now.Add(s.accessTTL),
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess validates a bearer token and returns its payload.
func (s *Service) VerifyAccess(raw string) (Payload, error) {
	return s.signer.VerifyAccess(raw)
}

// Rotate exchanges a presented refresh token for a new pair. The
// session store performs the compare-and-swap: a replayed
// (already-rotated-away) token destroys the whole session and
// surfaces repository.ErrReplayDetected. The new refresh token keeps
// the session id, so the rotation chain is observable in audit logs.
func (s *Service) Rotate(ctx context.Context, presented string) (Pair, error) {
	sessionID, ok := SplitOpaqueToken(presented)
	if !ok {
		return Pair{}, repository.ErrSessionNotFound
	}

	newRefresh, err := NewOpaqueToken(sessionID)
	if err != nil {
		return Pair{}, err
	}
	now := s.now().UTC()
	refreshExp := now.Add(s.refreshTTL)

	userID, err := s.sessions.Rotate(ctx, sessionID,
		HashOpaqueToken(presented), HashOpaqueToken(newRefresh), refreshExp)
	if err != nil {
		return Pair{}, err
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = s.sessions.Invalidate(ctx, sessionID)
			return Pair{}, repository.ErrSessionNotFound
		}
		return Pair{}, err
	}
	if !u.IsActive {
		_ = s.sessions.Invalidate(ctx, sessionID)
		return Pair{}, repository.ErrSessionNotFound
	}

	access, err := s.signer.SignAccess(Payload{
		Sub:       u.ID,
		Email:     u.Email,
		Role:      u.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.accessTTL),
	})
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		SessionID:        sessionID,
		AccessToken:      access,
		AccessExpiresAt:  now.Add(s.accessTTL),
		RefreshToken:     newRefresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// FindSession loads a session for ownership checks and diagnostics.
func (s *Service) FindSession(ctx context.Context, sessionID string) (model.Session, error) {
	return s.sessions.Find(ctx, sessionID)
}

// Invalidate terminates a session by id (logout).
func (s *Service) Invalidate(ctx context.Context, sessionID string) error {
	return s.sessions.Invalidate(ctx, sessionID)
}

// InvalidateAllForUser terminates every session of a user
// (logout-all, password reset).
func (s *Service) InvalidateAllForUser(ctx context.Context, userID uint64) error {
	return s.sessions.InvalidateAllForUser(ctx, userID)
}

// RevokeRefresh terminates the session a raw refresh token belongs
// to, but only when the token actually matches the current hash, so
// a guessed session id alone cannot log anyone out.
func (s *Service) RevokeRefresh(ctx context.Context, presented string) error {
	sessionID, ok := SplitOpaqueToken(presented)
	if !ok {
		return repository.ErrSessionNotFound
	}
	sess, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.TokenHash != HashOpaqueToken(presented) {
		return repository.ErrSessionNotFound
	}
	return s.sessions.Invalidate(ctx, sessionID)
}
