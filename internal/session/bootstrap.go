// Package session resolves the current signed-in user and lazily
// provisions their profile row.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"citymeet/mobile/internal/auth"
	"citymeet/mobile/internal/gateway"
	"citymeet/mobile/internal/models"
	"citymeet/mobile/internal/repository"
)

type Bootstrap struct {
	gw     gateway.Client
	repo   *repository.Repository
	logger *slog.Logger
}

func NewBootstrap(gw gateway.Client, repo *repository.Repository, logger *slog.Logger) *Bootstrap {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrap{gw: gw, repo: repo, logger: logger}
}

// Resolve returns the current session, or nil when anonymous. Claims from
// the access token fill in the user id and email when the auth endpoint
// leaves them blank.
func (b *Bootstrap) Resolve(ctx context.Context) (*models.Session, error) {
	sess, err := b.gw.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}
	if claims, err := auth.ParseAccessToken(sess.AccessToken); err == nil {
		if sess.UserID == "" {
			sess.UserID = claims.Subject
		}
		if sess.Email == "" {
			sess.Email = claims.Email
		}
		if claims.ExpiresAt != nil {
			sess.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	if sess.UserID == "" {
		return nil, nil
	}
	return sess, nil
}

// Start resolves the session and makes sure the user has a profile row,
// creating one with a generated username when missing. Any provisioning
// failure downgrades to anonymous instead of failing the caller.
func (b *Bootstrap) Start(ctx context.Context) string {
	sess, err := b.Resolve(ctx)
	if err != nil {
		b.logger.Warn("action", "action", "session_bootstrap", "status", "session_failed", "error", err)
		return ""
	}
	if sess == nil {
		return ""
	}
	if err := b.EnsureProfile(ctx, sess.UserID, sess.Email); err != nil {
		b.logger.Warn("action", "action", "session_bootstrap", "status", "profile_failed", "user_id", sess.UserID, "error", err)
		return ""
	}
	return sess.UserID
}

// EnsureProfile creates the profile row on first use. The generated
// username is user_ plus the first eight characters of the user id.
func (b *Bootstrap) EnsureProfile(ctx context.Context, userID, email string) error {
	_, err := b.repo.GetProfile(ctx, userID)
	if err == nil {
		return nil
	}
	if !gateway.IsNotFound(err) {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	profile := models.Profile{
		ID:       userID,
		Email:    email,
		Username: DefaultUsername(userID),
	}
	if err := b.repo.CreateProfile(ctx, profile); err != nil {
		return err
	}
	b.logger.Info("action", "action", "session_bootstrap", "status", "profile_created", "user_id", userID)
	return nil
}

func DefaultUsername(userID string) string {
	if len(userID) > 8 {
		userID = userID[:8]
	}
	return "user_" + userID
}
