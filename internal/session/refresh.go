package session

import (
	"context"
	"errors"

	auditentity "github.com/ovaphlow/pitchfork/service-identity-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/token"
)

// RefreshToken exchanges the account's one live refresh token for a new
// pair. Any earlier refresh token stops matching the stored fingerprint.
func (s *Service) RefreshToken(ctx context.Context, presented string) (*TokenPair, error) {
	claims, err := s.signer.DecodeValid(presented)
	if err != nil {
		return nil, s.evictExpired(ctx, presented)
	}
	if claims.Kind != token.KindRefresh {
		return nil, badRequest("not a refresh token")
	}

	a, err := s.findByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if a.RefreshTokenFingerprint == nil || !token.MatchesFingerprint(presented, *a.RefreshTokenFingerprint) {
		s.logger.Warnw("stale refresh token presented", "account_id", a.ID)
		s.record(ctx, a.ID, "stale refresh token", "", auditentity.TypeSecurity)
		return nil, badRequest("wrong refresh token")
	}
	if a.RefreshTokenExpiry != nil && !a.RefreshTokenExpiry.After(s.now()) {
		a.ClearRefreshToken()
		if err := s.save(ctx, a); err != nil {
			return nil, err
		}
		return nil, badRequest("refresh token expired")
	}

	pair, err := s.issuePair(a, true)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Infow("refresh token rotated", "account_id", a.ID)
	s.record(ctx, a.ID, "refresh token rotated", "", auditentity.TypeInfo)
	return pair, nil
}

// evictExpired handles a refresh token that failed full validation. When it
// is only expired and still the account's live token, the stored
// fingerprint is cleared. The result is always a BadRequest unless the
// store fails.
func (s *Service) evictExpired(ctx context.Context, presented string) error {
	claims, err := s.signer.DecodeExpired(presented)
	if err != nil || claims.Kind != token.KindRefresh {
		return badRequest("invalid token")
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.After(s.now()) {
		return badRequest("invalid token")
	}
	a, err := s.findByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return badRequest("refresh token expired")
		}
		return err
	}
	if a.RefreshTokenFingerprint != nil && token.MatchesFingerprint(presented, *a.RefreshTokenFingerprint) {
		a.ClearRefreshToken()
		if err := s.save(ctx, a); err != nil {
			return err
		}
		s.logger.Infow("expired refresh token evicted", "account_id", a.ID)
	}
	return badRequest("refresh token expired")
}

// Revoke clears the account's refresh token.
func (s *Service) Revoke(ctx context.Context, accountID string) error {
	a, err := s.findByID(ctx, accountID)
	if err != nil {
		return err
	}
	a.ClearRefreshToken()
	if err := s.save(ctx, a); err != nil {
		return err
	}
	s.logger.Infow("refresh token revoked", "account_id", a.ID)
	s.record(ctx, a.ID, "refresh token revoked", "", auditentity.TypeSecurity)
	return nil
}

// SignOut revokes the refresh token of the account named by an access
// token. The access token may already be expired.
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	claims, err := s.signer.DecodeExpired(accessToken)
	if err != nil {
		return badRequest("invalid token")
	}
	if claims.Kind != token.KindAccess {
		return badRequest("not an access token")
	}
	return s.Revoke(ctx, claims.Subject)
}
