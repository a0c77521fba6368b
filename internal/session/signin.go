package session

import (
	"context"
	"strings"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	auditentity "github.com/ovaphlow/pitchfork/service-identity-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/token"
)

type SignInRequest struct {
	Email      string
	Password   string
	RememberMe bool
}

type OAuthSignInRequest struct {
	Email      string
	ExternalID string
	Provider   entity.Provider
}

// SignIn checks the password and lockout state and issues an access token.
// A refresh token is issued and stored only when RememberMe is set.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*TokenPair, error) {
	a, err := s.findByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	return s.signInAccount(ctx, a, req.Password, req.RememberMe, false)
}

// SignInWithOAuth signs in an account whose stored external id for the
// provider matches the presented one. The password check is skipped and a
// refresh token is always issued.
func (s *Service) SignInWithOAuth(ctx context.Context, req OAuthSignInRequest) (*TokenPair, error) {
	p, ok := entity.ParseProvider(string(req.Provider))
	if !ok {
		return nil, badRequest("unknown oauth provider")
	}
	if p == entity.ProviderNone {
		return nil, badRequest("oauth provider not specified")
	}
	a, err := s.findByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	linked := a.ExternalID(p)
	if linked == "" || linked != strings.TrimSpace(req.ExternalID) {
		s.logger.Warnw("oauth link mismatch", "account_id", a.ID, "provider", p)
		s.record(ctx, a.ID, "oauth link mismatch", string(p), auditentity.TypeSecurity)
		return nil, forbidden("account exists but " + string(p) + " is not linked to it")
	}
	return s.signInAccount(ctx, a, "", true, true)
}

func (s *Service) signInAccount(ctx context.Context, a *entity.Account, password string, rememberMe, isOAuth bool) (*TokenPair, error) {
	var succeeded, lockedOut, triggered bool
	if isOAuth {
		// OAuth sign-ins are vouched for by the provider; the lockout flag
		// is read but success wins.
		succeeded, lockedOut = true, a.LockoutEnabled
	} else {
		if !a.EmailConfirmed {
			s.logger.Warnw("sign-in with unconfirmed email", "account_id", a.ID)
			s.record(ctx, a.ID, "email not confirmed", "", auditentity.TypeError)
			return nil, forbidden("email not confirmed")
		}
		res, err := s.verifier.Verify(a, password)
		if err != nil {
			return nil, s.fail("verify password", err)
		}
		succeeded, lockedOut, triggered = res.Succeeded, res.LockedOut, res.LockoutTriggered
	}

	switch {
	case succeeded:
		pair, err := s.issuePair(a, rememberMe)
		if err != nil {
			return nil, err
		}
		if err := s.save(ctx, a); err != nil {
			return nil, err
		}
		s.logger.Infow("signed in", "account_id", a.ID, "oauth", isOAuth, "remember", rememberMe)
		s.record(ctx, a.ID, "signed in", "", auditentity.TypeInfo)
		return pair, nil

	case lockedOut:
		a.FailedAttemptCount = 0
		if err := s.save(ctx, a); err != nil {
			return nil, err
		}
		s.logger.Warnw("sign-in on locked account", "account_id", a.ID, "until", a.LockoutUntil)
		s.record(ctx, a.ID, "account locked", "", auditentity.TypeSecurity)
		return nil, forbidden("account is locked, try again later")

	default:
		if err := s.save(ctx, a); err != nil {
			return nil, err
		}
		if triggered {
			s.logger.Warnw("lockout triggered", "account_id", a.ID, "until", a.LockoutUntil)
			s.record(ctx, a.ID, "lockout triggered", "too many failed attempts", auditentity.TypeSecurity)
			return nil, badRequest("wrong password, account locked after too many failed attempts")
		}
		s.logger.Warnw("failed sign-in", "account_id", a.ID, "attempts", a.FailedAttemptCount)
		s.record(ctx, a.ID, "failed sign-in attempt", "", auditentity.TypeError)
		return nil, badRequest("wrong password")
	}
}

// issuePair mints an access token and, when withRefresh is set, a refresh
// token whose fingerprint replaces the stored one. The caller persists a.
func (s *Service) issuePair(a *entity.Account, withRefresh bool) (*TokenPair, error) {
	access, err := s.signer.IssueAccess(a.ID, a.Role)
	if err != nil {
		return nil, s.fail("issue access token", err)
	}
	pair := &TokenPair{
		AccountID:       a.ID,
		AccessToken:     access.Token,
		AccessExpiresAt: access.ExpiresAt,
	}
	if !withRefresh {
		return pair, nil
	}
	refresh, err := s.signer.IssueRefresh(a.ID)
	if err != nil {
		return nil, s.fail("issue refresh token", err)
	}
	a.SetRefreshToken(token.Fingerprint(refresh.Token), refresh.ExpiresAt)
	pair.RefreshToken = refresh.Token
	exp := refresh.ExpiresAt
	pair.RefreshExpiresAt = &exp
	return pair, nil
}
