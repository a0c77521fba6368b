package session

import (
	"context"

	auditentity "github.com/ovaphlow/pitchfork/service-identity-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/mail"
)

// ForgotPassword stores a fresh code on the account and mails it.
func (s *Service) ForgotPassword(ctx context.Context, email string) (*Outcome, error) {
	a, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	c, err := s.attachCode(a)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, a); err != nil {
		return nil, err
	}

	out := &Outcome{}
	s.logger.Infow("password reset requested", "account_id", a.ID)
	s.record(ctx, a.ID, "password reset requested", "", auditentity.TypeSecurity)
	s.notify(ctx, out, mail.ResetPassword(a.Email, c))
	return out, nil
}

// ResetPassword consumes the pending code and replaces the password hash.
func (s *Service) ResetPassword(ctx context.Context, email, presented, newPassword string) (*Outcome, error) {
	a, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !codeMatches(a.PendingCode(), presented) {
		s.record(ctx, a.ID, "wrong reset code", "", auditentity.TypeSecurity)
		return nil, badRequest("wrong confirmation code")
	}
	if err := s.checkPassword(newPassword); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, s.fail("hash password", err)
	}
	a.ClearConfirmationCode()
	a.PasswordHash = hash
	if err := s.save(ctx, a); err != nil {
		return nil, err
	}

	out := &Outcome{}
	s.logger.Infow("password reset", "account_id", a.ID)
	s.record(ctx, a.ID, "password reset", "", auditentity.TypeSecurity)
	s.notify(ctx, out, mail.PasswordChanged(a.Email))
	return out, nil
}

// ConfirmEmail consumes the pending code and marks the email confirmed.
func (s *Service) ConfirmEmail(ctx context.Context, accountID, presented string) (*Outcome, error) {
	a, err := s.findByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !codeMatches(a.PendingCode(), presented) {
		return nil, badRequest("wrong confirmation code")
	}
	a.ClearConfirmationCode()
	a.EmailConfirmed = true
	if err := s.save(ctx, a); err != nil {
		return nil, err
	}

	out := &Outcome{}
	s.logger.Infow("email confirmed", "account_id", a.ID)
	s.record(ctx, a.ID, "email confirmed", "", auditentity.TypeInfo)
	s.notify(ctx, out, mail.Welcome(a.Email))
	return out, nil
}

// ResendEmailConfirmation mails the pending code again, generating one only
// when none is pending.
func (s *Service) ResendEmailConfirmation(ctx context.Context, email string) (*Outcome, error) {
	a, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	c := a.PendingCode()
	if c == "" {
		if c, err = s.attachCode(a); err != nil {
			return nil, err
		}
		if err := s.save(ctx, a); err != nil {
			return nil, err
		}
	}

	out := &Outcome{}
	s.logger.Infow("confirmation resent", "account_id", a.ID)
	s.notify(ctx, out, mail.ConfirmEmail(a.Email, c))
	return out, nil
}

// codeMatches is an exact comparison; an account without a pending code
// matches nothing.
func codeMatches(pending, presented string) bool {
	return pending != "" && pending == presented
}
