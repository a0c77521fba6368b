package session

import (
	"context"
	"errors"
	"strings"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/repo"
	auditentity "github.com/ovaphlow/pitchfork/service-identity-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/mail"
)

type SignUpRequest struct {
	Email    string
	Username string
	Password string
	Role     string

	// IsOAuth marks a sign-up vouched for by an identity provider. The
	// account is created confirmed, without a password, and linked to
	// ExternalID under Provider.
	IsOAuth    bool
	ExternalID string
	Provider   entity.Provider
}

type OAuthSignUpRequest struct {
	Email      string
	Username   string
	Role       string
	ExternalID string
	Provider   entity.Provider
}

// SignUp creates an account. Password sign-ups are mailed a confirmation
// code and cannot sign in until ConfirmEmail succeeds.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	role, ok := entity.ParseRole(req.Role)
	if !ok {
		return nil, badRequest("unknown role")
	}
	if role == entity.RoleAdmin {
		return nil, badRequest("administrators register through admin sign-up")
	}
	a, err := s.newAccount(req.Email, req.Username, req.Password, role, req.IsOAuth)
	if err != nil {
		return nil, err
	}
	if req.IsOAuth {
		p, ok := entity.ParseProvider(string(req.Provider))
		if !ok {
			return nil, badRequest("unknown oauth provider")
		}
		if p == entity.ProviderNone {
			return nil, badRequest("oauth provider not specified")
		}
		ext := strings.TrimSpace(req.ExternalID)
		if ext == "" {
			return nil, badRequest("external id is required")
		}
		a.LinkExternalID(p, ext)
		a.EmailConfirmed = true
	}

	var c string
	if !req.IsOAuth {
		if c, err = s.attachCode(a); err != nil {
			return nil, err
		}
	}
	if err := s.create(ctx, a); err != nil {
		return nil, err
	}

	out := &SignUpResult{AccountID: a.ID}
	s.logger.Infow("account registered", "account_id", a.ID, "role", a.Role, "oauth", req.IsOAuth)
	s.record(ctx, a.ID, "account registered", "", auditentity.TypeInfo)
	if !req.IsOAuth {
		s.notify(ctx, &out.Outcome, mail.ConfirmEmail(a.Email, c))
	}
	return out, nil
}

// SignUpWithOAuth is SignUp for a provider-vouched identity.
func (s *Service) SignUpWithOAuth(ctx context.Context, req OAuthSignUpRequest) (*SignUpResult, error) {
	return s.SignUp(ctx, SignUpRequest{
		Email:      req.Email,
		Username:   req.Username,
		Role:       req.Role,
		IsOAuth:    true,
		ExternalID: req.ExternalID,
		Provider:   req.Provider,
	})
}

// AdminSignUp creates an unconfirmed ADMIN account. Its confirmation code
// goes to the administrators' inbox so an existing administrator has to
// pass it on.
func (s *Service) AdminSignUp(ctx context.Context, email, password string) (*SignUpResult, error) {
	if strings.TrimSpace(s.opts.AdminAddress) == "" {
		return nil, forbidden("administrator sign-up is disabled")
	}
	email = entity.NormalizeEmail(email)
	a, err := s.newAccount(email, email, password, entity.RoleAdmin, false)
	if err != nil {
		return nil, err
	}
	c, err := s.attachCode(a)
	if err != nil {
		return nil, err
	}
	if err := s.create(ctx, a); err != nil {
		return nil, err
	}

	out := &SignUpResult{AccountID: a.ID}
	s.logger.Infow("administrator registered", "account_id", a.ID)
	s.record(ctx, a.ID, "administrator registered", "", auditentity.TypeSecurity)
	s.notify(ctx, &out.Outcome, mail.AdminApproval(s.opts.AdminAddress, a.Email, c))
	return out, nil
}

func (s *Service) newAccount(email, username, password string, role entity.Role, isOAuth bool) (*entity.Account, error) {
	email = entity.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, badRequest("a valid email is required")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, badRequest("username is required")
	}
	a := &entity.Account{
		ID:       s.newID(),
		Email:    email,
		Username: username,
		Role:     role,
	}
	if isOAuth {
		return a, nil
	}
	if err := s.checkPassword(password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, s.fail("hash password", err)
	}
	a.PasswordHash = hash
	return a, nil
}

// create rejects a taken email before inserting. The store's unique index
// catches the race between the check and the insert.
func (s *Service) create(ctx context.Context, a *entity.Account) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	existing, err := s.store.FindByEmail(ctx, a.Email)
	if err != nil {
		return s.infra("find account by email", err)
	}
	if existing != nil {
		return conflict("an account with this email already exists")
	}
	if err := s.store.Create(ctx, a); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return conflict("an account with this email or username already exists")
		}
		return s.infra("create account", err)
	}
	return nil
}

// attachCode generates a confirmation code and sets it on a, so the code is
// stored by the same write that the caller performs before mailing it.
func (s *Service) attachCode(a *entity.Account) (string, error) {
	c, err := s.codes.Generate()
	if err != nil {
		return "", s.fail("generate code", err)
	}
	a.SetConfirmationCode(c)
	return c, nil
}
