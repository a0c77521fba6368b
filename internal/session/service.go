// Package session sequences the credential, token and code components into
// the sign-in, sign-up, refresh, confirmation and reset flows. Every flow
// loads the account, decides, mutates it in memory and persists it as the
// last step; mail and audit side effects come after persistence and never
// fail the flow.
package session

import (
	"context"
	"time"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	auditentity "github.com/ovaphlow/pitchfork/service-identity-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/code"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/credential"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/mail"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/utilities"
	"go.uber.org/zap"
)

// AccountStore is implemented by repo.AccountRepo and repo.RedisAccountRepo.
// Find methods return nil, nil when nothing matches.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*entity.Account, error)
	FindByEmail(ctx context.Context, email string) (*entity.Account, error)
	Create(ctx context.Context, a *entity.Account) error
	Update(ctx context.Context, a *entity.Account) error
}

// AuditRecorder is implemented by the audit repos.
type AuditRecorder interface {
	Add(ctx context.Context, e auditentity.Entry) error
}

type Options struct {
	StoreTimeout      time.Duration
	MailTimeout       time.Duration
	MinPasswordLength int
	// AdminAddress receives the confirmation codes of new administrators.
	// AdminSignUp is refused while it is empty.
	AdminAddress string
}

const (
	defaultStoreTimeout      = 5 * time.Second
	defaultMailTimeout       = 5 * time.Second
	defaultMinPasswordLength = 8
)

// Deps are the collaborators of a Service. Audit may be nil.
type Deps struct {
	Store   AccountStore
	Hasher  credential.PasswordHasher
	Lockout credential.LockoutPolicy
	Signer  *token.Signer
	Codes   *code.Generator
	Mailer  mail.Channel
	Audit   AuditRecorder
	Logger  *zap.SugaredLogger
}

// Service is safe for concurrent use; it holds no per-account state.
type Service struct {
	store    AccountStore
	hasher   credential.PasswordHasher
	verifier *credential.Verifier
	signer   *token.Signer
	codes    *code.Generator
	mailer   mail.Channel
	audit    AuditRecorder
	logger   *zap.SugaredLogger
	opts     Options
	now      func() time.Time
	newID    func() string
}

func NewService(d Deps, opts Options) *Service {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.MailTimeout <= 0 {
		opts.MailTimeout = defaultMailTimeout
	}
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = defaultMinPasswordLength
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	codes := d.Codes
	if codes == nil {
		codes = code.NewGenerator()
	}
	s := &Service{
		store:  d.Store,
		hasher: d.Hasher,
		signer: d.Signer,
		codes:  codes,
		mailer: d.Mailer,
		audit:  d.Audit,
		logger: logger,
		opts:   opts,
		now:    time.Now,
		newID:  utilities.NewKSUID,
	}
	s.verifier = credential.NewVerifier(d.Hasher, d.Lockout, func() time.Time { return s.now() })
	return s
}

// Outcome carries non-fatal problems, such as a notification that could
// not be queued after the account change was already saved.
type Outcome struct {
	Warnings []string `json:"warnings,omitempty"`
}

func (o *Outcome) warn(msg string) {
	o.Warnings = append(o.Warnings, msg)
}

// TokenPair is returned by the sign-in and refresh flows. The refresh
// fields are empty when no refresh token was issued.
type TokenPair struct {
	AccountID        string     `json:"user_id"`
	AccessToken      string     `json:"access_token"`
	AccessExpiresAt  time.Time  `json:"expires"`
	RefreshToken     string     `json:"refresh_token,omitempty"`
	RefreshExpiresAt *time.Time `json:"refresh_token_expires,omitempty"`
}

type SignUpResult struct {
	AccountID string `json:"user_id"`
	Outcome
}

// findByEmail maps a missing account to NotFound.
func (s *Service) findByEmail(ctx context.Context, email string) (*entity.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	a, err := s.store.FindByEmail(ctx, entity.NormalizeEmail(email))
	if err != nil {
		return nil, s.infra("find account by email", err)
	}
	if a == nil {
		return nil, notFound("account not found")
	}
	return a, nil
}

func (s *Service) findByID(ctx context.Context, id string) (*entity.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	a, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.infra("find account by id", err)
	}
	if a == nil {
		return nil, notFound("account not found")
	}
	return a, nil
}

func (s *Service) save(ctx context.Context, a *entity.Account) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := s.store.Update(ctx, a); err != nil {
		return s.infra("update account "+a.ID, err)
	}
	return nil
}

// notify sends msg and turns a failure into a warning on out.
func (s *Service) notify(ctx context.Context, out *Outcome, msg mail.Message) {
	if s.mailer == nil {
		out.warn("notification channel not configured")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.MailTimeout)
	defer cancel()
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warnw("mail dispatch failed", "template", msg.Template, "to", msg.To, "error", err)
		out.warn("notification could not be sent, request a new code later")
	}
}

// record appends to the audit trail. Failures are logged only.
func (s *Service) record(ctx context.Context, accountID, message, inner string, typ auditentity.Type) {
	if s.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := s.audit.Add(ctx, auditentity.NewEntry(accountID, message, inner, typ)); err != nil {
		s.logger.Warnw("audit record failed", "account_id", accountID, "message", message, "error", err)
	}
}

func (s *Service) infra(op string, err error) *Error {
	e := infrastructure(op, err)
	s.logger.Errorw("store failure", "op", op, "error", err)
	return e
}

func (s *Service) fail(op string, err error) *Error {
	e := unexpected(op, err)
	s.logger.Errorw("unexpected failure", "op", op, "error", err)
	return e
}

func (s *Service) checkPassword(pw string) error {
	if len(pw) < s.opts.MinPasswordLength {
		return badRequest("password is too short")
	}
	return nil
}
