package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/repo"
	auditentity "github.com/ovaphlow/pitchfork/service-identity-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/credential"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/mail"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/token"
	"golang.org/x/crypto/bcrypt"
)

// memStore hands out copies so concurrent flows race the way they would
// against a real database.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*entity.Account
	err      error
	updates  int
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]*entity.Account)}
}

func clone(a *entity.Account) *entity.Account {
	c := *a
	if a.LockoutUntil != nil {
		t := *a.LockoutUntil
		c.LockoutUntil = &t
	}
	if a.RefreshTokenFingerprint != nil {
		s := *a.RefreshTokenFingerprint
		c.RefreshTokenFingerprint = &s
	}
	if a.RefreshTokenExpiry != nil {
		t := *a.RefreshTokenExpiry
		c.RefreshTokenExpiry = &t
	}
	if a.ConfirmationCode != nil {
		s := *a.ConfirmationCode
		c.ConfirmationCode = &s
	}
	if a.ExternalIdentityIDs != nil {
		c.ExternalIdentityIDs = make(entity.ExternalIDs, len(a.ExternalIdentityIDs))
		for k, v := range a.ExternalIdentityIDs {
			c.ExternalIdentityIDs[k] = v
		}
	}
	return &c
}

func (m *memStore) FindByID(_ context.Context, id string) (*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return clone(a), nil
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	email = entity.NormalizeEmail(email)
	for _, a := range m.accounts {
		if a.Email == email {
			return clone(a), nil
		}
	}
	return nil, nil
}

func (m *memStore) Create(_ context.Context, a *entity.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.accounts {
		if existing.Email == a.Email || strings.EqualFold(existing.Username, a.Username) {
			return repo.ErrDuplicate
		}
	}
	m.accounts[a.ID] = clone(a)
	return nil
}

func (m *memStore) Update(_ context.Context, a *entity.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.updates++
	m.accounts[a.ID] = clone(a)
	return nil
}

func (m *memStore) get(t *testing.T, id string) *entity.Account {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		t.Fatalf("account %s not stored", id)
	}
	return clone(a)
}

func (m *memStore) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// blockingStore waits for the caller's deadline on every call.
type blockingStore struct{ memStore }

func (b *blockingStore) FindByEmail(ctx context.Context, _ string) (*entity.Account, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) last(t *testing.T) mail.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no mail sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []auditentity.Entry
	err     error
}

func (f *fakeAudit) Add(_ context.Context, e auditentity.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) has(message string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.Message == message {
			return true
		}
	}
	return false
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc    *Service
	store  *memStore
	mailer *fakeMailer
	audit  *fakeAudit
	clock  *clock
	signer *token.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, newMemStore(), Options{AdminAddress: "admins@pitchfork.test"})
}

func newFixtureWith(t *testing.T, store AccountStore, opts Options) *fixture {
	t.Helper()
	c := &clock{t: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	signer, err := token.NewSigner(token.Config{
		Secret:   []byte("session-test-secret"),
		Issuer:   "pitchfork-identity",
		Audience: "pitchfork",
	}, c.now)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	f := &fixture{mailer: &fakeMailer{}, audit: &fakeAudit{}, clock: c, signer: signer}
	if ms, ok := store.(*memStore); ok {
		f.store = ms
	}
	f.svc = NewService(Deps{
		Store:   store,
		Hasher:  credential.BcryptHasher{Cost: bcrypt.MinCost},
		Lockout: credential.DefaultLockoutPolicy(),
		Signer:  signer,
		Mailer:  f.mailer,
		Audit:   f.audit,
	}, opts)
	f.svc.now = c.now
	return f
}

// register signs up and confirms an account, returning its id.
func (f *fixture) register(t *testing.T, email, password string) string {
	t.Helper()
	ctx := context.Background()
	res, err := f.svc.SignUp(ctx, SignUpRequest{Email: email, Username: email, Password: password, Role: "EMPLOYER"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	c := f.store.get(t, res.AccountID).PendingCode()
	if _, err := f.svc.ConfirmEmail(ctx, res.AccountID, c); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return res.AccountID
}

func expectKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if got := KindOf(err); got != want {
		t.Fatalf("expected %s error, got %q (%v)", want, got, err)
	}
}

var errStoreDown = errors.New("connection refused")
