package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	"github.com/redis/go-redis/v9"
)

func newRedisRepo(t *testing.T, hooks ...redis.Hook) (*RedisAccountRepo, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	for _, h := range hooks {
		rdb.AddHook(h)
	}
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisAccountRepo(rdb, "test"), mr
}

func TestRedisAccountRepoCreateAndFind(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()

	code := "123456"
	a := &entity.Account{
		ID:               "acc-1",
		Email:            "Alice@Example.com",
		Username:         "alice",
		PasswordHash:     "hash",
		Role:             entity.RoleAuthor,
		ConfirmationCode: &code,
	}
	a.LinkExternalID(entity.ProviderGoogle, "g-1")
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.FindByEmail(ctx, "alice@EXAMPLE.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if got == nil || got.ID != "acc-1" {
		t.Fatalf("expected acc-1, got %+v", got)
	}
	if got.PasswordHash != "hash" || got.PendingCode() != "123456" {
		t.Fatalf("hidden fields not persisted: %+v", got)
	}
	if got.ExternalID(entity.ProviderGoogle) != "g-1" {
		t.Fatalf("external id not persisted: %v", got.ExternalIdentityIDs)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
}

func TestRedisAccountRepoFindMissingReturnsNil(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()

	a, err := repo.FindByID(ctx, "nope")
	if err != nil || a != nil {
		t.Fatalf("expected nil, nil; got %v, %v", a, err)
	}
	a, err = repo.FindByEmail(ctx, "nope@example.com")
	if err != nil || a != nil {
		t.Fatalf("expected nil, nil; got %v, %v", a, err)
	}
}

func TestRedisAccountRepoCreateDuplicate(t *testing.T) {
	repo, mr := newRedisRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, &entity.Account{ID: "a", Email: "a@x.com", Username: "a"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := repo.Create(ctx, &entity.Account{ID: "b", Email: "A@x.com", Username: "b"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for email, got %v", err)
	}

	err = repo.Create(ctx, &entity.Account{ID: "c", Email: "c@x.com", Username: "A"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for username, got %v", err)
	}
	// the losing create must release the email it claimed
	if mr.Exists("test:account:email:c@x.com") {
		t.Fatal("expected email index of failed create to be released")
	}
}

func TestRedisAccountRepoUpdateLastWriterWins(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()

	a := &entity.Account{ID: "a", Email: "a@x.com", Username: "a"}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _ := repo.FindByID(ctx, "a")
	second, _ := repo.FindByID(ctx, "a")

	first.FailedAttemptCount = 3
	if err := repo.Update(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}
	until := time.Now().Add(time.Minute).UTC()
	second.LockoutEnabled = true
	second.LockoutUntil = &until
	if err := repo.Update(ctx, second); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := repo.FindByID(ctx, "a")
	if got.FailedAttemptCount != 0 || !got.LockoutEnabled {
		t.Fatalf("expected second write to win, got %+v", got)
	}
}

var errInjected = errors.New("i/o timeout")

// failOnce fails the first command whose name is listed, before it reaches
// the server.
type failOnce struct {
	mu     sync.Mutex
	names  map[string]bool
	failed bool
}

func (h *failOnce) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *failOnce) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.mu.Lock()
		fail := !h.failed && h.names[cmd.Name()]
		if fail {
			h.failed = true
		}
		h.mu.Unlock()
		if fail {
			cmd.SetErr(errInjected)
			return errInjected
		}
		return next(ctx, cmd)
	}
}

func (h *failOnce) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisAccountRepoFailedCreateLeavesNoIndex(t *testing.T) {
	hook := &failOnce{names: map[string]bool{"set": true, "setnx": true, "evalsha": true, "eval": true}}
	repo, mr := newRedisRepo(t, hook)
	ctx := context.Background()

	err := repo.Create(ctx, &entity.Account{ID: "a", Email: "a@x.com", Username: "alice"})
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys after failed create, got %v", keys)
	}

	got, err := repo.FindByEmail(ctx, "a@x.com")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}
	if err := repo.Create(ctx, &entity.Account{ID: "a", Email: "a@x.com", Username: "alice"}); err != nil {
		t.Fatalf("retry create: %v", err)
	}
	got, err = repo.FindByEmail(ctx, "a@x.com")
	if err != nil || got == nil || got.ID != "a" {
		t.Fatalf("expected account after retry, got %v, %v", got, err)
	}
}
