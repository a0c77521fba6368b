package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	accountrepo "github.com/ovaphlow/pitchfork/service-identity-go/internal/account/repo"
	auditentity "github.com/ovaphlow/pitchfork/service-identity-go/internal/audit/entity"
	auditrepo "github.com/ovaphlow/pitchfork/service-identity-go/internal/audit/repo"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/credential"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/mail"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/mq"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/utilities"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// auditStore is implemented by auditrepo.LogRepo and auditrepo.RedisLogRepo.
type auditStore interface {
	session.AuditRecorder
	ListByAccount(ctx context.Context, accountID string, limit int) ([]auditentity.Entry, error)
}

// stores holds the account and audit stores of the configured backend.
type stores struct {
	accounts session.AccountStore
	audit    auditStore
	ready    router.ReadinessCheck
	closers  []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	lg, err := utilities.Init(utilities.LogConfig{
		Level:  cfg.Log.Level,
		Dev:    cfg.Log.Dev,
		File:   cfg.Log.File,
		MaxAge: cfg.Log.MaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return lg, nil
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.Store.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return &stores{
			accounts: accountrepo.NewRedisAccountRepo(rdb, cfg.Redis.KeyPrefix),
			audit:    auditrepo.NewRedisLogRepo(rdb, cfg.Redis.KeyPrefix),
			ready:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			closers:  []func() error{rdb.Close},
		}, nil
	default:
		db, err := database.Connect(ctx, database.Config{
			DSN:            cfg.Database.DSN,
			MaxConns:       cfg.Database.MaxConns,
			Timeout:        cfg.Database.Timeout,
			TimeZone:       cfg.Database.TimeZone,
			ClientEncoding: cfg.Database.ClientEncoding,
		})
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		return postgresStores(db), nil
	}
}

func postgresStores(db *sqlx.DB) *stores {
	return &stores{
		accounts: accountrepo.NewAccountRepo(db),
		audit:    auditrepo.NewLogRepo(db),
		ready:    db.PingContext,
		closers:  []func() error{db.Close},
	}
}

func newHasher(cfg config.PasswordConfig) credential.PasswordHasher {
	if cfg.Hasher == "argon2" {
		return credential.Argon2Hasher{Params: credential.DefaultArgon2Params()}
	}
	return credential.BcryptHasher{Cost: cfg.BcryptCost}
}

func newSigner(cfg config.JWTConfig) (*token.Signer, error) {
	return token.NewSigner(token.Config{
		Secret:     []byte(cfg.Secret),
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		Algorithm:  cfg.Algorithm,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Leeway:     cfg.Leeway,
	}, time.Now)
}

// newMailer returns the queue channel when a broker is configured and the
// log channel otherwise. backend may be nil.
func newMailer(backend mq.Backend, cfg config.MailConfig, logger *zap.SugaredLogger) mail.Channel {
	if backend == nil {
		return mail.NewLogChannel(logger.Named("mail"))
	}
	return mail.NewQueueChannel(backend, cfg.Queue)
}

// app is the fully wired service used by the serve command.
type app struct {
	cfg     config.Config
	logger  *zap.SugaredLogger
	stores  *stores
	backend mq.Backend
	signer  *token.Signer
	svc     *session.Service
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (*app, error) {
	if err := utilities.SetSnowflakeNode(cfg.SnowflakeNode); err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	signer, err := newSigner(cfg.JWT)
	if err != nil {
		return nil, err
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	backend, err := mq.Open(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	svc := session.NewService(session.Deps{
		Store:   st.accounts,
		Hasher:  newHasher(cfg.Password),
		Lockout: credential.LockoutPolicy{Threshold: cfg.Lockout.Threshold, Window: cfg.Lockout.Window},
		Signer:  signer,
		Mailer:  newMailer(backend, cfg.Mail, logger),
		Audit:   st.audit,
		Logger:  logger.Named("session"),
	}, session.Options{
		StoreTimeout:      cfg.Store.Timeout,
		MailTimeout:       cfg.Mail.Timeout,
		MinPasswordLength: cfg.Password.MinLength,
		AdminAddress:      cfg.Mail.AdminAddress,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		stores:  st,
		backend: backend,
		signer:  signer,
		svc:     svc,
	}, nil
}

func (a *app) Close() {
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Warnw("close mq backend", "error", err)
		}
	}
	a.stores.Close()
}
