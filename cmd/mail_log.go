package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/mail"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/mq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// mailLogCmd drains the mail queue into the log. It stands in for a real
// mail relay in development.
var mailLogCmd = &cobra.Command{
	Use:   "mail-log",
	Short: "Consume the mail queue and log every envelope",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Parse()
		if err != nil {
			return err
		}
		lg, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer lg.Sync()
		sugar := lg.Sugar().Named("mail-log")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backend, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		if backend == nil {
			return fmt.Errorf("mail-log needs a broker, MAIL_BACKEND is %q", cfg.Mail.Backend)
		}
		defer backend.Close()

		sugar.Infow("consuming mail queue", "queue", cfg.Mail.Queue, "backend", cfg.Mail.Backend)
		err = backend.Subscribe(ctx, cfg.Mail.Queue, logEnvelope(sugar))
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mailLogCmd)
}

// logEnvelope acks malformed deliveries after logging them; requeueing
// would only redeliver the same bytes.
func logEnvelope(logger *zap.SugaredLogger) mq.Handler {
	return func(_ context.Context, msg mq.Message) error {
		env, err := mail.DecodeEnvelope(msg.Data)
		if err != nil {
			logger.Warnw("dropping malformed envelope", "id", msg.ID, "error", err)
			return nil
		}
		logger.Infow("mail",
			"id", msg.ID,
			"to", env.To,
			"subject", env.Subject,
			"body", env.Body,
			"template", env.Template,
			"queued_at", env.QueuedAt,
		)
		return nil
	}
}
