// Worker consumes queued mail jobs from Kafka and delivers them over SMTP.
// Set KAFKA_BROKERS, MAIL_KAFKA_TOPIC, KAFKA_GROUP_ID and the SMTP_* settings.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"storefront/backend/internal/config"
	"storefront/backend/internal/notification"
	"storefront/backend/internal/platform/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		logger.Fatal("worker: KAFKA_BROKERS is required")
	}

	var mailer notification.Mailer
	if cfg.SMTPHost != "" {
		mailer = notification.NewSMTPMailer(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		logger.Warn("worker: SMTP_HOST not set; mail is logged, not sent")
		mailer = notification.NewLogMailer(logger)
	}

	consumer := notification.NewConsumer(brokers, cfg.MailKafkaTopic, cfg.KafkaGroupID, mailer, logger)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker: consuming mail jobs",
		zap.String("topic", cfg.MailKafkaTopic),
		zap.String("group", cfg.KafkaGroupID))
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker: consumer stopped", zap.Error(err))
		return
	}
	logger.Info("worker: stopped")
}
