package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/coaching-payments/internal/broker"
	"github.com/frahmantamala/coaching-payments/internal/notification"
	"github.com/frahmantamala/coaching-payments/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers that drain the Kafka queues fed by the HTTP server.`,
}

var notificationWorkerCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Resend failed confirmation emails",
	Long:  `Consume the notification retry topic and resend confirmation emails until they succeed or run out of attempts.`,
	Run: func(cmd *cobra.Command, args []string) {
		startNotificationWorker()
	},
}

var workerGroup string

func init() {
	notificationWorkerCmd.Flags().StringVarP(&workerGroup, "group", "g", "", "kafka consumer group, overrides kafka.consumer_group")
	workerCmd.AddCommand(notificationWorkerCmd)
}

func startNotificationWorker() {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(cfg.Environment, cfg.Observability.Logging.Level)

	if !cfg.Kafka.Enabled() {
		log.Error("kafka brokers are not configured")
		os.Exit(1)
	}
	if !cfg.Email.Enabled {
		log.Error("email is disabled, nothing to resend")
		os.Exit(1)
	}

	group := workerGroup
	if group == "" {
		group = cfg.Kafka.ConsumerGroup
	}
	topic := cfg.Kafka.NotificationRetryTopic

	producer := broker.NewProducer(log, cfg.Kafka.Brokers)
	defer producer.Close()

	queue := notification.NewRetryQueue(producer, notification.NewSMTPMailer(cfg.Email),
		topic, cfg.Kafka.MaxNotificationRetries, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := broker.NewConsumer(log, cfg.Kafka.Brokers, group, topic).
		Handle(topic, queue.HandleRetry).
		Consume(ctx)

	log.Info("notification worker is running. Press Ctrl+C to stop.", "topic", topic, "group", group)

	<-ctx.Done()
	log.Info("received signal, shutting down notification worker")
	consumer.Close()
	log.Info("notification worker shutdown complete")
}
