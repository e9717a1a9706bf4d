package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/archive"
	"github.com/frahmantamala/coaching-payments/internal/broker"
	"github.com/frahmantamala/coaching-payments/internal/core/events"
	"github.com/frahmantamala/coaching-payments/internal/lock"
	"github.com/frahmantamala/coaching-payments/internal/notification"
	"github.com/frahmantamala/coaching-payments/internal/payment"
	paymentfirestore "github.com/frahmantamala/coaching-payments/internal/payment/firestore"
	paymentmongo "github.com/frahmantamala/coaching-payments/internal/payment/mongo"
	paymentpostgres "github.com/frahmantamala/coaching-payments/internal/payment/postgres"
	"github.com/frahmantamala/coaching-payments/internal/paymentgateway"
	"github.com/frahmantamala/coaching-payments/internal/transport/rest"
)

// Dependencies is the wired application shared by every command.
type Dependencies struct {
	Config         *internal.Config
	Logger         *slog.Logger
	EventBus       *events.EventBus
	PendingPayment payment.PendingPaymentRepository
	Invoice        payment.InvoiceRepository
	Service        *payment.Service
	Mailer         notification.Mailer
	Producer       *broker.Producer
	Checks         map[string]rest.Checker

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (d *Dependencies) Close() {
	d.EventBus.Wait()
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func (d *Dependencies) onClose(fn func()) {
	d.closers = append(d.closers, fn)
}

func initializeDependencies(ctx context.Context, cfg *internal.Config, log *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:   cfg,
		Logger:   log,
		EventBus: events.NewEventBus(log),
		Checks:   make(map[string]rest.Checker),
	}

	if err := deps.initStore(ctx); err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	locker := deps.initLocker()

	if cfg.Kafka.Enabled() {
		deps.Producer = broker.NewProducer(log, cfg.Kafka.Brokers)
		deps.onClose(deps.Producer.Close)
	}

	if cfg.Email.Enabled {
		deps.Mailer = notification.NewSMTPMailer(cfg.Email)
	} else {
		log.Warn("email disabled, confirmation emails will be skipped")
	}

	if err := deps.registerSubscribers(); err != nil {
		deps.Close()
		return nil, err
	}

	gateway := paymentgateway.NewClient(paymentgateway.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		SecretKey: cfg.Gateway.SecretKey,
		Timeout:   cfg.Gateway.Timeout,
		RetryMax:  cfg.Gateway.RetryMax,
	}, log)
	if !gateway.Configured() {
		log.Warn("payment gateway secret key missing, confirmations will fail with a configuration error")
	}
	deps.Checks["gateway"] = func(context.Context) error {
		if !gateway.Configured() {
			return errors.New("gateway secret key is not configured")
		}
		return nil
	}

	deps.Service = payment.NewService(payment.Dependencies{
		Gateway:        gateway,
		PendingPayment: deps.PendingPayment,
		Invoice:        deps.Invoice,
		Notifier:       notification.NewDispatcher(deps.Mailer, deps.EventBus, log),
		Locker:         locker,
		EventBus:       deps.EventBus,
		Logger:         log,
	})

	return deps, nil
}

func (d *Dependencies) initStore(ctx context.Context) error {
	cfg := d.Config
	switch cfg.Database.Driver {
	case internal.DriverFirestore:
		client, err := paymentfirestore.NewClient(ctx, cfg.Firestore)
		if err != nil {
			return err
		}
		d.onClose(func() { _ = client.Close() })
		d.PendingPayment = paymentfirestore.NewPendingPaymentRepository(client, cfg.Firestore.PendingPayments)
		d.Invoice = paymentfirestore.NewInvoiceRepository(client, cfg.Firestore.Invoices)
		d.Checks["firestore"] = func(ctx context.Context) error {
			_, err := client.Collection(cfg.Firestore.PendingPayments).Limit(1).Documents(ctx).GetAll()
			return err
		}

	case internal.DriverMongo:
		client, err := paymentmongo.Connect(ctx, cfg.Mongo)
		if err != nil {
			return err
		}
		d.onClose(func() { _ = client.Disconnect(context.Background()) })
		db := client.Database(cfg.Mongo.Database)
		if err := paymentmongo.Migrate(ctx, db); err != nil {
			return err
		}
		d.PendingPayment = paymentmongo.NewPendingPaymentRepository(db)
		d.Invoice = paymentmongo.NewInvoiceRepository(db)
		d.Checks["mongo"] = func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		}

	case internal.DriverPostgres, internal.DriverSQLite:
		gdb, err := d.openGorm()
		if err != nil {
			return err
		}
		d.PendingPayment = paymentpostgres.NewPendingPaymentRepository(gdb)
		d.Invoice = paymentpostgres.NewInvoiceRepository(gdb)

	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	d.Logger.Info("store initialized", "driver", cfg.Database.Driver)
	return nil
}

// openGorm shares one pool between gorm and the health check. Postgres goes
// through sqlx on the pgx stdlib driver; sqlite is opened by gorm directly.
func (d *Dependencies) openGorm() (*gorm.DB, error) {
	cfg := d.Config.Database
	gormCfg := &gorm.Config{
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	if cfg.Driver == internal.DriverSQLite {
		gdb, err := gorm.Open(sqlite.Open(cfg.Source), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		if err := gdb.AutoMigrate(&paymentpostgres.PendingPaymentModel{}, &paymentpostgres.InvoiceModel{}); err != nil {
			return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		d.onClose(func() { _ = sqlDB.Close() })
		d.Checks["sqlite"] = sqlDB.PingContext
		return gdb, nil
	}

	db, err := initDB(cfg)
	if err != nil {
		return nil, err
	}
	d.onClose(func() { _ = db.Close() })
	d.Checks["postgres"] = db.PingContext

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return gdb, nil
}

func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	db, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func (d *Dependencies) initLocker() lock.Locker {
	cfg := d.Config.Redis
	if cfg.Addr == "" {
		d.Logger.Warn("redis not configured, confirmation locks are process local")
		return lock.NewMemoryLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	d.onClose(func() { _ = client.Close() })
	d.Checks["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	return lock.NewRedisLocker(client, cfg.LockTTL)
}

// registerSubscribers attaches the best-effort consumers of confirmation
// events. Each one is optional and driven by its config section.
func (d *Dependencies) registerSubscribers() error {
	cfg := d.Config
	var sinks []payment.ConfirmedSink

	if cfg.Archive.Enabled {
		client, err := archive.NewS3Client(cfg.Archive)
		if err != nil {
			return err
		}
		sinks = append(sinks, archive.NewS3Archive(client, cfg.Archive.Bucket, cfg.Archive.Prefix))
	}

	if d.Producer != nil {
		sinks = append(sinks, broker.NewForwarder(d.Producer, cfg.Kafka.PaymentConfirmedTopic))

		if d.Mailer != nil {
			queue := notification.NewRetryQueue(d.Producer, d.Mailer,
				cfg.Kafka.NotificationRetryTopic, cfg.Kafka.MaxNotificationRetries, d.Logger)
			queue.RegisterEventHandlers(d.EventBus)
		}
	}

	if len(sinks) > 0 {
		payment.NewEventHandler(d.Logger, sinks...).RegisterEventHandlers(d.EventBus)
	}
	return nil
}
