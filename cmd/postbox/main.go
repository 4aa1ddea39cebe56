package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/gomail.v2"

	"github.com/quantonganh/postbox"
	"github.com/quantonganh/postbox/bolt"
	"github.com/quantonganh/postbox/feed"
	"github.com/quantonganh/postbox/http"
	"github.com/quantonganh/postbox/mail"
	"github.com/quantonganh/postbox/rabbitmq"
	"github.com/quantonganh/postbox/ses"
	"github.com/quantonganh/postbox/sqlite"
)

const (
	feedTimeout = 30 * time.Second
	usage       = `usage: postbox <command> [config-dir]

commands:
  serve    run the HTTP API, plus clean and notify on cleanup.cron and feed.cron
  notify   mail new feed items to the subscribers (sqlite only while serve runs)
  clean    drop subscriptions that were never confirmed
  worker   mail the new feed items published to the queue`
)

// storage is what every command needs from the database
type storage interface {
	postbox.Storage
	postbox.SubscriberStore
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	configDir := "."
	if len(os.Args) > 2 {
		configDir = os.Args[2]
	}

	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	config, err := loadConfig(configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn: config.Sentry.DSN,
	}); err != nil {
		log.Fatal().Err(err).Msg("sentry.Init")
	}
	defer sentry.Flush(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
	}()

	a := newApp(config, log.Logger)
	if err := a.Open(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	switch command {
	case "serve":
		err = a.Serve(ctx)
	case "notify":
		err = a.Notify(ctx)
	case "clean":
		err = a.Clean()
	case "worker":
		err = a.Work(ctx)
	default:
		err = errors.Errorf("unknown command %q\n\n%s", command, usage)
	}

	if closeErr := a.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		sentry.CaptureException(err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(dir string) (*postbox.Config, error) {
	viper.SetConfigName("config")
	viper.AddConfigPath(dir)
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("db.type", "bolt")
	viper.SetDefault("db.path", "postbox.db")
	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("newsletter.confirm_url_format", postbox.DefaultConfirmURLFormat)
	viper.SetDefault("cleanup.confirm_timeout_minutes", 24*60)
	viper.SetDefault("amqp.queue", rabbitmq.NewPostTopic)

	if err := viper.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var config *postbox.Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	return config, nil
}

type app struct {
	config *postbox.Config
	db     postbox.Database
	store  storage
	logger zerolog.Logger
}

func newApp(config *postbox.Config, logger zerolog.Logger) *app {
	a := &app{
		config: config,
		logger: logger,
	}

	switch config.DB.Type {
	case "sqlite":
		db := sqlite.NewDB(config.DB.Path)
		a.db, a.store = db, sqlite.NewStore(db)
	default:
		db := bolt.NewDB(config.DB.Path)
		a.db, a.store = db, bolt.NewStore(db)
	}

	return a
}

func (a *app) Open() error {
	return a.db.Open()
}

func (a *app) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// dialer picks SES, then SMTP, then drops mail when neither is configured
func (a *app) dialer(ctx context.Context) (mail.Dialer, error) {
	switch {
	case a.config.SES.Region != "":
		return ses.NewDialer(ctx, a.config.SES.Region)
	case a.config.SMTP.Host != "":
		return gomail.NewDialer(a.config.SMTP.Host, a.config.SMTP.Port, a.config.SMTP.Username, a.config.SMTP.Password), nil
	default:
		a.logger.Warn().Msg("No mail transport configured, emails will be dropped")
		return mail.NoopDialer{}, nil
	}
}

func (a *app) mailer(ctx context.Context) (*mail.Mailer, error) {
	d, err := a.dialer(ctx)
	if err != nil {
		return nil, err
	}
	return mail.NewMailer(mail.NewSettings(a.config), d), nil
}

func (a *app) Serve(ctx context.Context) error {
	mailer, err := a.mailer(ctx)
	if err != nil {
		return err
	}

	svc := postbox.NewRegistrationService(a.store, mailer, postbox.SecureTokenGenerator{})
	svc.Logger = a.logger

	httpServer := http.NewServer(a.logger)
	httpServer.Addr = a.config.HTTP.Addr
	httpServer.Domain = a.config.HTTP.Domain
	httpServer.RegistrationService = svc

	c, err := a.scheduler(ctx)
	if err != nil {
		return err
	}

	if err := httpServer.Open(); err != nil {
		return err
	}
	a.logger.Info().Str("url", httpServer.URL()).Msg("Listening")

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	return httpServer.Close()
}

// scheduler runs the periodic jobs of serve on the store serve already holds
// open. A job is skipped while its previous run is still going, which keeps
// notifier runs serialized.
func (a *app) scheduler(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{a.logger})))

	if schedule := a.config.Cleanup.Cron; schedule != "" {
		if _, err := c.AddFunc(schedule, a.job("clean", a.Clean)); err != nil {
			return nil, errors.Wrapf(err, "invalid cleanup cron %q", schedule)
		}
	}

	if schedule := a.config.Feed.Cron; schedule != "" {
		if _, err := c.AddFunc(schedule, a.job("notify", func() error {
			return a.Notify(ctx)
		})); err != nil {
			return nil, errors.Wrapf(err, "invalid feed cron %q", schedule)
		}
	}

	return c, nil
}

func (a *app) job(name string, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			a.logger.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
			sentry.CaptureException(err)
		}
	}
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Interface("details", keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Interface("details", keysAndValues).Msg(msg)
}

func (a *app) Notify(ctx context.Context) error {
	if a.config.Feed.URL == "" {
		return errors.New("feed.url is required")
	}

	fc := feed.NewClient(feedTimeout)
	fc.Logger = a.logger
	items, err := fc.Fetch(ctx, a.config.Feed.URL)
	if err != nil {
		return err
	}

	var consumer postbox.Consumer
	if a.config.AMQP.URL != "" {
		queue, err := rabbitmq.NewQueueService(a.config.AMQP.URL)
		if err != nil {
			return err
		}
		defer queue.Close()

		consumer = rabbitmq.NewPublisher(queue, a.config.AMQP.Queue)
	} else {
		mailer, err := a.mailer(ctx)
		if err != nil {
			return err
		}

		npm, err := mail.NewNewPostMailer(a.store, mailer)
		if err != nil {
			return err
		}
		npm.Logger = a.logger
		consumer = npm
	}

	notifier := postbox.NewNewPostNotifier(a.store, consumer)
	notifier.Logger = a.logger

	n, err := notifier.Notify(items)
	a.logger.Info().Int("feed", len(items)).Int("dispatched", n).Msg("Notified")
	return err
}

func (a *app) Clean() error {
	timeout := time.Duration(a.config.Cleanup.ConfirmTimeoutMinutes) * time.Minute
	n, err := a.store.DropUnconfirmed(time.Now().UTC().Add(-timeout))
	if err != nil {
		return err
	}

	a.logger.Info().Int("dropped", n).Dur("timeout", timeout).Msg("Dropped unconfirmed subscriptions")
	return nil
}

func (a *app) Work(ctx context.Context) error {
	if a.config.AMQP.URL == "" {
		return errors.New("amqp.url is required")
	}

	queue, err := rabbitmq.NewQueueService(a.config.AMQP.URL)
	if err != nil {
		return err
	}
	defer queue.Close()

	mailer, err := a.mailer(ctx)
	if err != nil {
		return err
	}

	// subscribers are reloaded for every item since the worker is long-lived
	consumer := postbox.ConsumerFunc(func(item postbox.FeedItem) error {
		npm, err := mail.NewNewPostMailer(a.store, mailer)
		if err != nil {
			return err
		}
		npm.Logger = a.logger
		return npm.Consume(item)
	})

	w := rabbitmq.NewWorker(queue, a.config.AMQP.Queue, consumer)
	w.Logger = a.logger

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
