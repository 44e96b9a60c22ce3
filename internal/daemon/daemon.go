package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stagelight/fanquest/internal/api"
	"github.com/stagelight/fanquest/internal/app/engagement"
	"github.com/stagelight/fanquest/internal/app/gacha"
	"github.com/stagelight/fanquest/internal/app/verify"
	"github.com/stagelight/fanquest/internal/domain"
	"github.com/stagelight/fanquest/internal/health"
	"github.com/stagelight/fanquest/internal/infra/catalog"
	"github.com/stagelight/fanquest/internal/infra/scheduler"
	"github.com/stagelight/fanquest/internal/infra/sqlite"
	"github.com/stagelight/fanquest/internal/infra/streaming"
	"github.com/stagelight/fanquest/internal/security"
)

// Daemon is the fanquest runtime. It wires together all services.
type Daemon struct {
	Config    Config
	DB        *sqlite.DB
	Catalog   *catalog.Catalog
	Engine    *engagement.Engine
	Health    *health.Checker
	Scheduler *scheduler.Scheduler
	Server    *api.Server
	Keypair   *security.Keypair
	Log       *logrus.Logger

	logFile io.Closer
	cancel  context.CancelFunc
}

// New creates and initializes a Daemon from the on-disk configuration.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	logger, logFile, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	d := &Daemon{Config: cfg, Log: logger, logFile: logFile}
	log := logger.WithField("component", "daemon")

	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	storeDir := cfg.Store.Dir
	if storeDir == "" {
		storeDir = fanquestHome()
	}
	d.DB, err = sqlite.Open(storeDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d.Catalog, err = catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	if err := cfg.Gacha.Validate(); err != nil {
		return nil, err
	}
	resolver := gacha.NewResolver(cfg.Gacha, d.Catalog)

	var verifier *verify.Verifier
	if cfg.Streaming.APIKey != "" {
		client := streaming.New(streaming.Config{
			BaseURL:   cfg.Streaming.BaseURL,
			APIKey:    cfg.Streaming.APIKey,
			Timeout:   cfg.Streaming.Timeout,
			RateLimit: cfg.Streaming.RateLimit,
			Burst:     cfg.Streaming.Burst,
		})
		verifier = verify.New(client, verify.Config{
			PageSize: cfg.Streaming.PageSize,
			MaxPages: cfg.Streaming.MaxPages,
			Timeout:  4 * cfg.Streaming.Timeout,
		}, logger)
	} else {
		log.Warn("no streaming api key configured; stream verification disabled")
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	d.Engine = engagement.NewEngine(d.DB, d.Catalog, resolver, verifier, engineCfg, logger)

	identity, err := d.identity()
	if err != nil {
		return nil, err
	}

	d.Health = health.NewChecker(d.DB, storeDir, d.Catalog, logger)

	d.Scheduler, err = scheduler.New(logger)
	if err != nil {
		return nil, err
	}
	if err := d.addJobs(); err != nil {
		return nil, err
	}

	d.Server = api.NewServer(d.Engine, d.Catalog, identity, d.Health, api.Config{
		RequestTimeout: cfg.API.RequestTimeout,
		RateLimit:      cfg.API.RateLimit,
		RateBurst:      cfg.API.RateBurst,
		AllowedOrigin:  cfg.API.CORSOrigin,
		EnableMetrics:  cfg.Telemetry.Prometheus,
	}, logger)

	ok = true
	return d, nil
}

// identity builds the bearer token verifier from the shared secret and,
// if enabled, the node's Ed25519 key. With neither, every authenticated
// route answers 401.
func (d *Daemon) identity() (domain.IdentityVerifier, error) {
	cfg := d.Config.Auth
	vc := security.VerifierConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		Leeway:   cfg.Leeway,
	}
	if cfg.UseNodeKey {
		kp, err := security.LoadOrCreateKeypair(Home())
		if err != nil {
			d.Log.WithField("component", "daemon").WithError(err).Warn("node key unavailable; EdDSA tokens disabled")
		} else {
			d.Keypair = kp
			vc.PublicKey = kp.Public
		}
	}
	if len(vc.Secret) == 0 && vc.PublicKey == nil {
		d.Log.WithField("component", "daemon").Warn("no jwt secret or node key; authenticated routes will reject every request")
		return nil, nil
	}
	v, err := security.NewVerifier(vc)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// addJobs registers the period closer and the health check.
func (d *Daemon) addJobs() error {
	closer := scheduler.Job{
		Name:  "close-periods",
		Every: d.Config.Scheduler.ClosePeriodsEvery,
		Run: func(ctx context.Context) error {
			_, err := d.ClosePeriods(ctx, time.Now())
			return err
		},
	}
	healthJob := scheduler.Job{
		Name:  "health",
		Every: d.Config.Scheduler.HealthEvery,
		Run: func(ctx context.Context) error {
			d.Health.RunOnce(ctx)
			return nil
		},
	}
	for _, job := range []scheduler.Job{closer, healthJob} {
		if job.Every <= 0 {
			continue
		}
		if err := d.Scheduler.Add(job, true); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}
	return nil
}

// ClosePeriods freezes every finished daily and weekly leaderboard period
// and returns how many it closed.
func (d *Daemon) ClosePeriods(ctx context.Context, now time.Time) (int, error) {
	var (
		errs  []error
		total int
	)
	for _, b := range []domain.Board{domain.BoardDaily, domain.BoardWeekly} {
		closed, err := d.Engine.Leaderboards().ClosePast(ctx, b, now)
		if err != nil {
			errs = append(errs, err)
		}
		if len(closed) > 0 {
			total += len(closed)
			d.Log.WithFields(logrus.Fields{
				"component": "daemon",
				"board":     b,
				"periods":   closed,
			}).Info("closed leaderboard periods")
		}
	}
	return total, errors.Join(errs...)
}

// Serve starts the scheduler and the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	log := d.Log.WithField("component", "daemon")

	d.Scheduler.Start()

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      d.Config.API.RequestTimeout + 10*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		log.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}()

	log.WithFields(logrus.Fields{
		"addr":      addr,
		"metrics":   d.Config.Telemetry.Prometheus,
		"streaming": d.Config.Streaming.APIKey != "",
	}).Info("fanquest serving")

	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		// wait for in-flight requests before the store goes away
		<-drained
		err = nil
	}
	d.Close()
	return err
}

// Close shuts down all daemon resources. Safe to call more than once.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.Scheduler != nil {
		if err := d.Scheduler.Shutdown(); err != nil {
			d.Log.WithField("component", "daemon").WithError(err).Warn("scheduler shutdown")
		}
		d.Scheduler = nil
	}
	if d.DB != nil {
		_ = d.DB.Close()
		d.DB = nil
	}
	if d.logFile != nil {
		_ = d.logFile.Close()
		d.logFile = nil
	}
}

// NewLogger builds the service logger. The returned closer is non-nil when
// output goes to a file.
func NewLogger(cfg LoggingConfig) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, nil, fmt.Errorf("logging.level: %w", err)
	}
	logger.SetLevel(lvl)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.File == "" {
		logger.SetOutput(os.Stderr)
		return logger, nil, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(f)
	return logger, f, nil
}
