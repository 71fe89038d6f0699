// Package server wires the authkeeper components together and runs them:
// the store (PostgreSQL or in-memory), the auth services, the HTTP API, the
// gRPC health endpoint and the reset token sweeper.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/authkeeper/internal/server/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/timex"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

const dbOpenTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	sqlDB   *sql.DB
	http    *httpapi.HTTPServer
	grpc    *gs.GRPCServer
	sweeper *services.ResetTokenSweeper
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)
	return newApp(c, logger)
}

func newApp(c *config.Config, logger logging.Logger) (*App, error) {
	ctx := context.Background()
	clock := timex.SystemClock{}

	if c.SecretKey == config.InsecureDefaultSecret {
		logger.Warn(ctx, "using the built-in development secret key; set -s or secret_key in production")
	}

	app := &App{config: c, logger: logger}

	var (
		db    dbx.Database
		repos repomanager.RepositoryManager
	)
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database DSN configured, using the in-memory store")
		store := memory.NewStore(clock)
		db, repos = store, store
	} else {
		openCtx, cancel := context.WithTimeout(ctx, dbOpenTimeout)
		defer cancel()

		sqlDB, err := repomanager.OpenPostgres(openCtx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		pm := repomanager.NewPostgresRepositoryManager()
		if err := pm.RunMigrations(openCtx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("db migration error: %w", err)
		}
		app.sqlDB = sqlDB
		db, repos = dbx.NewSQLDatabase(sqlDB, nil), pm
	}

	issuer, err := auth.NewTokenIssuer([]byte(c.SecretKey), c.AccessTokenValidityDuration, clock)
	if err != nil {
		app.closeDB()
		return nil, err
	}
	hasher := auth.NewArgon2idHasher(auth.DefaultArgon2Params)
	authn, err := auth.NewAuthenticator(repos.Users(db.Conn()), hasher)
	if err != nil {
		app.closeDB()
		return nil, err
	}

	m := metrics.New()
	refresh := services.NewRefreshTokenStore(db, repos, c.RefreshTokenValidityDuration, clock)
	reset := services.NewResetTokenStore(db, repos, c.ResetTokenValidityDuration, clock)
	sessions := services.NewSessionRegistry(db, repos)

	authService := services.NewAuthService(services.AuthServiceDeps{
		DB:               db,
		Repos:            repos,
		Authenticator:    authn,
		Issuer:           issuer,
		Hasher:           hasher,
		RefreshTokens:    refresh,
		ResetTokens:      reset,
		Mailer:           mail.NewLogSender(logger),
		ResetLinkBaseURL: c.ResetLinkBaseURL,
		Clock:            clock,
		Metrics:          m,
		Logger:           logger,
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Auth:         authService,
		Sessions:     sessions,
		Issuer:       issuer,
		Store:        db,
		Metrics:      m,
		Logger:       logger,
		CookieSecure: c.CookieSecure,
		RefreshTTL:   c.RefreshTokenValidityDuration,
	})

	app.http = httpapi.NewHTTPServer(c.EndpointAddrHTTP, router, logger)
	app.grpc = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, db)
	app.sweeper = services.NewResetTokenSweeper(reset, c.SweepInterval, m, logger)

	return app, nil
}

// Run starts all components and blocks until ctx is canceled, a shutdown
// signal arrives or one of the servers fails.
func (app *App) Run(ctx context.Context) error {

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
		cancelFunc()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := app.http.Run(ctx); err != nil {
			app.logger.Error(ctx, "HTTP server failed", logging.ErrorAttrs(err)...)
			fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := app.grpc.Run(ctx); err != nil {
			app.logger.Error(ctx, "gRPC server failed", logging.ErrorAttrs(err)...)
			fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Wait()
	app.closeDB()
	app.logger.Info(context.Background(), "App stopped")

	return firstErr
}

func (app *App) closeDB() {
	if app.sqlDB == nil {
		return
	}
	if err := app.sqlDB.Close(); err != nil {
		app.logger.Error(context.Background(), "db close failed", logging.ErrorAttrs(err)...)
	}
}
