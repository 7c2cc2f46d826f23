package cli

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	infrapg "quiz-session-service/internal/infra/postgres"
	redisrepo "quiz-session-service/internal/infra/redis"
	"quiz-session-service/internal/logger"
)

// NewServeCmd builds the CLI subcommand to run the session service: the
// expiry sweeper plus a health endpoint.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the quiz session service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	var questions app.QuestionDetailsRepository = infrapg.NewQuestionLoader(pool)
	if cfg.Redis.Addr != "" {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ttl := config.Duration(cfg.Redis.TTL, 10*time.Minute)
		questions = redisrepo.NewQuestionDetailsRepository(redisClient, questions, ttl)
	}

	fallbackLimit := config.Duration(cfg.Session.FallbackTimeLimit, 0)
	store := infrapg.NewEventStore(db, log)
	projector := infrapg.NewProjector(questions, fallbackLimit, log)
	sessions := infrapg.NewSessionRepository(db, store, projector, questions, log)
	service := app.NewSessionService(sessions, log)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz session service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "error", err)
		}
	}()

	sweepInterval := config.Duration(cfg.Session.SweepInterval, time.Minute)
	sweepLimit := cfg.Session.SweepLimit
	if sweepLimit <= 0 {
		sweepLimit = 100
	}
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go runSweeper(sweepCtx, service, sweepInterval, sweepLimit, log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down")
	case <-ctx.Done():
		log.Info("context canceled, shutting down")
	}

	cancelSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runSweeper periodically expires overdue sessions. Each tick is independent;
// failures are logged and the next tick tries again.
func runSweeper(ctx context.Context, service *app.SessionService, interval time.Duration, limit int, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired, err := service.SweepExpired(ctx, now, limit)
			if err != nil {
				log.Error("expiry sweep failed", "error", err)
				continue
			}
			if expired > 0 {
				log.Info("expired overdue sessions", "count", expired)
			}
		}
	}
}
