package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/task"
	taskrepo "github.com/ovaphlow/pitchfork/service-tasks-go/internal/task/repo"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-tasks-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-tasks-go")

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}

	// init db
	dbCfg, err := database.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("db config: %v", err)
	}
	db, err := database.Open(dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	users := userrepo.NewUserRepo(db)
	tasks := taskrepo.NewTaskRepo(db)
	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), dbCfg.Timeout)
	// users first: tasks.owner_id references it
	if err := users.EnsureTable(schemaCtx); err != nil {
		sugar.Fatalf("ensure users table: %v", err)
	}
	if err := tasks.EnsureTable(schemaCtx); err != nil {
		sugar.Fatalf("ensure tasks table: %v", err)
	}
	cancelSchema()

	tokens, err := auth.NewTokenService([]byte(cfg.JWTSecret))
	if err != nil {
		sugar.Fatalf("token service: %v", err)
	}
	ids, err := utilities.NewIDGenerator(cfg.SnowflakeNode)
	if err != nil {
		sugar.Fatalf("id generator: %v", err)
	}

	userSvc := user.NewUserService(users, user.BcryptHasher{Cost: cfg.BcryptCost}, ids)
	taskSvc := task.NewService(tasks, ids)

	handler := router.RegisterRoutes(sugar, router.Deps{
		Guard:       auth.NewGuard(tokens, userSvc, sugar),
		Users:       user.NewHandler(userSvc, tokens, sugar),
		Tasks:       task.NewHandler(taskSvc, sugar),
		CORSOrigins: cfg.CORSOrigins,
	})

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// run server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("listening", "addr", cfg.Addr(), "db", dbCfg.Driver)

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
