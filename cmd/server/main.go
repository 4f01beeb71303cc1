package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hholt/choreboard/internal/api"
	"github.com/hholt/choreboard/internal/auth"
	"github.com/hholt/choreboard/internal/changefeed"
	"github.com/hholt/choreboard/internal/config"
	"github.com/hholt/choreboard/internal/ledger"
	"github.com/hholt/choreboard/internal/models"
	"github.com/hholt/choreboard/internal/notify"
	"github.com/hholt/choreboard/internal/reconcile"
	"github.com/hholt/choreboard/internal/repository"
	"github.com/hholt/choreboard/internal/service/leaderboard"
	"github.com/hholt/choreboard/internal/service/scheduler"
	"github.com/hholt/choreboard/internal/shop"
	"github.com/hholt/choreboard/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log := logger.Get()

	log.Info().
		Int("port", cfg.Server.Port).
		Str("environment", cfg.Server.Environment).
		Msg("Starting choreboard server")

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(&cfg.Database.Postgres, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	feed, err := changefeed.NewRedisFeed(&cfg.Database.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer feed.Close()

	// Repositories publish row changes to the feed after each write.
	taskRepo := repository.NewTaskRepository(db, feed)
	suggestionRepo := repository.NewSuggestionRepository(db, feed)
	rewardRepo := repository.NewRewardRepository(db, feed)
	purchaseRepo := repository.NewPurchaseRepository(db, feed)
	settingsRepo := repository.NewSettingsRepository(db, feed)
	userRepo := repository.NewUserRepository(db, feed)
	activityRepo := repository.NewActivityRepository(db)

	roles := auth.DefaultRoleMap(cfg.Auth.StewardRole, cfg.Auth.MemberRole)
	if cfg.Auth.RoleMapPath != "" {
		roles, err = auth.LoadRoleMap(cfg.Auth.RoleMapPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Auth.RoleMapPath).Msg("Failed to load role map")
		}
	}

	sessionTTL := time.Duration(cfg.Auth.SessionTTL) * time.Minute
	sessions := auth.NewManager(userRepo, activityRepo, roles, sessionTTL, log)

	points := ledger.NewAccumulator(userRepo, activityRepo, cfg.Auth.StewardRole, log)
	ledgerService := ledger.NewService(taskRepo, suggestionRepo, points, sessions, log)

	shopDefaults := models.ShopSettings{
		ID:                              models.ShopSettingsID,
		InstantPurchaseLimit:            cfg.Shop.InstantPurchaseLimit,
		ResetDurationDays:               cfg.Shop.ResetDurationDays,
		RequiresAuthorizationAfterLimit: cfg.Shop.RequiresAuthorizationAfterLimit,
	}
	shopService := shop.NewService(rewardRepo, purchaseRepo, settingsRepo, points, sessions, shopDefaults, log)

	cooldown := time.Duration(cfg.Ledger.RefreshCooldown) * time.Second
	reconciler := reconcile.NewReconciler(feed, taskRepo, suggestionRepo, rewardRepo, purchaseRepo, settingsRepo, shopDefaults, cooldown, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reconciler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start reconciler")
	}

	notifier := notify.NewClient(&cfg.Notify, log)
	standings := leaderboard.NewService(taskRepo, purchaseRepo, userRepo, log)

	sched := scheduler.NewService(cfg, ledgerService, shopService, notifier, activityRepo, log)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	defer sched.Stop()

	handler := api.NewHandler(
		ledgerService,
		shopService,
		sessions,
		points,
		reconciler,
		standings,
		activityRepo,
		taskRepo,
		cfg.Auth.ActivityCap,
		log,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
}
