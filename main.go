package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/velmor/infoshop-bot/internal/catalog"
	"github.com/velmor/infoshop-bot/internal/commerce"
	"github.com/velmor/infoshop-bot/internal/config"
	"github.com/velmor/infoshop-bot/internal/entitlement"
	"github.com/velmor/infoshop-bot/internal/handlers"
	"github.com/velmor/infoshop-bot/internal/middleware"
	"github.com/velmor/infoshop-bot/internal/promo"
	"github.com/velmor/infoshop-bot/internal/referral"
	"github.com/velmor/infoshop-bot/internal/scheduler"
	"github.com/velmor/infoshop-bot/internal/sl"
	"github.com/velmor/infoshop-bot/store"
)

func main() {
	cfg, err := config.Load("config.env")
	if err != nil {
		slog.Error("loading config", sl.Err(err))
		os.Exit(1)
	}

	log := setupLogger(cfg.Env)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cat, err := catalog.Parse(cfg.PlansSpec)
	if err != nil {
		log.Error("parsing plan catalog", sl.Err(err))
		os.Exit(1)
	}

	rdb, err := store.NewRedisClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, "infoshop_bot")
	if err != nil {
		log.Error("connecting to redis", sl.Err(err))
		os.Exit(1)
	}
	defer rdb.Close()

	stateStore := store.NewRedisStateStore(rdb, 24)

	pgStore, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("connecting to postgres", sl.Err(err))
		os.Exit(1)
	}
	defer pgStore.Close()

	entitlements := entitlement.New(pgStore, log)
	referrals := referral.New(pgStore, pgStore, cfg.ReferralBonus, log)
	promos := promo.New(pgStore, pgStore, cat, entitlements, cfg.PromoCredit, log)
	orchestrator := commerce.New(pgStore, pgStore, promos, entitlements, referrals, log)

	if cfg.BotToken == "" {
		log.Error("BOT_TOKEN is not set")
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout: 2 * time.Minute,
	}
	pollTimeout := 50 * time.Second

	b, err := bot.New(
		cfg.BotToken,
		bot.WithHTTPClient(pollTimeout, httpClient),
	)
	if err != nil {
		log.Error("creating bot", sl.Err(err))
		os.Exit(1)
	}

	botUsername := ""
	if me, err := b.GetMe(ctx); err != nil {
		log.Warn("resolving bot username", sl.Err(err))
	} else {
		botUsername = me.Username
	}

	sweeper := scheduler.NewScheduler(entitlements, scheduler.Config{Interval: cfg.SweepInterval}, log)
	sweeper.Start()
	defer sweeper.Stop()

	h := handlers.NewHandlers(cfg, cat, orchestrator, entitlements, referrals, pgStore, pgStore, stateStore, pgStore, pgStore, botUsername, log)
	middlewares := middleware.NewMessageAnalyzer(pgStore, log)

	handlerChain := middlewares.IdentifyUserMiddleware(
		middlewares.AnalyzeMessageMiddleware(
			h.MainHandler,
		),
	)

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, handlerChain)

	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, handlerChain)

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.PreCheckoutQuery != nil
	}, handlerChain)

	log.Info("bot started", slog.String("env", cfg.Env))
	b.Start(ctx)
}

func setupLogger(env string) *slog.Logger {
	var handler slog.Handler
	switch env {
	case "local", "dev":
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	default:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.New(handler)
}
