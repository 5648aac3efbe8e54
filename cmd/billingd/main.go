// billingd is the billing reconciliation service: it receives provider
// webhook events, reconciles them into the entitlement store, and issues
// checkout and portal sessions.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	billinggin "github.com/fundeddesk/billingkit/adapters/gin"
	"github.com/fundeddesk/billingkit/adapters/ginutil"
	"github.com/fundeddesk/billingkit/billing"
	"github.com/fundeddesk/billingkit/config"
	"github.com/fundeddesk/billingkit/identity"
	jwtkit "github.com/fundeddesk/billingkit/jwt"
	memorylimiter "github.com/fundeddesk/billingkit/ratelimit/memory"
	redislimiter "github.com/fundeddesk/billingkit/ratelimit/redis"
	pgstore "github.com/fundeddesk/billingkit/storage/postgres"
	redisstore "github.com/fundeddesk/billingkit/storage/redis"
	stripekit "github.com/fundeddesk/billingkit/stripe"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("billingd: config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("billingd: postgres pool")
	}
	defer pg.Close()
	if err := pg.Ping(ctx); err != nil {
		log.WithError(err).Fatal("billingd: postgres ping")
	}

	store := pgstore.NewEntitlementStore(pg)
	var index billing.CustomerIndex = pgstore.NewCustomerIndex(pg)
	var limiter ginutil.RateLimiter = memorylimiter.New(memorylimiter.Defaults())

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Fatal("billingd: redis ping")
		}
		defer rdb.Close()
		index = redisstore.NewCustomerCache(rdb, index, "", 0)
		limiter = redislimiter.New(rdb, redislimiter.Defaults())
		log.WithField("addr", cfg.RedisAddr).Info("billingd: redis enabled")
	}

	stripekit.Init(cfg.StripeAPIKey)
	fetcher := stripekit.NewFetcher()
	resolver := identity.NewResolver(index, fetcher, log)
	engine := billing.NewEngine(fetcher, resolver, store, log)
	issuer := stripekit.NewSessionIssuer(stripekit.SessionConfig{
		MonthlyPriceID:  cfg.MonthlyPriceID,
		LifetimePriceID: cfg.LifetimePriceID,
		SuccessURL:      cfg.CheckoutSuccessURL,
		CancelURL:       cfg.CheckoutCancelURL,
		PortalReturnURL: cfg.PortalReturnURL,
	}, store, index, log)

	keySet, err := jwtkit.FetchKeySet(ctx, cfg.JWKSURL)
	if err != nil {
		log.WithError(err).Fatal("billingd: fetch JWKS")
	}
	verifier := jwtkit.NewVerifier(cfg.Issuer, cfg.Audience, keySet)

	sweeper := billing.NewLapseSweeper(store, log)
	sched := cron.New()
	if _, err := sched.AddFunc(cfg.SweepSchedule, func() { sweeper.Sweep(ctx) }); err != nil {
		log.WithError(err).Fatal("billingd: sweep schedule")
	}
	sched.Start()
	defer sched.Stop()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	billinggin.Mount(router, billinggin.Deps{
		WebhookSecret: cfg.StripeWebhookSecret,
		Engine:        engine,
		Issuer:        issuer,
		Store:         store,
		Verifier:      verifier,
		Limiter:       limiter,
		Log:           log,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("billingd: listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("billingd: shutting down")
	case err := <-errCh:
		log.WithError(err).Error("billingd: server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("billingd: shutdown")
	}
}
