package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agropulse/marketplace/internal/app"
	"github.com/agropulse/marketplace/internal/clock"
	"github.com/agropulse/marketplace/internal/config"
	"github.com/agropulse/marketplace/internal/domain"
	"github.com/agropulse/marketplace/internal/gateway"
	"github.com/agropulse/marketplace/internal/geo"
	"github.com/agropulse/marketplace/internal/ratelimit"
	"github.com/agropulse/marketplace/internal/storage/postgres"
	transporthttp "github.com/agropulse/marketplace/internal/transport/http"
	"github.com/agropulse/marketplace/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := log.Default()
	cfg := config.Load(logger)

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	adminRepo := postgres.NewAdminRepository(pool)
	listingRepo := postgres.NewListingRepository(pool)
	offerRepo := postgres.NewOfferRepository(pool)
	contractRepo := postgres.NewContractRepository(pool)
	searchRepo := postgres.NewSearchRepository(pool)

	resolver := &regionResolver{repo: adminRepo}
	clk := clock.NewSystem()
	payments := &gateway.LogPaymentGateway{Logger: logger}
	notifier := &gateway.LogNotifier{Logger: logger}

	listingSvc := app.NewListingService(listingRepo, adminRepo, resolver, clk)
	searchSvc := app.NewSearchService(searchRepo, resolver, adminRepo, clk)
	contractSvc := app.NewContractService(contractRepo, listingSvc, payments, notifier, clk)
	offerSvc := app.NewOfferService(offerRepo, listingSvc, adminRepo, contractSvc, notifier, clk)
	adminSvc := app.NewAdminService(adminRepo, resolver, clk)

	var limiter transporthttp.SearchLimiter
	if cfg.RedisURL != "" {
		rl, err := ratelimit.New(cfg.RedisURL, cfg.SearchDailyLimit)
		if err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		defer rl.Close()
		limiter = rl
		logger.Printf("search rate limiter enabled, %d requests per buyer per day", cfg.SearchDailyLimit)
	} else {
		logger.Printf("WARN: REDIS_URL not set, search rate limiting disabled")
	}

	handler := transporthttp.NewRouter(transporthttp.RouterDeps{
		Listings:    listingSvc,
		Search:      searchSvc,
		Offers:      offerSvc,
		Contracts:   contractSvc,
		Admin:       adminSvc,
		Limiter:     limiter,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})

	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	defer stopSweeps()
	sweeper := app.NewSweeper(offerSvc, contractSvc, listingSvc, logger)
	go sweeper.Run(sweepCtx)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	log.Printf("api listening on :%s", cfg.Port)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
		}
	case <-stopCtx.Done():
		log.Printf("shutdown signal received, stopping server")
	}

	stopSweeps()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server shutdown error: %v", err)
	}
	log.Printf("server stopped")
}

// regionResolver resolves against the current region set on every call, so
// regions imported after startup are picked up without a restart. The region
// table is small reference data; reloading it per resolution is fine.
type regionResolver struct {
	repo *postgres.AdminRepository
}

func (r *regionResolver) Resolve(p domain.Point) (domain.Region, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	regions, err := r.repo.ListRegions(ctx)
	if err != nil {
		return domain.Region{}, err
	}
	return geo.NewResolver(regions).Resolve(p)
}
