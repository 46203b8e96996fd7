package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Cyvadra/tv-autotrade/broker"
	"github.com/Cyvadra/tv-autotrade/broker/binance"
	"github.com/Cyvadra/tv-autotrade/broker/delta"
	"github.com/Cyvadra/tv-autotrade/internal/config"
	"github.com/Cyvadra/tv-autotrade/internal/database"
	"github.com/Cyvadra/tv-autotrade/internal/handlers"
	"github.com/Cyvadra/tv-autotrade/internal/routes"
	"github.com/Cyvadra/tv-autotrade/internal/services"
	"github.com/gin-gonic/gin"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	userConfigFile := flag.String("users", "users.yaml", "Path to subscriber seed file (optional)")
	issueToken := flag.String("issue-token", "", "Print a 24h API token for the given user id and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", *configFile, err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if *issueToken != "" {
		token, err := handlers.GenerateToken(*issueToken, cfg.Auth.JWTSecret, time.Now().Add(24*time.Hour))
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	// Initialize database
	if err := database.InitDatabase(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.LogLevel); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()
	db := database.GetDB()

	users := services.NewUserService(db)
	if err := seedUsers(users, *userConfigFile); err != nil {
		log.Fatalf("Failed to seed users: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Exchange access
	gateways := delta.NewFactory(delta.Options{
		Region:    cfg.Exchange.Region,
		Testnet:   cfg.Exchange.Testnet,
		Timeout:   cfg.Exchange.RequestTimeout,
		RateLimit: cfg.Exchange.RateLimit,
		Burst:     cfg.Exchange.Burst,
		BaseURL:   cfg.Exchange.BaseURL,
	})
	var prices broker.PriceSource
	if cfg.Options.ReferencePrice.Binance {
		prices = binance.NewMarkPriceSource(cfg.Options.ReferencePrice.Timeout)
	}

	// Execution pipeline
	trades := services.NewTradeService(db)
	executor := services.NewExecutor(services.NewContractResolver(cfg.Options, prices), trades)
	gate := services.NewDedupGate(db, cfg.Dedup)
	dispatcher := services.NewDispatcher(cfg.Execution, users, gateways, executor, gate)
	// stopped only after the HTTP server, so in-flight webhooks still execute
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	dispatcher.Start(dispatchCtx)

	hub := services.NewHub()
	forward := services.NewForwardService(cfg.Endpoints)
	alerts := services.NewAlertService(db, gate, hub, users, forward, dispatcher)

	h := handlers.NewHandler(cfg, handlers.Services{
		Alerts:   alerts,
		Users:    users,
		Trades:   trades,
		Accounts: services.NewAccountService(gateways),
		Hub:      hub,
	})

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, cfg)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s (dedup %s, strike policy %s)", srv.Addr, cfg.Dedup.Mode, cfg.Options.StrikePolicy)
		log.Printf("TradingView webhook endpoint: http://%s/api/webhook/tradingview", srv.Addr)
		log.Printf("Health check: http://%s/health", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}

	// queued executions still run to completion
	stopDispatch()
	dispatcher.Wait()
	forward.Wait()
	log.Println("Stopped")
}

// seedUsers loads the optional subscriber seed file into the user store
func seedUsers(users *services.UserService, filename string) error {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		log.Printf("No user seed file at %s, using stored accounts", filename)
		return nil
	}

	userConfig, err := config.LoadUserConfig(filename)
	if err != nil {
		return err
	}
	return users.Seed(context.Background(), userConfig)
}
