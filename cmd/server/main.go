package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dayoungkim/stockfolio-backend/internal/adapter/quoteapi"
	"github.com/dayoungkim/stockfolio-backend/internal/adapter/repository/postgres"
	"github.com/dayoungkim/stockfolio-backend/internal/usecase/fx"
	"github.com/dayoungkim/stockfolio-backend/internal/usecase/quotes"
	"github.com/dayoungkim/stockfolio-backend/internal/usecase/valuation"
)

const (
	defaultAPIToken = "dev-token"
	defaultHTTPPort = "8080"
)

func main() {
	// 1. Setup Database
	dbConnStr := os.Getenv("DB_CONN_STR")
	if dbConnStr == "" {
		// If explicit string is missing, build it from individual vars (Docker friendly)
		host := os.Getenv("DB_HOST")
		if host == "" {
			host = "localhost" // Default for local run without docker
		}
		port := os.Getenv("DB_PORT")
		if port == "" {
			port = "5432"
		}
		user := os.Getenv("DB_USER")
		if user == "" {
			user = "postgres"
		}
		password := os.Getenv("DB_PASSWORD")
		if password == "" {
			password = "postgres"
		}
		dbname := os.Getenv("DB_NAME")
		if dbname == "" {
			dbname = "stockfolio"
		}

		dbConnStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, dbname)
	}

	db, err := postgres.NewDB(dbConnStr)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// 2. Initialize Repositories (Postgres)
	quoteCacheRepo := postgres.NewQuoteCacheRepository(db)
	holdingRepo := postgres.NewHoldingRepository(db)
	exchangeRateRepo := postgres.NewExchangeRateRepository(db)

	// 3. Initialize Quote Provider Client
	quoteClient := quoteapi.NewClient(quoteapi.Config{
		BaseURL: os.Getenv("QUOTE_API_URL"),
		APIKey:  os.Getenv("QUOTE_API_KEY"),
	})

	// 4. Initialize Services (Use Cases)
	quoteService := quotes.NewService(quoteCacheRepo, quoteClient)
	fxService := fx.NewService(exchangeRateRepo)
	valuationService := valuation.NewService(holdingRepo, quoteService, fxService)

	// 5. Start HTTP Server
	apiToken := os.Getenv("API_TOKEN")
	if apiToken == "" {
		apiToken = defaultAPIToken
	}
	httpPort := os.Getenv("PORT")
	if httpPort == "" {
		httpPort = defaultHTTPPort
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("GET /api/v1/households/{id}/valuation",
		requireToken(apiToken, handleValuation(valuationService)))

	server := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on :%s", httpPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve HTTP server: %v", err)
		}
	}()

	// Graceful shutdown
	waitForShutdown(server)
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(server *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal: %v. Shutting down gracefully...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("HTTP server stopped")
}
