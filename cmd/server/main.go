package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/papertrade/stock-ledger/internal/accounts"
	"github.com/papertrade/stock-ledger/internal/api"
	"github.com/papertrade/stock-ledger/internal/events/kafka"
	"github.com/papertrade/stock-ledger/internal/interfaces"
	"github.com/papertrade/stock-ledger/internal/ledger"
	"github.com/papertrade/stock-ledger/internal/oracle"
	"github.com/papertrade/stock-ledger/internal/storage/memory"
	"github.com/papertrade/stock-ledger/internal/storage/postgres"
)

const defaultStartingCash = "10000"

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	quoteURL := os.Getenv("QUOTE_API_URL")
	if quoteURL == "" {
		log.Fatal().Msg("QUOTE_API_URL not set")
	}

	startingCash, err := decimal.NewFromString(envOr("STARTING_CASH", defaultStartingCash))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid STARTING_CASH")
	}

	var store interfaces.LedgerStore
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		db, err := sqlx.Connect("postgres", dbURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to postgres")
		}
		pg := postgres.NewStore(db, 5*time.Second)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("prepare schema")
		}
		store = pg
		log.Info().Msg("using postgres ledger store")
	} else {
		store = memory.NewStore()
		log.Warn().Msg("DATABASE_URL not set, using in-memory ledger store")
	}

	var publisher interfaces.EventPublisher
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		kp := kafka.NewPublisher(strings.Split(brokers, ","), "trade_executed")
		defer kp.Close()
		publisher = kp
		log.Info().Str("brokers", brokers).Msg("publishing trade events to kafka")
	}

	oracleClient := oracle.NewClient(oracle.Config{
		BaseURL: quoteURL,
		APIKey:  os.Getenv("QUOTE_API_KEY"),
	}, log.Logger)

	ledgerSvc := ledger.New(store, oracleClient, publisher, log.Logger)
	accountsSvc := accounts.NewService(store, startingCash, log.Logger)
	server := api.NewServer(ledgerSvc, accountsSvc, oracleClient, log.Logger)

	addr := envOr("ADDR", ":8080")
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("starting server")
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
