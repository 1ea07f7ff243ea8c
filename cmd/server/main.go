package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-rumble/internal/api"
	"github.com/npezzotti/go-rumble/internal/config"
	"github.com/npezzotti/go-rumble/internal/database"
	"github.com/npezzotti/go-rumble/internal/server"
	"github.com/npezzotti/go-rumble/internal/stats"
	"golang.org/x/crypto/bcrypt"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	driver         string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
	sessionTTL     time.Duration
	bcryptCost     int
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&driver, "db-driver", config.DriverPostgres, "database driver (postgres or sqlite3)")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.DurationVar(&sessionTTL, "session-ttl", config.DefaultSessionTTL, "lifetime of a login session")
	flag.IntVar(&bcryptCost, "bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost for password hashes")
	flag.Parse()

	logger := log.New(os.Stderr, "[go-rumble] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, driver, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}
	cfg.SessionTTL = sessionTTL
	cfg.BcryptCost = bcryptCost

	dbConn, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, statsUpdater, server.Options{
		SigningKey:   cfg.SigningKey,
		SessionTTL:   cfg.SessionTTL,
		PasswordCost: cfg.BcryptCost,
	})
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	if err := chatServer.Load(); err != nil {
		logger.Fatal("load chat state:", err)
	}

	srv := api.NewRumbleApp(mux, logger, chatServer, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Close(); err != nil {
		logger.Println("chat server close:", err)
	}

	logger.Println("shutdown complete")
}
