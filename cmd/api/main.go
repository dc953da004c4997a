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

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/medconnect-auth/internal/application/orchestrator"
	"github.com/medconnect-auth/internal/config"
	"github.com/medconnect-auth/internal/infrastructure/dynamo"
	"github.com/medconnect-auth/internal/infrastructure/emailotp"
	"github.com/medconnect-auth/internal/infrastructure/google"
	jwtinfra "github.com/medconnect-auth/internal/infrastructure/jwt"
	redisinfra "github.com/medconnect-auth/internal/infrastructure/redis"
	"github.com/medconnect-auth/internal/infrastructure/smtp"
	"github.com/medconnect-auth/internal/infrastructure/sns"
	"github.com/medconnect-auth/internal/infrastructure/twilio"
	"github.com/medconnect-auth/internal/infrastructure/whatsapp"
	transporthttp "github.com/medconnect-auth/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	allowedDomains, err := cfg.EmailDomains()
	if err != nil {
		log.Fatalf("email domains: %v", err)
	}

	ctx := context.Background()
	clock := clockwork.NewRealClock()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("dynamodb: %v", err)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	// Sessions cannot be issued without signing keys.
	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("JWT provider: %v", err)
	}

	deps := &transporthttp.Deps{
		AccountRepo:    dynamo.NewAccountRepo(dynamoClient, cfg.DynamoTables.Accounts),
		SessionRepo:    dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions),
		ProfileRepo:    dynamo.NewProfileRepo(dynamoClient, cfg.DynamoTables.Profiles),
		ChallengeRepo:  dynamo.NewChallengeRepo(dynamoClient, cfg.DynamoTables.Challenges),
		DomainPolicy:   dynamo.NewEmailDomainRepo(dynamoClient, cfg.DynamoTables.EmailDomains),
		Mailer:         smtp.NewMailer(cfg),
		JWTProvider:    jwtProvider,
		Clock:          clock,
		AllowedDomains: allowedDomains,
	}

	// SMS sender (optional, falls back to none).
	switch cfg.SMSProvider {
	case "twilio":
		if sender, err := twilio.NewSender(cfg); err == nil {
			deps.SMSSender = sender
		} else {
			log.Printf("WARN: Twilio sender not available: %v", err)
		}
	default:
		if sender, err := sns.NewSender(cfg); err == nil {
			deps.SMSSender = sender
		} else {
			log.Printf("WARN: SNS sender not available: %v", err)
		}
	}

	if cfg.WhatsAppURL != "" {
		deps.WhatsApp = whatsapp.NewClient(cfg.WhatsAppURL, cfg.BaaSAPIKey)
	} else {
		log.Println("WARN: WHATSAPP_SERVICE_URL not set, WhatsApp codes go out as SMS")
	}
	if cfg.EmailOTPURL != "" {
		deps.EmailOTP = emailotp.NewClient(cfg.EmailOTPURL, cfg.BaaSAPIKey)
	}
	if cfg.GoogleClientID != "" {
		deps.Google = google.NewVerifier(cfg.GoogleClientID)
	} else {
		log.Println("WARN: GOOGLE_CLIENT_ID not set, Google sign-in disabled")
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisinfra.NewClient(ctx, cfg)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		deps.FlowStore = redisinfra.NewFlowRepo(rdb, cfg.FlowTTL)
	} else {
		log.Println("WARN: REDIS_ADDR not set, auth flows are kept in memory")
		deps.FlowStore = orchestrator.NewMemoryStore(cfg.FlowTTL, clock)
	}

	if cfg.DevModeEnabled {
		log.Println("WARN: developer mode is ON, /v1/dev/login skips identity verification")
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
