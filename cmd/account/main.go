// Scenegrid account service.
//
// Issues MQTT credential tokens scoped by layered topic permissions and
// serves the account profile endpoints backing the web client.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.scenegrid.dev/internal/api"
	"go.scenegrid.dev/internal/auth"
	"go.scenegrid.dev/internal/auth/jwt"
	"go.scenegrid.dev/internal/common/health"
	"go.scenegrid.dev/internal/common/lifecycle"
	"go.scenegrid.dev/internal/common/secrets"
	"go.scenegrid.dev/internal/evaluator"
	"go.scenegrid.dev/internal/perms"
	"go.scenegrid.dev/internal/persist"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	setupLogging()

	slog.Info("Starting scenegrid account service",
		"version", version,
		"build_time", buildTime)

	ctx := context.Background()

	app, cleanup, err := lifecycle.Initialize(ctx, lifecycle.AppOptions{
		NeedsPostgres: true,
		NeedsMongoDB:  true,
	})
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer cleanup()
	cfg := app.Config

	// Signing key. A missing key is not fatal at startup so the service
	// can come up while secrets are being provisioned, but every token
	// request will fail loudly until it loads.
	keys := jwt.NewKeyManager()
	provider, err := secrets.NewProvider(&cfg.Secrets)
	if err != nil {
		slog.Error("Failed to build secrets provider", "error", err)
		os.Exit(1)
	}
	if err := keys.Load(ctx, provider, cfg.Token.SigningKeyName); err != nil {
		slog.Error("Signing key not loaded, token issuance will fail",
			"key", cfg.Token.SigningKeyName, "error", err)
	}
	issuer := jwt.NewIssuer(keys, jwt.ConferenceConfig{
		Audience: cfg.Token.ConferenceAudience,
		Issuer:   cfg.Token.ConferenceIssuer,
		KeyID:    cfg.Token.ConferenceKeyID,
	})

	// Stores and adapters.
	store := perms.NewPGStore(app.DB)

	mongoDB := app.Mongo.Database()
	reader := persist.NewMongoReader(mongoDB.Client(), mongoDB, cfg.MongoDB.Collection)
	persistSvc := persist.NewService(reader, cfg.Postgres.LookupTimeout)

	objects := persist.NewClient(cfg.Persist.BaseURL, func() (string, error) {
		return issuer.ServiceToken(cfg.Token.ServiceAccount, cfg.Realm)
	}, 10*time.Second)

	verifier := auth.NewGoogleVerifier(auth.DefaultTokenInfoEndpoint,
		cfg.Auth.GoogleClientIDs, cfg.Auth.VerifyTimeout)
	resolver := auth.NewResolver(verifier, store, cfg.Auth.VerifyTimeout)

	eval := evaluator.New(store, cfg.Postgres.LookupTimeout)

	checker := health.NewChecker()
	checker.Add("postgres", health.PingCheck(store.Ping))
	checker.Add("mongodb", health.PingCheck(app.Mongo.Ping))

	handler := api.New(cfg, store, persistSvc, objects, resolver, eval, issuer, checker)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("Account service ready", "port", cfg.HTTP.Port, "realm", cfg.Realm)

	if err := lifecycle.Run(ctx, lifecycle.NewHTTPService("account-api", httpServer)); err != nil {
		slog.Error("Service error", "error", err)
		os.Exit(1)
	}

	slog.Info("Account service stopped")
}

func setupLogging() {
	logLevel := slog.LevelInfo
	if os.Getenv("SCENEGRID_DEV") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}
