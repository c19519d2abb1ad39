package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Rrens/kb-chat/internal/api"
	"github.com/Rrens/kb-chat/internal/config"
	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/Rrens/kb-chat/internal/llm"
	"github.com/Rrens/kb-chat/internal/logger"
	"github.com/Rrens/kb-chat/internal/metrics"
	"github.com/Rrens/kb-chat/internal/notify"
	"github.com/Rrens/kb-chat/internal/repository"
	"github.com/Rrens/kb-chat/internal/security"
	"github.com/Rrens/kb-chat/internal/service"
	"github.com/Rrens/kb-chat/internal/stream"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file - try multiple locations
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logCloser, err := logger.Setup(cfg.Logging, os.Getenv("APP_ENV"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	applyDerivedDefaults(cfg)

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("session_backend", cfg.Session.Backend).
		Str("storage_backend", cfg.Storage.Backend).
		Msg("Starting knowledge base chat server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := &resources{cfg: cfg}
	defer res.Close()

	m := metrics.New()

	// Session store
	sessions, err := res.openSessionStore(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session store")
	}
	if res.purger != nil {
		go repository.RunJanitor(ctx, res.purger, cfg.Session.PurgeInterval)
	}

	// Token verification and login flow
	keyCache, err := res.keySetCache(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up key set cache")
	}
	keys, err := security.NewKeySet(ctx, cfg.Auth.JWKS(), keyCache, cfg.Auth.KeySetTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load issuer signing keys")
	}
	verifier := security.NewVerifier(keys, cfg.Auth.Issuer, cfg.Auth.ClientID, cfg.Auth.ClockSkew)

	stateEncryptor, err := security.NewEncryptorFromSecret(cfg.Session.Secret, "login-state")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to derive state key")
	}
	authService := service.NewAuthService(
		service.NewOAuth2Config(cfg.Auth),
		verifier,
		sessions,
		security.NewStateSealer(stateEncryptor, cfg.Auth.StateTTL),
		service.LogoutURL(cfg.Auth),
	)

	// Generation
	llmRouter := newLLMRouter(ctx, cfg.LLM)
	generator := llm.NewClient(llmRouter, "", "", cfg.LLM.Timeout, m)

	// Notifications
	var notifier domain.Notifier = notify.Nop{}
	if tg := notify.NewTelegram(cfg.Notify); tg.Enabled() {
		notifier = tg
		log.Info().Msg("telegram notifications enabled")
	}
	dispatcher := notify.NewDispatcher(notifier, cfg.Notify.Timeout, m)

	chatService := service.NewChatService(sessions, generator, dispatcher, m, cfg.LLM.MaxHistoryTurns)

	// Uploads
	objects, err := res.openObjectStore(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open object store")
	}
	uploadService := service.NewUploadService(
		sessions,
		objects,
		security.NewFileNameValidator(cfg.Storage.AllowedExtension),
		cfg.Storage.Prefix,
		cfg.Storage.MaxUploadBytes,
		m,
	)

	router := api.NewRouter(cfg, api.Dependencies{
		Auth:     authService,
		Chat:     chatService,
		Upload:   uploadService,
		Sessions: sessions,
		LLM:      llmRouter,
		Encoder:  stream.New(cfg.Stream.ChunkSize, cfg.Stream.Delay),
		Metrics:  m,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("Server failed")
	}

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("pending notifications dropped")
	}

	log.Info().Msg("Server stopped")
}

// applyDerivedDefaults fills settings that depend on other settings
func applyDerivedDefaults(cfg *config.Config) {
	base := strings.TrimRight(cfg.Server.PublicURL, "/")
	if cfg.Auth.RedirectURL == "" {
		cfg.Auth.RedirectURL = base + "/authorize"
	}
	if cfg.Auth.LogoutRedirectURL == "" {
		cfg.Auth.LogoutRedirectURL = base + "/"
	}
	if cfg.Auth.Issuer == "" {
		log.Warn().Msg("auth.issuer is not set; logins will fail token verification")
	}

	if cfg.Session.Secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			log.Fatal().Err(err).Msg("Failed to generate session secret")
		}
		cfg.Session.Secret = base64.RawStdEncoding.EncodeToString(buf)
		log.Warn().Msg("SESSION_SECRET is not set; using a random secret, logins in progress will not survive a restart")
	}
}
