package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/dgellow/statusboard/internal/config"
	"github.com/dgellow/statusboard/internal/crypto"
	"github.com/dgellow/statusboard/internal/log"
	"github.com/dgellow/statusboard/internal/notify"
	"github.com/dgellow/statusboard/internal/server"
	"github.com/dgellow/statusboard/internal/storage"
	"github.com/dgellow/statusboard/internal/telemetry"
	"github.com/dgellow/statusboard/internal/tokens"
	"github.com/dgellow/statusboard/internal/upstream"
	"github.com/redis/go-redis/v9"
)

// Device-facing paths for the built-in providers
var dataPaths = map[string]string{
	config.ProviderSpotify: "/now-playing",
	config.ProviderTesla:   "/live-status",
}

// Statusboard represents the complete application
type Statusboard struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
	store      storage.Store
	managers   []*tokens.Manager
}

// NewStatusboard creates the application with all dependencies built
func NewStatusboard(ctx context.Context, cfg config.Config) (*Statusboard, error) {
	log.LogInfoWithFields("statusboard", "Building application", map[string]any{
		"baseURL":   cfg.Server.BaseURL,
		"providers": len(cfg.Providers),
		"storage":   string(cfg.Storage.Kind),
	})

	store, err := setupStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	notifier, err := setupNotifier(cfg.Notifier)
	if err != nil {
		_ = storage.Close(store)
		return nil, fmt.Errorf("failed to setup notifier: %w", err)
	}

	httpClient := telemetry.HTTPClient(30 * time.Second)

	managers := buildManagers(cfg, store, notifier, httpClient)
	routes, err := buildDataRoutes(cfg, httpClient)
	if err != nil {
		_ = storage.Close(store)
		return nil, fmt.Errorf("failed to build data routes: %w", err)
	}

	tokenManagers := make([]server.TokenManager, 0, len(managers))
	for _, m := range managers {
		tokenManagers = append(tokenManagers, m)
	}
	handlers := server.NewHandlers(tokenManagers, routes, server.DefaultRetryAfter)
	handler := server.ChainMiddleware(handlers.Routes(), telemetry.Middleware("statusboard"))

	return &Statusboard{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, string(cfg.Server.Addr), requestBudget(cfg.Authorization)),
		store:      store,
		managers:   managers,
	}, nil
}

// Handler returns the complete HTTP handler
func (s *Statusboard) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, a termination signal arrives or the
// server fails, then shuts down gracefully.
func (s *Statusboard) Run(ctx context.Context) error {
	log.LogInfoWithFields("statusboard", "Starting application", map[string]any{
		"addr": s.config.Server.Addr,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var shutdownReason string
	var runErr error
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("statusboard", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		runErr = err
		log.LogErrorWithFields("statusboard", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	case <-ctx.Done():
		shutdownReason = "context cancelled"
		log.LogInfoWithFields("statusboard", "Context cancelled, shutting down", nil)
	}

	timeout := s.config.Server.ShutdownTimeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log.LogInfoWithFields("statusboard", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": timeout.String(),
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := s.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("statusboard", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	if err := storage.Close(s.store); err != nil {
		log.LogErrorWithFields("statusboard", "Failed to close storage", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("statusboard", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return runErr
}

// setupStorage opens the configured KV backend, sealed when an encryption
// key is set
func setupStorage(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	store, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if !storage.SupportsAtomicTake(store) {
		log.LogWarnWithFields("storage", "Backend has no atomic take, authorization codes use get-then-delete", map[string]any{
			"kind": string(cfg.Kind),
		})
	}

	if cfg.EncryptionKey == "" {
		return store, nil
	}
	encryptor, err := crypto.NewEncryptor([]byte(cfg.EncryptionKey))
	if err != nil {
		_ = storage.Close(store)
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	sealed, err := storage.NewEncryptedStore(store, encryptor)
	if err != nil {
		_ = storage.Close(store)
		return nil, err
	}
	log.LogInfoWithFields("storage", "Encrypting stored values", nil)
	return sealed, nil
}

func openBackend(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Kind {
	case config.StorageMemory, "":
		log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
		return storage.NewMemoryStore(), nil

	case config.StorageFilesystem:
		log.LogInfoWithFields("storage", "Using filesystem storage", map[string]any{
			"path": cfg.Path,
		})
		return storage.NewFilesystemStore(cfg.Path)

	case config.StorageSQLite:
		log.LogInfoWithFields("storage", "Using SQLite storage", map[string]any{
			"path": cfg.Path,
		})
		return storage.OpenSQLiteStore(cfg.Path)

	case config.StorageRedis:
		log.LogInfoWithFields("storage", "Using Redis storage", map[string]any{
			"addr":   cfg.RedisAddr,
			"db":     cfg.RedisDB,
			"prefix": cfg.Prefix,
		})
		client := redis.NewClient(&redis.Options{
			Addr:     string(cfg.RedisAddr),
			Password: string(cfg.RedisPassword),
			DB:       cfg.RedisDB,
		})
		store := storage.NewRedisStore(client, cfg.Prefix)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return store, nil

	case config.StorageS3:
		log.LogInfoWithFields("storage", "Using S3 storage", map[string]any{
			"endpoint": cfg.S3Endpoint,
			"bucket":   cfg.S3Bucket,
			"prefix":   cfg.Prefix,
		})
		return storage.NewS3Store(storage.S3Options{
			Endpoint:  string(cfg.S3Endpoint),
			Bucket:    string(cfg.S3Bucket),
			Prefix:    cfg.Prefix,
			AccessKey: string(cfg.S3AccessKey),
			SecretKey: string(cfg.S3SecretKey),
			UseSSL:    cfg.S3UseSSL,
		})

	case config.StorageFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.GCPProject,
			"database":   cfg.FirestoreDatabase,
			"collection": cfg.FirestoreCollection,
		})
		return storage.NewFirestoreStore(ctx, string(cfg.GCPProject), cfg.FirestoreDatabase, cfg.FirestoreCollection)

	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
	}
}

// setupNotifier always logs the URL and additionally pushes it when a push
// channel is configured
func setupNotifier(cfg config.NotifierConfig) (tokens.Notifier, error) {
	switch cfg.Kind {
	case config.NotifierLog, "":
		return notify.Log{}, nil

	case config.NotifierPushover:
		p, err := notify.NewPushover(string(cfg.PushoverToken), string(cfg.PushoverUser))
		if err != nil {
			return nil, err
		}
		return notify.Multi{notify.Log{}, p}, nil

	case config.NotifierWebhook:
		headers := make(map[string]string, len(cfg.WebhookHeaders))
		for k, v := range cfg.WebhookHeaders {
			headers[k] = string(v)
		}
		w, err := notify.NewWebhook(string(cfg.WebhookURL), headers)
		if err != nil {
			return nil, err
		}
		return notify.Multi{notify.Log{}, w}, nil

	default:
		return nil, fmt.Errorf("unknown notifier kind %q", cfg.Kind)
	}
}

func providerFromConfig(name string, pc *config.ProviderConfig) tokens.Provider {
	return tokens.Provider{
		Name:         name,
		ClientID:     string(pc.ClientID),
		ClientSecret: string(pc.ClientSecret),
		AuthorizeURL: pc.AuthorizeURL,
		TokenURL:     pc.TokenURL,
		RedirectURI:  string(pc.RedirectURI),
		Scopes:       pc.Scopes,
		Encoding:     tokens.Encoding(pc.Encoding),
		CallbackMode: tokens.CallbackMode(pc.CallbackMode),
		AuthParams:   pc.AuthParams,
	}
}

func sortedProviderNames(cfg config.Config) []string {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// requestBudget is how long one device request may take. Requests that wait
// for an operator authorization poll for the whole budget, then exchange the
// code.
func requestBudget(auth config.AuthorizationConfig) time.Duration {
	if !auth.WaitOnRequest {
		return 0
	}
	return time.Duration(auth.PollAttempts)*auth.PollInterval.Std() + 30*time.Second
}

// buildManagers creates one token manager per configured provider. A
// provider with incomplete settings still gets a manager; its operations
// report MissingConfiguration.
func buildManagers(cfg config.Config, store storage.Store, notifier tokens.Notifier, httpClient *http.Client) []*tokens.Manager {
	auth := cfg.Authorization
	managers := make([]*tokens.Manager, 0, len(cfg.Providers))
	for _, name := range sortedProviderNames(cfg) {
		m := tokens.NewManager(providerFromConfig(name, cfg.Providers[name]), store,
			tokens.WithHTTPClient(httpClient),
			tokens.WithNotifier(notifier),
			tokens.WithPolling(auth.PollAttempts, auth.PollInterval.Std()),
			tokens.WithSessionTTL(auth.SessionTTL.Std()),
			tokens.WithWait(auth.WaitOnRequest),
			tokens.WithRefreshFailurePolicy(tokens.RefreshFailurePolicy(auth.OnRefreshFailure)),
		)
		if err := m.Validate(); err != nil {
			log.LogWarnWithFields("statusboard", "Provider is not fully configured", map[string]any{
				"provider": name,
				"error":    err.Error(),
			})
		}
		managers = append(managers, m)
	}
	return managers
}

// buildDataRoutes binds the device paths of the built-in providers
func buildDataRoutes(cfg config.Config, httpClient *http.Client) ([]server.DataRoute, error) {
	var routes []server.DataRoute
	for _, name := range sortedProviderNames(cfg) {
		path, ok := dataPaths[name]
		if !ok {
			continue
		}
		pc := cfg.Providers[name]

		var fetcher upstream.Fetcher
		switch name {
		case config.ProviderSpotify:
			fetcher = upstream.NewNowPlayingFetcher(pc.DataURL, httpClient)
		case config.ProviderTesla:
			f, err := upstream.NewLiveStatusFetcher(pc.DataURL, string(pc.SiteID), httpClient)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			fetcher = f
		}
		routes = append(routes, server.DataRoute{Path: path, Provider: name, Fetcher: fetcher})
	}
	return routes, nil
}
