// main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"eventsite/internal/backup"
	"eventsite/internal/cleanup"
	"eventsite/internal/config"
	"eventsite/internal/configstore"
	"eventsite/internal/data"
	"eventsite/internal/logger"
	"eventsite/internal/schedule"
	"eventsite/internal/security"
	"eventsite/internal/site"
	"eventsite/internal/web"
)

var rootCmd = &cobra.Command{
	Use:           "eventsite",
	Short:         "Event site with line-up, drinks menu and admin editor",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// env is everything a command needs once configuration, logging and the
// config store are up.
type env struct {
	cfg      *config.Config
	store    *configstore.Store
	creds    *security.CredentialStore
	media    *site.LocalMedia
	resolver *schedule.Resolver
	site     *site.Service
}

// bootstrap loads configuration and opens the stores. Call close when done.
func bootstrap() (*env, error) {
	// Step 1: Setup configuration first
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	// Step 2: Setup logging
	if err := logger.SetupLogger(cfg.LoggerConfig()); err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return nil, err
	}
	logger.LogInfo("Environment loaded. Logger ready.")
	config.LogCurrentEnvironment()

	// Step 3: Schedule clock and extra defaults
	resolver, err := schedule.NewResolver(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %s: %w", cfg.TimeZone, err)
	}
	var extraSections []string
	var extraDefaults []configstore.Default
	if cfg.DefaultsFile != "" {
		if extraSections, extraDefaults, err = config.LoadDefaults(cfg.DefaultsFile); err != nil {
			return nil, err
		}
		logger.LogInfo("Loaded %d extra defaults from %s", len(extraDefaults), cfg.DefaultsFile)
	}

	// Step 4: Config store and credentials
	store, err := configstore.Open(cfg.ConfigFile)
	if err != nil {
		return nil, err
	}
	creds := security.NewCredentialStore(cfg.PasswordFile, cfg.BcryptCost)
	created, err := creds.EnsureDefault(cfg.BootstrapPassword)
	if err != nil {
		return nil, err
	}
	if created {
		logger.LogWarn("Created admin password file %s with the bootstrap password; change it", cfg.PasswordFile)
	}

	// Step 5: Revision history
	if cfg.HistoryEnabled() {
		if err := os.MkdirAll(filepath.Dir(cfg.HistoryDB), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
		if err := data.InitDB(cfg.HistoryDB); err != nil {
			return nil, fmt.Errorf("open history database: %w", err)
		}
		store.OnSave(data.RevisionHook)
	}

	media := site.NewLocalMedia(cfg.UploadDir)
	svc, err := site.NewService(site.Options{
		Store:         store,
		Credentials:   creds,
		Media:         media,
		Resolver:      resolver,
		ExtraSections: extraSections,
		ExtraDefaults: extraDefaults,
	})
	if err != nil {
		return nil, err
	}
	if err := svc.Ensure(); err != nil {
		return nil, err
	}

	return &env{cfg: cfg, store: store, creds: creds, media: media, resolver: resolver, site: svc}, nil
}

func (e *env) close() {
	if data.IsInitialized() {
		if err := data.CloseDB(); err != nil {
			logger.LogError("Failed to close history database: %v", err)
		}
	}
	logger.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := bootstrap()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Off-site backup of every new revision
	if e.cfg.BackupEnabled() {
		dest, err := backup.NewS3Destination(ctx, e.cfg.BackupS3Bucket, e.cfg.BackupS3Key,
			e.cfg.BackupS3Region, e.cfg.BackupS3Endpoint)
		if err != nil {
			return err
		}
		uploader := backup.NewUploader([]backup.Destination{dest}, 30*time.Second)
		uploader.Start()
		defer uploader.Stop()
		e.store.OnSave(uploader.Hook)
		logger.LogInfo("Config backup enabled to %s", dest)
	}

	// Background tasks
	sessions := security.NewSessionStore(e.cfg.SessionTTL)
	go sessions.CleanExpiredSessions(ctx, 10*time.Minute)
	if data.IsInitialized() {
		cleanup.StartCleanupRoutine(ctx, e.resolver.Location(), e.cfg.HistoryKeep)
	}

	srv, err := web.NewServer(e.site, sessions, e.media, web.Options{
		CSRFKey:        e.cfg.CSRFKey,
		SecureCookies:  e.cfg.SecureCookies,
		MaxUploadBytes: e.cfg.MaxUploadBytes,
	})
	if err != nil {
		return err
	}

	app := &App{
		addr:    e.cfg.Addr(),
		handler: srv.Handler(),
	}
	return app.Run(ctx)
}

type App struct {
	addr          string
	handler       http.Handler
	connections   sync.WaitGroup
	totalRequests int64
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         a.addr,
		Handler:      a.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.LogInfo("Starting server on %s", a.addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.LogInfo("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.LogError("Server shutdown error: %v", err)
	}

	logger.LogInfo("Waiting for active connections to finish...")
	a.connections.Wait()
	logger.LogInfo("All connections closed. Total requests handled: %d", atomic.LoadInt64(&a.totalRequests))
	logger.LogInfo("Server shut down gracefully")
	return nil
}

// Handler assembles all middleware around the routes
func (a *App) Handler() http.Handler {
	handler := a.handler

	handler = withCustom404(handler)
	handler = a.trackConnections(handler)
	handler = withTimeout(handler, 30*time.Second)

	return handler
}

// Middleware: timeout handler
func withTimeout(h http.Handler, timeout time.Duration) http.Handler {
	return http.TimeoutHandler(h, timeout, "Request timed out")
}

// Middleware: track active connections and total requests
func (a *App) trackConnections(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.connections.Add(1)
		atomic.AddInt64(&a.totalRequests, 1)
		defer a.connections.Done()

		h.ServeHTTP(w, r)
	})
}

// Middleware: custom 404 page
func withCustom404(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		crw := &notFoundWriter{ResponseWriter: w}
		h.ServeHTTP(crw, r)

		if crw.notFound {
			logger.LogInfo("404 not found: %s", r.URL.Path)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`<html><body>
	<h1>404 - Page Not Found</h1>
	<p>Sorry, the page you requested was not found.</p>
	<a href="/">Back to the party</a>
</body></html>
`))
		}
	})
}

// notFoundWriter swallows a 404 response so withCustom404 can replace it.
// Every other response passes through untouched.
type notFoundWriter struct {
	http.ResponseWriter
	notFound    bool
	wroteHeader bool
}

func (w *notFoundWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if code == http.StatusNotFound {
		w.notFound = true
		return
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *notFoundWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.notFound {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}
