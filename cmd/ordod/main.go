package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rexliu/ordo/pkg/config"
	"github.com/rexliu/ordo/pkg/ipc"
	"github.com/rexliu/ordo/pkg/logging"
	"github.com/rexliu/ordo/pkg/ordering"
	"github.com/rexliu/ordo/pkg/storage/memory"
	"github.com/rexliu/ordo/pkg/storage/sqlite"
	"github.com/rexliu/ordo/pkg/vcs/git"
)

func main() {
	profile := flag.String("profile", "./_dev_profile", "Path to profile directory")
	socket := flag.String("socket", "", "Override IPC socket path (optional)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *profile, *socket); err != nil {
		logging.New("ordod").Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func loadConfig(profileDir string) (*config.ProfileConfig, error) {
	cfg, err := config.LoadProfile(profileDir)
	if errors.Is(err, os.ErrNotExist) {
		return config.DefaultProfile(filepath.Base(profileDir)), nil
	}
	return cfg, err
}

// openStore returns the configured backend and the closer releasing it.
func openStore(ctx context.Context, logger *slog.Logger, profileDir string, cfg config.StorageConfig) (ordering.Store, io.Closer, error) {
	if cfg.Backend == "memory" {
		return memory.New(), nopCloser{}, nil
	}
	store, err := sqlite.Open(config.ResolvePath(profileDir, cfg.DBPath), sqlite.Options{
		JournalMode:   cfg.JournalMode,
		Synchronous:   cfg.Synchronous,
		BusyTimeoutMs: cfg.BusyTimeoutMs,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("init sqlite: %w", err)
	}
	version, err := store.SchemaVersion(ctx)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("sqlite store ready", "path", store.Path(), "schema", version)
	return store, store, nil
}

func run(ctx context.Context, profileDir, socketOverride string) error {
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return err
	}
	cfg, err := loadConfig(profileDir)
	if err != nil {
		return err
	}
	logger, logCloser, err := logging.Configure("ordod", cfg.Logging, profileDir)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logCloser.Close()
	logger.Info("starting daemon", "profile", cfg.ProfileName, "dir", profileDir, "backend", cfg.Storage.Backend)

	store, storeCloser, err := openStore(ctx, logger, profileDir, cfg.Storage)
	if err != nil {
		return err
	}
	defer storeCloser.Close()

	socketPath := socketOverride
	if socketPath == "" {
		socketPath = config.ResolvePath(profileDir, cfg.IPC.SocketPath)
	}
	if err := cleanupSocket(socketPath); err != nil {
		return err
	}

	d := newDaemon(profileDir, ordering.NewService(store, ordering.WithLogger(logger)), logger)
	if cfg.VCS.Enabled {
		repo, err := git.Open(profileDir, git.Options{
			Branch:      cfg.VCS.Branch,
			AuthorName:  cfg.VCS.AuthorName,
			AuthorEmail: cfg.VCS.AuthorEmail,
			Track:       []string{snapshotFile},
		})
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		d.history = repo
		logger.Info("snapshot history enabled", "branch", cfg.VCS.Branch)
	}
	d.checkOrders(ctx)

	srv := ipc.NewServer(logger)
	d.registerHandlers(srv)
	if err := srv.Start(ctx, socketPath); err != nil {
		return fmt.Errorf("start ipc: %w", err)
	}
	logger.Info("daemon ready", "socket", socketPath)

	<-ctx.Done()
	logger.Info("shutting down")
	srv.Stop()
	d.events.close()
	srv.Wait()
	return cleanupSocket(socketPath)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func cleanupSocket(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

type daemon struct {
	profileDir string
	svc        *ordering.Service
	logger     *slog.Logger
	events     *eventHub
	history    *git.Repo
	started    time.Time

	// snapMu orders snapshot refreshes so a later writer always lists newer state.
	snapMu sync.Mutex
}

// checkOrders compares both orderings of the loaded collection. A mismatch
// means the stored keys are damaged; the daemon still starts so the items can
// be inspected and repaired.
func (d *daemon) checkOrders(ctx context.Context) bool {
	n, err := d.svc.Verify(ctx)
	if err == nil {
		d.logger.Info("collection loaded", "items", n)
		return true
	}
	attrs := []any{"err", err}
	if items, listErr := d.svc.ListByOrder(ctx); listErr == nil {
		attrs = append(attrs, "items", len(items))
	}
	d.logger.Error("order keys disagree", attrs...)
	return false
}

func newDaemon(profileDir string, svc *ordering.Service, logger *slog.Logger) *daemon {
	return &daemon{
		profileDir: profileDir,
		svc:        svc,
		logger:     logger,
		events:     newEventHub(logger),
		started:    time.Now(),
	}
}
