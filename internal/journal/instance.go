package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hpungsan/momentum/internal/config"
	"github.com/hpungsan/momentum/internal/content"
	"github.com/hpungsan/momentum/internal/db"
	"github.com/hpungsan/momentum/internal/logging"
)

var (
	instanceMu sync.Mutex
	instance   *Coordinator
)

// Init builds the process-wide coordinator for baseDir if none exists yet and
// returns it. Later calls return the same coordinator until Shutdown.
func Init(ctx context.Context, baseDir string, cfg *config.Config, logger logging.Logger) (*Coordinator, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance != nil {
		return instance, nil
	}
	c, err := Open(ctx, baseDir, cfg, logger)
	if err != nil {
		return nil, err
	}
	instance = c
	return c, nil
}

// Instance returns the process-wide coordinator, or nil before Init.
func Instance() *Coordinator {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance
}

// Shutdown closes the process-wide coordinator. Safe to call without Init.
func Shutdown() error {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		return nil
	}
	err := instance.Close()
	instance = nil
	return err
}

// Open initializes the database under baseDir and the configured mirror
// backend, and returns a coordinator over them.
func Open(ctx context.Context, baseDir string, cfg *config.Config, logger logging.Logger) (*Coordinator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}

	database, err := db.Init(baseDir)
	if err != nil {
		return nil, err
	}
	db.ConfigurePool(database, cfg)

	store, err := NewMirrorStore(ctx, baseDir, cfg)
	if err != nil {
		database.Close()
		return nil, err
	}

	logger.Debug(ctx, "journal opened", "base_dir", baseDir, "mirror_backend", cfg.MirrorBackend)
	return New(db.NewIndexStore(database), store, OptionsFromConfig(cfg, baseDir, logger)), nil
}

// NewMirrorStore builds the content store selected by cfg.MirrorBackend.
// The filesystem backend lives at <baseDir>/content.
func NewMirrorStore(ctx context.Context, baseDir string, cfg *config.Config) (content.Store, error) {
	switch cfg.MirrorBackend {
	case "", config.MirrorBackendFS:
		return content.NewFileStore(filepath.Join(baseDir, "content"))
	case config.MirrorBackendS3:
		return content.NewS3Store(ctx, content.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown mirror backend %q", cfg.MirrorBackend)
	}
}
