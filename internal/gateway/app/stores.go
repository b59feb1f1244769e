package app

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"sdui/internal/gateway/config"
	screenrepo "sdui/internal/gateway/repository/screen"
)

type gatewayStores struct {
	backend screenrepo.Backend
	archive screenrepo.Archive
}

func (s *gatewayStores) options() []screenrepo.Option {
	var opts []screenrepo.Option
	if s.backend != nil {
		opts = append(opts, screenrepo.WithBackend(s.backend))
	}
	if s.archive != nil {
		opts = append(opts, screenrepo.WithArchive(s.archive))
	}
	return opts
}

func (s *gatewayStores) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

func initStores(cfg *config.Config) (*gatewayStores, error) {
	s3Factory := newArchiveS3Factory(cfg)

	switch cfg.Store.Backend {
	case "postgres":
		return initPostgresStores(cfg, s3Factory)
	case "bolt":
		return initBoltStores(cfg, s3Factory)
	case "", "memory":
		return initInMemoryStores(cfg, s3Factory)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func newArchiveS3Factory(cfg *config.Config) func() (screenrepo.Archive, error) {
	return func() (screenrepo.Archive, error) {
		s3Cfg := screenrepo.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		}
		archive, err := screenrepo.NewS3Archive(s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize screen archive: %w", err)
		}
		log.Printf("screen archive: s3 bucket=%s endpoint=%s", s3Cfg.Bucket, s3Cfg.Endpoint)
		return archive, nil
	}
}

func initPostgresStores(cfg *config.Config, s3Factory func() (screenrepo.Archive, error)) (*gatewayStores, error) {
	dsn := strings.TrimSpace(cfg.Store.DatabaseURL)
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}
	backend, err := screenrepo.NewPostgresBackend(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	log.Printf("screen store: postgres")
	stores := &gatewayStores{backend: backend}
	archive, err := chooseArchive(cfg, "postgres", s3Factory)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	stores.archive = archive
	return stores, nil
}

func initBoltStores(cfg *config.Config, s3Factory func() (screenrepo.Archive, error)) (*gatewayStores, error) {
	path := cfg.Store.BoltPath
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create bolt dir: %w", err)
		}
	}
	backend, err := screenrepo.NewBoltBackend(path)
	if err != nil {
		return nil, err
	}
	log.Printf("screen store: bolt path=%s", path)
	archive, err := chooseArchive(cfg, "bolt", s3Factory)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return &gatewayStores{backend: backend, archive: archive}, nil
}

func initInMemoryStores(cfg *config.Config, s3Factory func() (screenrepo.Archive, error)) (*gatewayStores, error) {
	archive, err := chooseArchive(cfg, "in-memory", s3Factory)
	if err != nil {
		return nil, err
	}
	log.Printf("screen store: in-memory")
	return &gatewayStores{archive: archive}, nil
}

func chooseArchive(
	cfg *config.Config,
	fallbackLabel string,
	s3Factory func() (screenrepo.Archive, error),
) (screenrepo.Archive, error) {
	if cfg.Archive.CanUseS3() {
		return s3Factory()
	}
	if cfg.Archive.Enabled {
		log.Printf("screen archive: using in-memory fallback for %s store (s3 config incomplete)", fallbackLabel)
	}
	return screenrepo.NewMemoryArchive(), nil
}
