package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/pkg/catalog"
	"github.com/marmos91/nfsusage/pkg/catalog/badger"
	"github.com/marmos91/nfsusage/pkg/catalog/memory"
	"github.com/marmos91/nfsusage/pkg/crawler"
	"github.com/marmos91/nfsusage/pkg/metrics"
	"github.com/marmos91/nfsusage/pkg/nfs"
	"github.com/marmos91/nfsusage/pkg/report"
)

// decodeOptions decodes a type-specific option map into out. Durations may
// be given as strings such as "30s".
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

// CreateCatalog creates the catalog store selected by cfg.Type.
//
// Supported types:
//   - "memory": Uses pkg/catalog/memory (lost when the process exits)
//   - "badger": Uses pkg/catalog/badger (persistent)
func CreateCatalog(ctx context.Context, cfg *CatalogConfig) (catalog.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		var storeCfg memory.Config
		if err := decodeOptions(cfg.Memory, &storeCfg); err != nil {
			return nil, fmt.Errorf("failed to decode memory catalog config: %w", err)
		}
		return memory.New(storeCfg), nil

	case "badger":
		var storeCfg badger.Config
		if err := decodeOptions(cfg.Badger, &storeCfg); err != nil {
			return nil, fmt.Errorf("failed to decode badger catalog config: %w", err)
		}
		store, err := badger.New(ctx, storeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create badger catalog: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown catalog type: %q", cfg.Type)
	}
}

// CreateSinks creates every report sink listed in cfg, in order.
func CreateSinks(ctx context.Context, cfg *ReportConfig) ([]report.Sink, error) {
	sinks := make([]report.Sink, 0, len(cfg.Sinks))
	for i := range cfg.Sinks {
		sink, err := createSink(ctx, &cfg.Sinks[i])
		if err != nil {
			return nil, fmt.Errorf("report.sinks[%d]: %w", i, err)
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

func createSink(ctx context.Context, cfg *SinkConfig) (report.Sink, error) {
	switch cfg.Type {
	case "file":
		var sinkCfg struct {
			Dir    string        `mapstructure:"dir"`
			Format report.Format `mapstructure:"format"`
		}
		if err := decodeOptions(cfg.File, &sinkCfg); err != nil {
			return nil, fmt.Errorf("failed to decode file sink config: %w", err)
		}
		return report.NewFileSink(sinkCfg.Dir, sinkCfg.Format)

	case "s3":
		var sinkCfg report.S3Config
		if err := decodeOptions(cfg.S3, &sinkCfg); err != nil {
			return nil, fmt.Errorf("failed to decode s3 sink config: %w", err)
		}
		client, err := report.NewS3Client(ctx, sinkCfg)
		if err != nil {
			return nil, err
		}
		logger.Debug("S3 report sink: bucket=%s prefix=%s endpoint=%s",
			sinkCfg.Bucket, sinkCfg.KeyPrefix, sinkCfg.Endpoint)
		return report.NewS3Sink(client, sinkCfg.Bucket, sinkCfg.KeyPrefix)

	default:
		return nil, fmt.Errorf("unknown report sink type: %q", cfg.Type)
	}
}

// MountOptions converts the mount section into options for nfs.Open.
func MountOptions(cfg *MountConfig, m metrics.CrawlMetrics) []nfs.Option {
	opts := []nfs.Option{
		nfs.WithTimeout(cfg.Timeout),
		nfs.WithPortmapPort(cfg.PortmapPort),
		nfs.WithLookupCacheSize(cfg.LookupCacheSize),
	}

	var uid, gid uint32
	if cfg.UID != nil {
		uid = *cfg.UID
	}
	if cfg.GID != nil {
		gid = *cfg.GID
	}
	opts = append(opts, nfs.WithAuth(uid, gid, cfg.MachineName))

	if m != nil {
		opts = append(opts, nfs.WithMetrics(m))
	}
	return opts
}

// CrawlerOptions builds a crawler.Config for the export at url from the
// crawler and mount sections.
func CrawlerOptions(cfg *Config, url, root string, m metrics.CrawlMetrics) crawler.Config {
	return crawler.Config{
		URL:            url,
		Root:           root,
		Connections:    cfg.Crawler.Connections,
		MaxInFlight:    cfg.Crawler.MaxInFlight,
		RequestTimeout: cfg.Crawler.RequestTimeout,
		RateLimit:      cfg.Crawler.RateLimit,
		MountOptions:   MountOptions(&cfg.Mount, m),
		Metrics:        m,
	}
}
