package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-screen/internal/cache"
	"github.com/sells-group/parcel-screen/internal/db"
	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/ingest"
	"github.com/sells-group/parcel-screen/internal/proximity"
	"github.com/sells-group/parcel-screen/internal/risk"
	"github.com/sells-group/parcel-screen/internal/screen"
	"github.com/sells-group/parcel-screen/pkg/elevation"
)

// screenEnv holds the service and the resources behind it for the screen and
// serve commands.
type screenEnv struct {
	Service   *screen.Service
	Precision geo.Precision
	Runs      runLister // nil unless the sqlite cache is configured
	Source    screen.CandidateSource

	closers []func()
}

// Close releases resources held by the environment.
func (e *screenEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// envOptions carries command-line overrides of the loaded config.
type envOptions struct {
	Mode       string
	LadderFile string
	PostGIS    bool
}

// initScreen builds the screening service from cfg. Callers should defer
// env.Close().
func initScreen(ctx context.Context, opts envOptions) (*screenEnv, error) {
	if err := cfg.Validate(opts.Mode); err != nil {
		return nil, err
	}
	env := &screenEnv{}

	pr, err := cfg.PrecisionPolicy()
	if err != nil {
		return nil, err
	}
	env.Precision = pr

	ladder, err := loadLadder(opts.LadderFile)
	if err != nil {
		return nil, err
	}

	proj, err := geo.ProjectorByName(cfg.Pipeline.Projection)
	if err != nil {
		return nil, err
	}
	pipeline := proximity.New(
		proximity.WithConcurrency(cfg.Pipeline.Concurrency),
		proximity.WithProjector(proj),
	)

	svcOpts := []screen.Option{screen.WithDefaultLadder(ladder)}

	c, err := initCache(ctx)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, func() { _ = c.Close() })
	svcOpts = append(svcOpts, screen.WithCache(c, cfg.Cache.TTL))
	if s, ok := c.(*cache.SQLite); ok {
		svcOpts = append(svcOpts, screen.WithRunRecorder(s))
		env.Runs = s
	}

	if cfg.Elevation.Enabled {
		client := elevation.NewClient(
			elevation.WithBaseURL(cfg.Elevation.BaseURL),
			elevation.WithRateLimit(cfg.Elevation.RateLimit),
			elevation.WithBreaker(5, 30*time.Second),
		)
		svcOpts = append(svcOpts, screen.WithElevation(client, 4))
	}

	if opts.PostGIS {
		pool, err := db.Connect(ctx, cfg.PostGIS.DatabaseURL)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.closers = append(env.closers, pool.Close)
		src, err := ingest.NewPostGISSource(pool, cfg.PostGIS.Table, cfg.PostGIS.Limit)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Source = src
	}

	env.Service = screen.New(pipeline, svcOpts...)
	return env, nil
}

// loadLadder prefers an explicit file over the configured ladder.
func loadLadder(path string) (*risk.Ladder, error) {
	if path != "" {
		return risk.LoadLadder(path)
	}
	return cfg.LoadLadder()
}

// initCache opens the configured cache backend.
func initCache(ctx context.Context) (cache.Cache, error) {
	switch strings.ToLower(cfg.Cache.Driver) {
	case "sqlite":
		s, err := cache.OpenSQLite(ctx, cfg.Cache.DSN)
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite cache")
		}
		zap.L().Debug("using sqlite cache", zap.String("dsn", cfg.Cache.DSN))
		return s, nil
	case "redis":
		r, err := cache.OpenRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return nil, err
		}
		zap.L().Debug("using redis cache", zap.String("addr", cfg.Cache.RedisAddr))
		return r, nil
	default:
		return cache.Nop{}, nil
	}
}
