package main

import (
	"fmt"
	"log/slog"
	"os"

	"promokit/adapters/jsonfile"
	mem "promokit/adapters/memory"
	redisAdapter "promokit/adapters/redis"
	sqlxAdapter "promokit/adapters/sqlx"
	"promokit/config"
	"promokit/engine"
)

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupCatalog creates the appropriate catalog adapter based on configuration.
func setupCatalog(cfg *config.Config, session string) (engine.CatalogSource, error) {
	switch cfg.Catalog.Adapter {
	case "memory":
		return mem.New(), nil
	case "redis":
		// Redis caches a slower source; back it with memory for the demo.
		return redisAdapter.New(cfg.Catalog.Redis, session, mem.New())
	case "sql":
		return sqlxAdapter.New(cfg.Catalog.SQL)
	case "file":
		return jsonfile.Load(cfg.Catalog.File.Path)
	default:
		return nil, fmt.Errorf("unknown catalog adapter: %s", cfg.Catalog.Adapter)
	}
}

// dispatchMode maps the config dispatch string to an engine mode.
func dispatchMode(cfg *config.Config) engine.DispatchMode {
	if cfg.Engine.Dispatch == "async" {
		return engine.DispatchAsync
	}
	return engine.DispatchSync
}
