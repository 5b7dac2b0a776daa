package sessions

import (
	"context"
	"fmt"

	"github.com/strrl/opencode-sessions/internal/config"
	"github.com/strrl/opencode-sessions/internal/httpapi"
	"github.com/strrl/opencode-sessions/internal/logging"
	"github.com/strrl/opencode-sessions/internal/store"
)

// Open builds the backend cfg selects and checks that it answers.
// The source is closed again if the health check fails.
func Open(ctx context.Context, cfg config.Config) (Source, error) {
	var src Source

	switch cfg.Backend {
	case config.BackendSQLite, config.BackendDuckDB:
		s, err := store.Open(cfg.DBPath, store.Options{
			Engine: cfg.Engine(),
			Logger: logging.NewLogger("store"),
		})
		if err != nil {
			return nil, err
		}
		src = s
	case config.BackendHTTP, "":
		serverOpts := cfg.ServerOptions()
		serverOpts.Logger = logging.NewLogger("bootstrap")
		c, err := httpapi.New(ctx, httpapi.Options{
			URL:            cfg.URL,
			Username:       cfg.Username,
			Password:       cfg.Password,
			RequestTimeout: cfg.RequestTimeout,
			Server:         serverOpts,
			Logger:         logging.NewLogger("httpapi"),
		})
		if err != nil {
			return nil, err
		}
		src = c
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if _, err := src.Health(ctx); err != nil {
		_ = src.Close()
		return nil, err
	}
	return src, nil
}
