package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/safetydesk/causemap/internal/server"
	"github.com/safetydesk/causemap/pkg/cache"
	"github.com/safetydesk/causemap/pkg/errors"
	"github.com/safetydesk/causemap/pkg/pipeline"
	"github.com/safetydesk/causemap/pkg/session"
	"github.com/safetydesk/causemap/pkg/store"
)

// serveCommand creates the serve command for running the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var configPath, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the causemap HTTP API server",
		Long: `Serve runs the HTTP API. Storage and session backends are selected in
a TOML config file; without one the server runs entirely in memory,
which is useful for local evaluation but loses all data on exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadServerConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return c.runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg ServerConfig) error {
	st, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	sessions, err := newSessionStore(cfg)
	if err != nil {
		return err
	}

	artifactCache, err := newServerCache(cfg)
	if err != nil {
		return err
	}
	runner := pipeline.NewRunner(artifactCache, nil, c.Logger)
	defer runner.Close()

	if err := bootstrapAdmin(ctx, st, cfg); err != nil {
		return err
	}

	c.Logger.Info("starting server",
		"addr", cfg.Addr,
		"store", cfg.Store.Backend,
		"sessions", cfg.Session.Backend)

	srv := server.New(st, sessions, runner, c.Logger, cfg.Session.TTL.Duration)
	return srv.Run(ctx, cfg.Addr)
}

func newStore(ctx context.Context, cfg ServerConfig) (store.Store, error) {
	switch cfg.Store.Backend {
	case "mongo":
		return store.NewMongoStore(ctx, store.MongoConfig{
			URI:      cfg.Store.Mongo.URI,
			Database: cfg.Store.Mongo.Database,
		})
	default:
		return store.NewMemoryStore(), nil
	}
}

func newSessionStore(cfg ServerConfig) (session.Store, error) {
	switch cfg.Session.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		return session.NewRedisStore(client), nil
	case "file":
		return session.NewFileStore(cfg.Session.Dir)
	default:
		return session.NewMemoryStore(), nil
	}
}

func newServerCache(cfg ServerConfig) (cache.Cache, error) {
	if cfg.Cache.Disabled {
		return cache.NewNullCache(), nil
	}
	dir := cfg.Cache.Dir
	if dir == "" {
		var err error
		if dir, err = cacheDir(); err != nil {
			return cache.NewNullCache(), nil
		}
	}
	return cache.NewFileCache(dir)
}

// bootstrapAdmin creates the configured admin account if it doesn't exist
// yet, so a fresh deployment has a way to sign in.
func bootstrapAdmin(ctx context.Context, st store.Store, cfg ServerConfig) error {
	name, password := cfg.Bootstrap.Admin, cfg.Bootstrap.Password
	if name == "" {
		return nil
	}
	if password == "" {
		return fmt.Errorf("bootstrap admin %q has no password configured", name)
	}

	if _, err := st.GetUser(ctx, name); err == nil {
		return nil
	} else if !errors.IsNotFound(err) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	return st.CreateUser(ctx, store.User{
		Name:         name,
		PasswordHash: string(hash),
		Admin:        true,
	})
}
