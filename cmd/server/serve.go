package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"trailrun-backend/internal/audit"
	"trailrun-backend/internal/auth"
	"trailrun-backend/internal/bulk"
	"trailrun-backend/internal/metadata"
	"trailrun-backend/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 1. Connect to database
		db, err := store.New(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		log.WithField("driver", db.Dialect.Name()).Info("database connected")

		// 2. Load the field catalog
		reg, err := loadRegistry()
		if err != nil {
			return err
		}

		// 3. Relation option cache
		cache, closeCache, err := newOptionCache(ctx)
		if err != nil {
			return err
		}
		defer closeCache()

		// 4. Bulk engine
		entities := store.NewEntityStore(db)
		resolver := bulk.NewRelationResolver(reg, entities, cache, cfg.RelationCache.MaxOptions)
		engine := bulk.NewEngine(reg, entities, resolver, bulk.Config{QueryCap: cfg.Bulk.QueryCap}, log)

		// 5. Audit trail
		var auditHandler *audit.Handler
		if cfg.Audit.Enabled {
			if err := audit.EnsureTable(ctx, db); err != nil {
				return err
			}
			buffer := audit.NewBuffer(db, cfg.Audit.MaxBatch, cfg.Audit.FlushInterval, log)
			defer buffer.Stop()
			engine.SetAuditSink(buffer)

			janitor := audit.NewJanitor(db, cfg.Audit.RetentionDays, log)
			janitor.Start(time.Hour)
			defer janitor.Stop()

			auditHandler = audit.NewHandler(db)
		}

		// 6. Fiber app
		app := fiber.New(fiber.Config{
			ErrorHandler: bulk.ErrorHandler(log),
		})
		app.Use(recover.New(recover.Config{
			EnableStackTrace: true,
		}))
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency}\n",
			Output: log.Writer(),
		}))

		app.Get("/health", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"status": "ok"})
		})

		authMW := auth.Middleware(cfg.JWTSecret)
		if auditHandler != nil {
			audit.RegisterRoutes(app, auditHandler, authMW, auth.RequireRole("admin"))
		}
		bulk.RegisterRoutes(app, bulk.NewHandler(engine),
			authMW,
			auth.RequireRole(cfg.Bulk.Roles...),
		)

		go func() {
			<-ctx.Done()
			log.Info("shutting down")
			_ = app.Shutdown()
		}()

		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.WithField("addr", addr).Info("starting server")
		return app.Listen(addr)
	},
}

func loadRegistry() (*metadata.Registry, error) {
	entities, err := metadata.LoadCatalog(cfg.Bulk.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	reg := metadata.NewRegistry()
	reg.Load(entities)
	log.WithField("kinds", len(entities)).Info("field catalog loaded")
	return reg, nil
}

func newOptionCache(ctx context.Context) (bulk.OptionCache, func(), error) {
	switch cfg.RelationCache.Driver {
	case "", "memory":
		return bulk.NewMemoryOptionCache(cfg.RelationCache.TTL), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RelationCache.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		log.WithField("addr", cfg.RelationCache.RedisAddr).Info("relation cache on redis")
		return bulk.NewRedisOptionCache(client, cfg.RelationCache.TTL), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown relation cache driver %q", cfg.RelationCache.Driver)
	}
}
