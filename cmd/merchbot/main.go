// merchbot is the Telegram storefront bot: category navigation over a
// cached catalog, keyword search, a feedback wizard and an admin surface.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "merchbot/core/config"
	"merchbot/core/database"
	"merchbot/core/logger"
	"merchbot/internal/bot"
	"merchbot/internal/catalog"
	"merchbot/internal/delivery"
	"merchbot/internal/feedback"
	"merchbot/internal/search"
	"merchbot/internal/session"
	"merchbot/internal/stats"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("merchbot: %v", err)
	}
}

func run() error {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := coreconfig.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.InitLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown: %v", err)
		}
	}()

	dbCfg, err := loadDatabaseConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load database config: %w", err)
	}
	if err := database.RunMigrations(dbCfg); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	db, err := database.Connect(dbCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalogStore := catalog.NewSQLStore(db)
	cache := catalog.NewCache(catalogStore, cfg.CacheTTL())
	sessions := session.NewStore(cfg.SessionTTL())
	searcher := search.NewEngine(catalogStore)

	files, err := feedback.NewDiskStorage(cfg.Media.Dir)
	if err != nil {
		return fmt.Errorf("init media storage: %w", err)
	}
	wizard := feedback.NewWizard(feedback.NewSQLStore(db), files,
		feedback.WithMaxPhotos(cfg.Media.MaxPhotosPerItem),
		feedback.WithMaxPhotoBytes(int64(cfg.Media.MaxPhotoSizeMB)<<20),
	)

	sw := bot.NewSwitchTransport()
	dm := delivery.NewManager(sw, cfg.Media.Dir, cfg.SendDelay(), cfg.SendTimeout())
	rec := stats.NewRecorder(db)
	handlers := bot.NewHandlers(
		cfg, cache, catalogStore, sessions, searcher, wizard,
		dm, rec, bot.NewBroadcaster(dm), sw,
	)
	svc := bot.NewTelebotService(cfg, handlers, bot.ServiceDeps{
		Cache:    cache,
		Sessions: sessions,
	})

	// Warm the catalog before the first user asks for it. A failure is
	// tolerable: the cache retries on first access.
	cache.Refresh(ctx)

	if !svc.Launch(ctx) {
		return fmt.Errorf("launch failed, see log for attempts")
	}

	<-ctx.Done()
	svc.Stop(context.Background())
	rec.Wait()
	return nil
}

// loadDatabaseConfig reads the database section of the same YAML file the
// core config comes from, with envconfig overrides.
func loadDatabaseConfig(path string) (database.Config, error) {
	var wrapper struct {
		Database database.Config `yaml:"database"`
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return database.Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return database.Config{}, fmt.Errorf("parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &wrapper.Database); err != nil {
		return database.Config{}, fmt.Errorf("process env: %w", err)
	}
	if wrapper.Database.MaxConnections <= 0 {
		wrapper.Database.MaxConnections = 4
	}
	if wrapper.Database.SSLMode == "" {
		wrapper.Database.SSLMode = "disable"
	}
	return wrapper.Database, nil
}
