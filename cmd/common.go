package cmd

import (
	"fmt"
	"time"

	"github.com/jing2uo/rufeng/config"
	"github.com/jing2uo/rufeng/database"
	"github.com/jing2uo/rufeng/datamanager"
	"github.com/jing2uo/rufeng/logger"
	"github.com/jing2uo/rufeng/source"
)

// Env is what every subcommand works on.
type Env struct {
	Config  *config.Config
	Repo    database.DataRepository
	Manager *datamanager.Manager
}

// LoadConfig reads the config file and sets up logging. dbURI overrides
// core.db when not empty.
func LoadConfig(configPath, dbURI string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbURI != "" {
		cfg.Core.DB = dbURI
	}
	l := cfg.Logging
	if err := logger.GetLogger().Configure(l.Level, l.Format, l.Output, l.MaxAge); err != nil {
		return nil, fmt.Errorf("failed to configure logger: %w", err)
	}
	return cfg, nil
}

// Open connects the store and builds the data manager.
func Open(cfg *config.Config) (*Env, error) {
	repo, err := database.Open(cfg.Core.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	src, err := source.New(cfg)
	if err != nil {
		repo.Close()
		return nil, err
	}

	m, err := datamanager.New(cfg, repo, src)
	if err != nil {
		repo.Close()
		return nil, err
	}
	return &Env{Config: cfg, Repo: repo, Manager: m}, nil
}

// OpenLoaded is Open followed by loading the stored data into memory.
func OpenLoaded(cfg *config.Config) (*Env, error) {
	env, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := env.Manager.LoadFromDB(); err != nil {
		env.Close()
		return nil, err
	}
	if len(env.Manager.ListAvailable()) == 0 {
		env.Close()
		return nil, fmt.Errorf("no stock data in %s, run download first", cfg.Core.DB)
	}
	return env, nil
}

func (e *Env) Close() error {
	return e.Repo.Close()
}

func GetToday() time.Time {
	return time.Now().In(datamanager.CST)
}

func threadsOr(threads, fallback int) int {
	if threads > 0 {
		return threads
	}
	return fallback
}
