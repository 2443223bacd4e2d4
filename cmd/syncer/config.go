package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/logger"
	"github.com/LinkovichChomofski/calendaragent/internal/providerbuilder"
	"github.com/LinkovichChomofski/calendaragent/internal/rabbit"
	"github.com/LinkovichChomofski/calendaragent/internal/reconciler"
	"github.com/LinkovichChomofski/calendaragent/internal/storagebuilder"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envConfigPrefix = "$env:"

type SyncConfig struct {
	Timezone    string
	Calendars   []string
	PastDays    int
	FutureDays  int
	Workers     int
	MaxFailures int
	// Schedule is a cron spec, e.g. "*/15 * * * *".
	Schedule string
	// Discover refreshes the calendar list before every run.
	Discover bool
}

func (c SyncConfig) reconcilerConfig(loc *time.Location) reconciler.Config {
	return reconciler.Config{
		PastHorizon:   time.Duration(c.PastDays) * 24 * time.Hour,
		FutureHorizon: time.Duration(c.FutureDays) * 24 * time.Hour,
		Workers:       c.Workers,
		MaxFailures:   c.MaxFailures,
		Location:      loc,
	}
}

type Config struct {
	Logger   logger.Config
	Rabbit   rabbit.Config
	Storage  storagebuilder.Config
	Lock     storagebuilder.LockConfig
	Provider providerbuilder.Config
	Sync     SyncConfig
}

func NewConfig(configFile string) (Config, error) {
	config := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("failed to load .env: %w", err)
	}
	viper.SetConfigFile(configFile)

	viper.SetDefault("rabbit.host", "127.0.0.1")
	viper.SetDefault("rabbit.port", "5672")
	viper.SetDefault("rabbit.user", "user")
	viper.SetDefault("rabbit.password", "pass")
	viper.SetDefault("rabbit.queue", "calendar.notify")
	viper.SetDefault("logger.level", "WARN")
	viper.SetDefault("storage.storageType", "memory")
	viper.SetDefault("lock.type", "memory")
	viper.SetDefault("provider.type", "google")
	viper.SetDefault("sync.timezone", "America/Los_Angeles")
	viper.SetDefault("sync.pastDays", 180)
	viper.SetDefault("sync.futureDays", 365)
	viper.SetDefault("sync.workers", 2)
	viper.SetDefault("sync.schedule", "*/15 * * * *")

	err := viper.ReadInConfig()
	if err != nil {
		return config, fmt.Errorf("failed to read config %q: %w", configFile, err)
	}
	keys := viper.AllKeys()
	for _, key := range keys {
		env := viper.GetString(key)
		if strings.HasPrefix(env, envConfigPrefix) {
			err := viper.BindEnv(key, env[len(envConfigPrefix):])
			if err != nil {
				return config, fmt.Errorf("failed to prepare config: %w", err)
			}
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return config, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	return config, nil
}
