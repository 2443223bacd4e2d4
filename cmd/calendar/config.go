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
	internalhttp "github.com/LinkovichChomofski/calendaragent/internal/server/http"
	"github.com/LinkovichChomofski/calendaragent/internal/storagebuilder"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envConfigPrefix = "$env:"

type SyncConfig struct {
	Timezone        string
	DefaultCalendar string
	Calendars       []string
	PastDays        int
	FutureDays      int
	Workers         int
	MaxFailures     int
}

func (c SyncConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c SyncConfig) Reconciler(loc *time.Location) reconciler.Config {
	return reconciler.Config{
		PastHorizon:   time.Duration(c.PastDays) * 24 * time.Hour,
		FutureHorizon: time.Duration(c.FutureDays) * 24 * time.Hour,
		Workers:       c.Workers,
		MaxFailures:   c.MaxFailures,
		Location:      loc,
	}
}

type NotifyConfig struct {
	Enabled bool
	Rabbit  rabbit.Config
}

type Config struct {
	HTTPServer internalhttp.Config
	Logger     logger.Config
	Storage    storagebuilder.Config
	Lock       storagebuilder.LockConfig
	Provider   providerbuilder.Config
	Sync       SyncConfig
	Notify     NotifyConfig
}

func NewConfig(configFile string) (Config, error) {
	config := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("failed to load .env: %w", err)
	}
	viper.SetConfigFile(configFile)

	viper.SetDefault("httpServer.host", "127.0.0.1")
	viper.SetDefault("httpServer.port", "8005")
	viper.SetDefault("logger.level", "WARN")
	viper.SetDefault("storage.storageType", "memory")
	viper.SetDefault("lock.type", "memory")
	viper.SetDefault("provider.type", "memory")
	viper.SetDefault("sync.timezone", "America/Los_Angeles")
	viper.SetDefault("sync.defaultCalendar", "primary")
	viper.SetDefault("sync.pastDays", 180)
	viper.SetDefault("sync.futureDays", 365)
	viper.SetDefault("sync.workers", 2)
	viper.SetDefault("notify.rabbit.host", "127.0.0.1")
	viper.SetDefault("notify.rabbit.port", "5672")
	viper.SetDefault("notify.rabbit.queue", "calendar.notify")

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
				return Config{}, fmt.Errorf("failed to prepare config: %w", err)
			}
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return config, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	return config, nil
}
