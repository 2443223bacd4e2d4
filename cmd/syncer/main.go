package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/LinkovichChomofski/calendaragent/internal/app"
	"github.com/LinkovichChomofski/calendaragent/internal/logger"
	"github.com/LinkovichChomofski/calendaragent/internal/providerbuilder"
	"github.com/LinkovichChomofski/calendaragent/internal/rabbit"
	"github.com/LinkovichChomofski/calendaragent/internal/reconciler"
	"github.com/LinkovichChomofski/calendaragent/internal/storagebuilder"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "./configs/syncer_config.yaml", "Path to configuration file")
	log.SetFormatter(&log.TextFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.WarnLevel)
}

func main() {
	flag.Parse()

	config, err := NewConfig(configFile)
	if err != nil {
		log.Errorf("failed to start %v", err)
		return
	}
	err = logger.PrepareLogger(config.Logger)
	if err != nil {
		log.Errorf("failed to start %v", err)
		return
	}
	loc, err := time.LoadLocation(config.Sync.Timezone)
	if err != nil {
		log.Errorf("failed to start %v", err)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	client, err := providerbuilder.New(ctx, config.Provider)
	if err != nil {
		log.Errorf("failed to start %v", err)
		return
	}
	if client == nil {
		log.Error("failed to start: syncer needs a provider")
		return
	}

	stor, err := storagebuilder.New(config.Storage)
	if err != nil {
		log.Errorf("failed to start %v", err)
		return
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
		defer cancel()
		stor.Close(ctx)
	}()

	l, err := storagebuilder.NewLocker(config.Lock, stor)
	if err != nil {
		log.Errorf("failed to start %v", err)
		return
	}

	r := rabbit.New(config.Rabbit)
	if err := r.Connect(); err != nil {
		log.Errorf("failed to start %v", err)
		return
	}
	defer r.Close()

	calendar := app.New(stor, client, reconciler.New(stor, client, l, config.Sync.reconcilerConfig(loc)), app.Config{
		Location:  loc,
		Calendars: config.Sync.Calendars,
	})
	calendar.SetNotifier(r)

	if flag.Arg(0) == "once" {
		runSync(ctx, calendar, config.Sync.Discover)
		return
	}

	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err = c.AddFunc(config.Sync.Schedule, func() {
		runSync(ctx, calendar, config.Sync.Discover)
	})
	if err != nil {
		log.Errorf("failed to schedule sync %q: %v", config.Sync.Schedule, err)
		return
	}
	c.Start()
	log.WithField("schedule", config.Sync.Schedule).Info("syncer is running...")

	<-ctx.Done()
	<-c.Stop().Done()
}

func runSync(ctx context.Context, calendar *app.App, discover bool) {
	if discover {
		if _, err := calendar.DiscoverCalendars(ctx); err != nil {
			log.Errorf("failed to discover calendars: %v", err)
		}
	}
	results, err := calendar.SyncAll(ctx, nil)
	if err != nil {
		log.Errorf("failed to sync: %v", err)
		return
	}
	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	log.WithField("calendars", len(results)).WithField("failed", failed).Info("sync run finished")
}
