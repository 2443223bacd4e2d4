package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/LinkovichChomofski/calendaragent/internal/app"
	"github.com/LinkovichChomofski/calendaragent/internal/logger"
	"github.com/LinkovichChomofski/calendaragent/internal/provider"
	"github.com/LinkovichChomofski/calendaragent/internal/providerbuilder"
	"github.com/LinkovichChomofski/calendaragent/internal/rabbit"
	"github.com/LinkovichChomofski/calendaragent/internal/reconciler"
	internalhttp "github.com/LinkovichChomofski/calendaragent/internal/server/http"
	"github.com/LinkovichChomofski/calendaragent/internal/storagebuilder"
	log "github.com/sirupsen/logrus"
)

var configFile string

var errNoAuthorization = errors.New("provider does not use interactive authorization")

func init() {
	flag.StringVar(&configFile, "config", "./configs/config.yaml", "Path to configuration file")
	log.SetFormatter(&log.TextFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.WarnLevel)
}

func main() {
	flag.Parse()

	if flag.Arg(0) == "version" {
		printVersion()
		return
	}

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
	loc, err := config.Sync.Location()
	if err != nil {
		log.Errorf("failed to start %v", err)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	client, err := providerbuilder.New(ctx, config.Provider)
	if err != nil {
		log.Errorf("failed to start %v", err)
		return
	}
	if flag.Arg(0) == "authorize" {
		if err := authorize(ctx, client); err != nil {
			log.Errorf("failed to authorize: %v", err)
		}
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
		if err := stor.Close(ctx); err != nil {
			log.Errorf("failed to close storage: %v", err)
		}
	}()

	var rec *reconciler.Reconciler
	if client != nil {
		l, err := storagebuilder.NewLocker(config.Lock, stor)
		if err != nil {
			log.Errorf("failed to start %v", err)
			return
		}
		rec = reconciler.New(stor, client, l, config.Sync.Reconciler(loc))
	}

	calendar := app.New(stor, client, rec, app.Config{
		Location:        loc,
		DefaultCalendar: config.Sync.DefaultCalendar,
		Calendars:       config.Sync.Calendars,
	})
	if config.Notify.Enabled {
		r := rabbit.New(config.Notify.Rabbit)
		if err := r.Connect(); err != nil {
			log.Errorf("failed to start %v", err)
			return
		}
		defer r.Close()
		calendar.SetNotifier(r)
	}

	server := internalhttp.NewServer(config.HTTPServer, calendar)

	go func() {
		<-ctx.Done()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			log.Error("failed to stop http server: " + err.Error())
		}
	}()

	log.Info("calendar is running...")

	if err := server.Start(ctx); err != nil {
		log.Error("failed to start http server: " + err.Error())
		cancel()
	}
}

func authorize(ctx context.Context, client provider.Client) error {
	a, ok := client.(providerbuilder.Authorizer)
	if !ok {
		return errNoAuthorization
	}
	if a.IsAuthorized() {
		fmt.Println("already authorized")
		return nil
	}
	fmt.Printf("Open the link in a browser and paste the authorization code:\n%s\n", a.AuthURL())
	var code string
	if _, err := fmt.Scanln(&code); err != nil {
		return fmt.Errorf("failed to read code: %w", err)
	}
	return a.Exchange(ctx, code)
}
