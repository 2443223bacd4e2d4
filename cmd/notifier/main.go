package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/LinkovichChomofski/calendaragent/internal/logger"
	"github.com/LinkovichChomofski/calendaragent/internal/rabbit"
	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "./configs/notifier_config.yaml", "Path to configuration file")
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

	r := rabbit.New(config.Rabbit)
	if err := r.Connect(); err != nil {
		log.Errorf("failed to start %v", err)
		return
	}
	defer r.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	err = r.Consume(ctx, func(msg amqp.Delivery) {
		n, err := rabbit.ParseNotification(msg.Body)
		if err != nil {
			log.Errorf("failed to parse notification: %v", err)
			return
		}
		entry := log.WithField("kind", n.Kind).WithField("calendar", n.CalendarID)
		if n.Kind == rabbit.KindSync && !n.Success {
			entry.Warn(n.String())
			return
		}
		entry.Info(n.String())
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("consumer stopped: %v", err)
	}
}
