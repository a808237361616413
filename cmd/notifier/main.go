// Command notifier consumes domain events from RabbitMQ and forwards them
// to the board's ntfy topic.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
	"github.com/stw-baltyk/baltyk-manager/internal/notify"
	"github.com/stw-baltyk/baltyk-manager/internal/queue"
)

func main() {
	_ = godotenv.Load()
	bcfg := config.LoadBrokerConfig()
	ncfg := config.LoadNtfyConfig()
	if !bcfg.Enabled {
		log.Fatal("notifier: BROKER_ENABLED=false, nothing to consume")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n := notify.NewNotifier(notify.NewNtfy(ncfg), ncfg)
	log.Printf("notifier: consuming %s -> %s/%s", bcfg.Queue, ncfg.Server, ncfg.Topic)
	if err := queue.Consume(ctx, bcfg.URL, bcfg.Queue, n.Handle); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("notifier: %v", err)
	}
	log.Printf("notifier: stopped")
}
