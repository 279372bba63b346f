package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"civicwatch/core/appbootstrap"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := appbootstrap.Run(ctx, *configPath); err != nil {
		log.Fatalf("civicwatch: %v", err)
	}
}
