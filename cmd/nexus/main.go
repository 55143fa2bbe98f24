// Package main starts the sync node process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	nexuscmd "github.com/louisbranch/autonexus/internal/cmd/nexus"
	"github.com/louisbranch/autonexus/internal/platform/config"
)

func main() {
	cfg, err := nexuscmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[NEXUS] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Probe {
		if err := nexuscmd.Probe(ctx, cfg); err != nil {
			config.Exitf("unhealthy: %v", err)
		}
		return
	}
	if err := nexuscmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
