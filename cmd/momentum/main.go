// Package main runs the full momentum stack as one supervised process tree.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	momentumcmd "github.com/momentum-oss/momentum/internal/cmd/momentum"
)

func main() {
	cfg, err := momentumcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[HOST] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := momentumcmd.Run(ctx, cfg); err != nil {
		var exitErr *momentumcmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		log.Fatalf("dev host: %v", err)
	}
}
