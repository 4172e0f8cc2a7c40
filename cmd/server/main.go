package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/gophenroll/internal/app"
	"github.com/dmitrijs2005/gophenroll/internal/config"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
)

func main() {

	ctx := context.Background()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("%v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	password, err := app.MasterPassword(cfg, os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}

	a, err := app.NewApp(ctx, cfg, password, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := a.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

}
