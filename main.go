package main

import (
	"context"
	"envi/app/client/geocode"
	"envi/app/client/mcptools"
	"envi/app/client/openmeteo"
	"envi/app/config"
	"envi/app/service/engine"
	"envi/app/service/eval"
	"envi/app/service/memory"
	"envi/app/service/pipeline"
	"envi/app/service/report"
	"envi/app/service/stages"
	"envi/app/util/mylog"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, openmeteo.NewClient)
	do.Provide(di, geocode.NewClient)
	do.Provide(di, memory.New)
	do.Provide(di, mcptools.New)
	do.Provide(di, stages.New)
	do.Provide(di, pipeline.New)
	do.Provide(di, report.New)
	do.Provide(di, eval.New)
	do.Provide(di, engine.New)

	slog.Info("Service started")

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	go do.MustInvoke[*engine.Service](di).Run(appCtx)

	<-appCtx.Done()
}
