package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/CrewTrack/config"
	_ "go.uber.org/automaxprocs"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := RunNotifyWorker(ctx, cfg, defaultWorkerFactories(), os.Getenv("swaggerPath")); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("notify-worker stopped", "error", err.Error())
		os.Exit(1)
	}
}
