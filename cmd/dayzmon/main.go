package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dayzmon/internal/app"
	"dayzmon/internal/config"
	kit "dayzmon/internal/transport"
	"dayzmon/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (.json, .yaml or .yml)")
	flag.Parse()

	os.Exit(run(cfgPath))
}

func run(cfgPath string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Used only until the app's log service exists, and after it closes.
	boot := logx.NewConsole("info")

	a, err := app.New(cfgPath)
	if err != nil {
		boot.Error("startup failed", logx.String("config", cfgPath), logx.String("err", describe(err)))
		return 1
	}
	if err := a.Start(ctx); err != nil {
		boot.Error("start failed", logx.String("err", describe(err)))
		_ = a.Stop(context.Background(), app.StopFatalError)
		return 1
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil {
		boot.Error("stopped on fatal error", logx.Err(err))
		return 1
	}
	return 0
}

func describe(err error) string {
	switch {
	case errors.Is(err, config.ErrInvalid):
		return "configuration: " + err.Error()
	case errors.Is(err, kit.ErrAuth):
		return "chat login: " + err.Error()
	}
	return err.Error()
}
