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

	"gatebot/internal/app"
	"gatebot/internal/config"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", os.Getenv("GATEBOT_CONFIG"), "path to config json/yaml (optional; env vars fill the rest)")
	flag.Parse()

	a, err := app.New(app.Options{ConfigPath: cfgPath})
	if err != nil {
		if errors.Is(err, config.ErrUnconfigured) {
			fmt.Fprintln(os.Stderr, "missing configuration:", err)
		} else {
			fmt.Fprintln(os.Stderr, "fatal:", err)
		}
		os.Exit(1)
	}

	if err := a.Start(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		stop(a, app.StopFatalError)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	var reason app.StopReason
	select {
	case s := <-sig:
		reason = app.StopSIGINT
		if s == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	stop(a, reason)
	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
		}
		os.Exit(1)
	}
}

func stop(a *app.App, reason app.StopReason) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Stop(ctx, reason)
}
