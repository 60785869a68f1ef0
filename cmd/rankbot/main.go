package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rankbot/internal/app"
	"rankbot/internal/config"
)

func main() {
	var (
		cfgPath string
		once    bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.BoolVar(&once, "once", false, "run one refresh and exit (no telegram)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Println("fatal config:", err)
		os.Exit(1)
	}

	if once {
		os.Exit(runOnce(ctx, cfg))
	}

	a, err := app.New(cfg)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}

	sctx, scancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer scancel()
	_ = a.Stop(sctx, reason)

	if err := a.Err(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func runOnce(ctx context.Context, cfg *config.Config) int {
	a, err := app.New(cfg, app.WithoutChat())
	if err != nil {
		fmt.Println("fatal:", err)
		return 1
	}
	defer func() { _ = a.Stop(context.Background(), app.StopOnceDone) }()

	out, err := a.RunOnce(ctx)
	if err != nil {
		fmt.Println("refresh failed:", err)
		return 1
	}
	fmt.Printf("%s written (%d players, %s)\n", out.Path, out.Entries, out.Summary())
	return 0
}
