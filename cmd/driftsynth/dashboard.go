package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/Mavwarf/driftsynth/internal/dashboard"
	"github.com/Mavwarf/driftsynth/internal/eventlog"
	"github.com/Mavwarf/driftsynth/internal/paths"
)

// dashboardCmd serves logged sessions until interrupted. Live state is
// only available from play --dashboard.
func dashboardCmd(args []string, f flags) {
	if len(args) > 0 {
		fatal(fmt.Errorf("dashboard takes no arguments, got %q", strings.Join(args, " ")))
	}
	cfg, err := loadConfig(f)
	if err != nil {
		fatal(err)
	}

	var store eventlog.Store
	if path := paths.DBPath(); fileExists(path) {
		s, err := eventlog.NewSQLiteStore(path)
		if err != nil {
			fatal(err)
		}
		defer s.Close()
		store = s
	} else {
		fmt.Println(noLogMessage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("Press Ctrl+C to stop")
	if err := dashboard.New(cfg, store, nil).Serve(ctx, cfg.Dashboard.Port, f.open); err != nil {
		fatal(err)
	}
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
