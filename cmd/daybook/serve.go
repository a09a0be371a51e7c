package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/daybook-app/daybook/internal/config"
	"github.com/daybook-app/daybook/internal/daemon"
	"github.com/daybook-app/daybook/internal/manager"
	"github.com/daybook-app/daybook/internal/notify"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background daemon (reminder timers, file watcher, periodic resync)",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runServe() error {
	// The broadcast server has to exist before openApp wires the
	// notifier fan-out, so peek at the config for the port first.
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	var extra []notify.Notifier
	var broadcast *notify.Broadcast
	if cfg.BroadcastPort > 0 {
		broadcast = notify.NewBroadcast(notify.BroadcastConfig{Port: cfg.BroadcastPort})
		extra = append(extra, broadcast)
	}

	a, err := openApp(extra...)
	if err != nil {
		return err
	}
	defer a.close()

	if broadcast != nil {
		broadcast.SetLogger(a.log)
		if err := broadcast.Start(); err != nil {
			return fmt.Errorf("starting broadcast server: %w", err)
		}
		defer broadcast.Stop()
		a.log.Infof("broadcast server listening on %s", broadcast.Addr())
	}

	managers := make([]*manager.Manager, 0, len(a.managers))
	for _, m := range a.managers {
		managers = append(managers, m)
	}

	d, err := daemon.New(managers, a.cfg.DocsDir(), &daemon.Config{
		ResyncInterval: a.cfg.ResyncInterval,
		Logger:         a.log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.log.Infof("daemon starting (data dir %s)", a.cfg.DataDir)
	if err := d.Start(ctx); err != nil {
		return err
	}
	a.log.Infof("daemon stopped")
	return nil
}
