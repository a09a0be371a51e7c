package main

import (
	"fmt"

	"github.com/daybook-app/daybook/internal/config"
	"github.com/daybook-app/daybook/internal/entry"
	"github.com/daybook-app/daybook/internal/index"
	"github.com/daybook-app/daybook/internal/logging"
	"github.com/daybook-app/daybook/internal/manager"
	"github.com/daybook-app/daybook/internal/notify"
	"github.com/daybook-app/daybook/internal/sched"
	"github.com/daybook-app/daybook/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "daybook",
	Short: "Personal organizer: events, tasks, projects, notes, journals",
	Long: `Daybook manages typed entries with due dates, tags, sub-items, and
reminder notifications.

Entries live in a dual store under the data directory: one canonical
JSON document per entry plus a SQLite index for fast listings. Run
"daybook serve" to keep reminder schedules alive.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: daybook.yaml in the data dir)")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(serveCmd)
}

// app bundles the wired-up core for one command invocation.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	idx      *index.DB
	store    *store.Store
	sched    *sched.Scheduler
	managers map[entry.Kind]*manager.Manager
}

// openApp loads config and wires index, store, scheduler, and one
// manager per kind. Extra notifiers (e.g. the broadcast server) are
// fanned in alongside the configured sinks.
func openApp(extra ...notify.Notifier) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})

	idx, err := index.Open(cfg.IndexPath())
	if err != nil {
		return nil, err
	}
	if err := idx.InitSchema(); err != nil {
		_ = idx.Close()
		return nil, err
	}

	st := store.New(idx, cfg.DocsDir(), log)

	sinks := notify.Multi{notify.LogNotifier{Log: log}}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.WebhookURL))
	}
	sinks = append(sinks, extra...)

	scheduler, err := sched.New(sched.Config{Notifier: sinks, Logger: log})
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	managers := make(map[entry.Kind]*manager.Manager, len(entry.Kinds))
	for _, kind := range entry.Kinds {
		m, err := manager.New(manager.Config{
			Kind:                  kind,
			Store:                 st,
			Scheduler:             scheduler,
			HorizonDays:           cfg.HorizonDays,
			CacheStaleness:        cfg.CacheStaleness,
			SearchFanoutThreshold: cfg.SearchFanoutThreshold,
			SearchConcurrency:     cfg.SearchConcurrency,
			SearchUnitTimeout:     cfg.SearchUnitTimeout,
			Logger:                log,
		})
		if err != nil {
			_ = idx.Close()
			return nil, err
		}
		managers[kind] = m
	}

	return &app{
		cfg:      cfg,
		log:      log,
		idx:      idx,
		store:    st,
		sched:    scheduler,
		managers: managers,
	}, nil
}

func (a *app) close() {
	_ = a.idx.Close()
}

// managerFor resolves a kind argument to its manager.
func (a *app) managerFor(arg string) (*manager.Manager, error) {
	kind, err := entry.ParseKind(arg)
	if err != nil {
		return nil, err
	}
	m, ok := a.managers[kind]
	if !ok {
		return nil, fmt.Errorf("no manager for kind %s", kind)
	}
	return m, nil
}
