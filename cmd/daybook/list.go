package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/daybook-app/daybook/internal/entry"
	"github.com/spf13/cobra"
)

var (
	listAll  bool
	listPast bool
)

var listCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List entries of a kind",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.close()

		m, err := a.managerFor(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		var entries []*entry.Entry
		switch {
		case listAll:
			entries, err = m.ListAll(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		case listPast:
			// Caches are empty in a one-shot invocation until resync.
			if err := m.Resync(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			entries = m.ListPast()
		default:
			if err := m.Resync(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			entries = m.ListActive()
		}

		printEntries(entries)
	},
}

func init() {
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "include completed entries and ignore the horizon")
	listCmd.Flags().BoolVarP(&listPast, "past", "p", false, "show entries whose time has elapsed")
}

func printEntries(entries []*entry.Entry) {
	if len(entries) == 0 {
		fmt.Println("No entries.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tWHEN\tTAGS\tDONE")
	for _, e := range entries {
		when := ""
		if anchor := e.AnchorTime(); anchor != nil {
			when = anchor.Format("2006-01-02 15:04")
		}
		done := ""
		if e.Completed() {
			done = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			shortID(e.ID), e.Name, when, strings.Join(e.Tags, ","), done)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatReminder(r entry.Reminder) string {
	return fmt.Sprintf("%s (%s)", r.FireAt.Format(time.RFC3339), r.Urgency)
}
