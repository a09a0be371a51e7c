package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/daybook-app/daybook/internal/entry"
	"github.com/daybook-app/daybook/internal/index"
	"github.com/daybook-app/daybook/internal/manager"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <kind> <id>",
	Short: "Show one entry in full",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		withEntry(args[0], args[1], func(a *app, m *manager.Manager, e *entry.Entry) error {
			printEntry(e, 0)
			return nil
		})
	},
}

var doneCmd = &cobra.Command{
	Use:   "done <kind> <id>",
	Short: "Mark an entry completed",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		withEntry(args[0], args[1], func(a *app, m *manager.Manager, e *entry.Entry) error {
			now := entry.Truncate(time.Now())
			e.Done = true
			e.CompletedAt = &now
			if err := m.Update(context.Background(), e); err != nil {
				return err
			}
			fmt.Printf("Completed %s %s\n", m.Kind(), shortID(e.ID))
			return nil
		})
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <kind> <id>",
	Short: "Archive an entry (document kept, hidden from listings)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		withEntry(args[0], args[1], func(a *app, m *manager.Manager, e *entry.Entry) error {
			if err := m.Archive(context.Background(), e.ID); err != nil {
				return err
			}
			fmt.Printf("Archived %s %s\n", m.Kind(), shortID(e.ID))
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <kind> <id>",
	Short: "Delete an entry permanently (index row and document)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		withEntry(args[0], args[1], func(a *app, m *manager.Manager, e *entry.Entry) error {
			if err := m.Delete(context.Background(), e.ID); err != nil {
				return err
			}
			fmt.Printf("Deleted %s %s\n", m.Kind(), shortID(e.ID))
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <kind> <query>",
	Short: "Search entry documents for a substring",
	Args:  cobra.ExactArgs(2),
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

		hits, err := m.Search(context.Background(), args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printEntries(hits)
	},
}

// withEntry wires the app, resolves the id argument (full id or unique
// prefix), loads the entry, and runs fn.
func withEntry(kindArg, idArg string, fn func(*app, *manager.Manager, *entry.Entry) error) {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	m, err := a.managerFor(kindArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	id, err := resolveID(ctx, a, m.Kind(), idArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	e, err := m.Get(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := fn(a, m, e); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveID expands an id prefix to the full entry id, failing on
// ambiguity.
func resolveID(ctx context.Context, a *app, kind entry.Kind, prefix string) (string, error) {
	stubs, err := a.store.ListStubs(ctx, kind, index.Filter{WithinDays: -1, IncludeArchived: true})
	if err != nil {
		return "", err
	}

	var matches []string
	for _, s := range stubs {
		if s.ID == prefix {
			return s.ID, nil
		}
		if strings.HasPrefix(s.ID, prefix) {
			matches = append(matches, s.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no %s matches id %q", kind, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

func printEntry(e *entry.Entry, depth int) {
	indent := strings.Repeat("  ", depth)

	fmt.Printf("%s%s  %s\n", indent, shortID(e.ID), e.Name)
	if e.Description != "" {
		fmt.Printf("%s  %s\n", indent, e.Description)
	}
	if len(e.Tags) > 0 {
		fmt.Printf("%s  tags: %s\n", indent, strings.Join(e.Tags, ", "))
	}
	if e.StartAt != nil {
		fmt.Printf("%s  starts: %s\n", indent, e.StartAt.Format("2006-01-02 15:04"))
	}
	if e.DueBy != nil {
		fmt.Printf("%s  due: %s\n", indent, e.DueBy.Format("2006-01-02 15:04"))
	}
	fmt.Printf("%s  completed: %v\n", indent, e.Completed())
	for _, r := range e.Reminders {
		fmt.Printf("%s  reminder: %s\n", indent, formatReminder(r))
	}
	for _, child := range e.Children {
		printEntry(child, depth+1)
	}
}
