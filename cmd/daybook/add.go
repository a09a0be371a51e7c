package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/daybook-app/daybook/internal/entry"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
)

var (
	addDesc     string
	addTags     []string
	addDue      string
	addStart    string
	addReminds  []string
	addUrgency  string
)

var addCmd = &cobra.Command{
	Use:   "add <kind> <name>",
	Short: "Create a new entry",
	Long: `Create an entry of the given kind (event, task, project, note,
journal).

Due and start times accept natural language:
  daybook add task "pay rent" --due "next friday"
  daybook add event "standup" --start "tomorrow at 9:30" --remind 15m

--remind takes an offset before the due/start time (30m, 2h, 1d) and
may be repeated.`,
	Args: cobra.ExactArgs(2),
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

		spec := entry.Spec{
			Name:        args[1],
			Description: addDesc,
			Tags:        addTags,
		}

		if addDue != "" {
			due, err := parseNaturalTime(addDue)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid --due: %v\n", err)
				os.Exit(1)
			}
			spec.DueBy = &due
		}
		if addStart != "" {
			start, err := parseNaturalTime(addStart)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid --start: %v\n", err)
				os.Exit(1)
			}
			spec.StartAt = &start
		}

		urgency, err := entry.ParseUrgency(addUrgency)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		anchor := spec.DueBy
		if m.Kind() == entry.KindEvent {
			anchor = spec.StartAt
		}
		for _, offset := range addReminds {
			if anchor == nil {
				fmt.Fprintf(os.Stderr, "Error: --remind requires --due (or --start for events)\n")
				os.Exit(1)
			}
			before, err := parseOffset(offset)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid --remind %q: %v\n", offset, err)
				os.Exit(1)
			}
			spec.Reminders = append(spec.Reminders, entry.Reminder{
				FireAt:  anchor.Add(-before),
				Urgency: urgency,
			})
		}

		e, err := entry.New(m.Kind(), spec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := m.Add(context.Background(), e); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Added %s %s\n", m.Kind(), e.ID)
	},
}

func init() {
	addCmd.Flags().StringVarP(&addDesc, "desc", "d", "", "description")
	addCmd.Flags().StringSliceVarP(&addTags, "tags", "t", nil, "comma-separated tags")
	addCmd.Flags().StringVar(&addDue, "due", "", "due time (natural language)")
	addCmd.Flags().StringVar(&addStart, "start", "", "start time (natural language)")
	addCmd.Flags().StringArrayVarP(&addReminds, "remind", "r", nil, "reminder offset before due/start (e.g. 30m, 2h, 1d); repeatable")
	addCmd.Flags().StringVarP(&addUrgency, "urgency", "u", "normal", "reminder urgency (low, normal, critical)")
}

// parseNaturalTime understands both RFC 3339 timestamps and natural
// phrases like "next friday" or "tomorrow at 9:30".
func parseNaturalTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, time.Now())
	if err != nil {
		return time.Time{}, err
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand %q", s)
	}
	return r.Time, nil
}

// parseOffset parses a duration with day support: "30m", "2h", "1d".
func parseOffset(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day count")
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
