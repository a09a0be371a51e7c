// Command daybook is the CLI shell over the daybook core: typed
// entries (events, tasks, projects, notes, journals) with reminders,
// persisted in a dual document/index store.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
