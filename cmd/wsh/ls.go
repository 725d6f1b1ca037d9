// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

type sessionListEntry struct {
	Name string `json:"name"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// runLs lists sessions known to a daemon, optionally filtered to names
// containing a substring.
func runLs(args []string) error {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	daemon := fs.String("daemon", daemonURL(), "daemon base URL")
	token := fs.String("token", daemonToken(), "bearer token")
	filter := fs.String("filter", "", "only show sessions whose name contains this substring")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	var entries []sessionListEntry
	if err := apiRequest(ctx, "GET", *daemon, *token, "/sessions", nil, &entries); err != nil {
		return err
	}

	if *filter != "" {
		needle := strings.ToLower(*filter)
		filtered := entries[:0]
		for _, e := range entries {
			if strings.Contains(strings.ToLower(e.Name), needle) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	if len(entries) == 0 {
		fmt.Println("no sessions")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "NAME\tCOLS\tROWS\n")
	for _, e := range entries {
		fmt.Fprintf(writer, "%s\t%d\t%d\n", e.Name, e.Cols, e.Rows)
	}
	return writer.Flush()
}
