// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete taskvault CLI command tree.
package commands

import (
	"fmt"

	"github.com/taskvault/taskvault/cmd/taskvault/cli"
	"github.com/taskvault/taskvault/lib/version"
)

// Root builds and returns the complete taskvault CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "taskvault",
		Description: `Taskvault: a settlement ledger for task marketplaces.

Post tasks, take competitive bids, custody rewards in escrow, and
settle through approval or arbitration. Most commands talk to the
taskvault-ledger-service socket.`,
		Subcommands: []*cli.Command{
			taskCommand(),
			bidCommand(),
			escrowCommand(),
			disputeCommand(),
			reconcileCommand(),
			accountCommand(),
			statusCommand(),
			statsCommand(),
			batchCommand(),
			tokenCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("taskvault %s\n", version.Current().Detailed())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Post a task and fund its escrow",
				Command:     `taskvault task create --creator creator/alice --title "index the archive" --reward 50 --deadline 2026-04-01T00:00:00Z`,
			},
			{
				Description: "Bid on an open task",
				Command:     "taskvault bid submit 1 --agent agent/bob --amount 40",
			},
			{
				Description: "Check service health and mirror lag",
				Command:     "taskvault status",
			},
			{
				Description: "Run a scripted lifecycle from a JSONC file",
				Command:     "taskvault batch lifecycle.jsonc",
			},
		},
	}
}
