// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/taskvault/taskvault/cmd/taskvault/cli"
	"github.com/taskvault/taskvault/lib/ledger"
)

// serviceStatus mirrors the daemon's status response.
type serviceStatus struct {
	UptimeSeconds int64  `cbor:"uptime_seconds" json:"uptime_seconds"`
	JournalSeq    uint64 `cbor:"journal_seq" json:"journal_seq"`
	JournalError  string `cbor:"journal_error,omitempty" json:"journal_error,omitempty"`
	MirrorSeq     uint64 `cbor:"mirror_seq" json:"mirror_seq"`
	MirrorLag     uint64 `cbor:"mirror_lag" json:"mirror_lag"`
	HeldBalance   int64  `cbor:"held_balance" json:"held_balance"`
	VaultBalance  int64  `cbor:"vault_balance" json:"vault_balance"`
	Consistent    bool   `cbor:"consistent" json:"consistent"`
}

func statusCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
	}

	return &cli.Command{
		Name:    "status",
		Summary: "Show ledger service health",
		Description: `Report the ledger service's journal position, mirror lag, held
balances, and consistency check.

Exits 1 when the service reports an inconsistency or a failed
journal, so the command doubles as a health probe.`,
		Usage: "taskvault status [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			var status serviceStatus
			if err := params.call("status", nil, &status); err != nil {
				return err
			}

			healthy := status.Consistent && status.JournalError == ""
			if done, err := params.EmitJSON(status); done {
				if err == nil && !healthy {
					return &cli.ExitError{Code: 1}
				}
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "Uptime\t%ds\n", status.UptimeSeconds)
			fmt.Fprintf(tw, "Journal seq\t%d\n", status.JournalSeq)
			fmt.Fprintf(tw, "Mirror seq\t%d (lag %d)\n", status.MirrorSeq, status.MirrorLag)
			fmt.Fprintf(tw, "Held\t%d\n", status.HeldBalance)
			fmt.Fprintf(tw, "Vault\t%d\n", status.VaultBalance)
			fmt.Fprintf(tw, "Consistent\t%t\n", status.Consistent)
			if status.JournalError != "" {
				fmt.Fprintf(tw, "Journal error\t%s\n", status.JournalError)
			}
			tw.Flush()

			if !healthy {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
	}

	return &cli.Command{
		Name:    "stats",
		Summary: "Show ledger counters",
		Usage:   "taskvault stats [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("stats", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			var stats ledger.Stats
			if err := params.call("stats", nil, &stats); err != nil {
				return err
			}
			if done, err := params.EmitJSON(stats); done {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "Tasks\t%d\n", stats.Tasks)
			fmt.Fprintf(tw, "Bids\t%d\n", stats.Bids)
			fmt.Fprintf(tw, "Held\t%d\n", stats.HeldAmount)

			statuses := make([]string, 0, len(stats.ByStatus))
			for status := range stats.ByStatus {
				statuses = append(statuses, string(status))
			}
			sort.Strings(statuses)
			for _, status := range statuses {
				fmt.Fprintf(tw, "  %s\t%d\n", status, stats.ByStatus[ledger.TaskStatus(status)])
			}
			return tw.Flush()
		},
	}
}
