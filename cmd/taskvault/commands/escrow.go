// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/taskvault/taskvault/cmd/taskvault/cli"
	"github.com/taskvault/taskvault/lib/ledger"
)

func escrowCommand() *cli.Command {
	return &cli.Command{
		Name:    "escrow",
		Summary: "Escrow commands",
		Description: `Deposit and inspect custodied task funds.

Deposits move value from the creator's account into the vault, where
it stays locked until the task settles: released to the agent on
approval, refunded on cancellation, or split by dispute resolution.`,
		Subcommands: []*cli.Command{
			escrowDepositCommand(),
			escrowGetCommand(),
		},
	}
}

func escrowDepositCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		Creator string `flag:"creator" desc:"task creator depositing funds"`
		Amount  int64  `flag:"amount" desc:"deposit amount in base units"`
	}

	return &cli.Command{
		Name:    "deposit",
		Summary: "Lock funds against a task",
		Usage:   "taskvault escrow deposit <task-id> --creator <actor> --amount <amount>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("deposit", &params)
		},
		Run: func(args []string) error {
			taskID, err := parseTaskID(args)
			if err != nil {
				return err
			}
			var escrow ledger.Escrow
			err = params.call("escrow-deposit", map[string]any{
				"task_id": taskID,
				"caller":  params.Creator,
				"amount":  params.Amount,
			}, &escrow)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(escrow); done {
				return err
			}
			fmt.Printf("escrow on task %d now holds %d\n", escrow.TaskID, escrow.Amount)
			return nil
		},
	}
}

func escrowGetCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
	}

	return &cli.Command{
		Name:    "get",
		Summary: "Show the escrow for a task",
		Usage:   "taskvault escrow get <task-id>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("get", &params)
		},
		Run: func(args []string) error {
			taskID, err := parseTaskID(args)
			if err != nil {
				return err
			}
			var escrow ledger.Escrow
			if err := params.call("escrow-get", map[string]any{"task_id": taskID}, &escrow); err != nil {
				return err
			}
			if done, err := params.EmitJSON(escrow); done {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "Task\t%d\n", escrow.TaskID)
			fmt.Fprintf(tw, "Amount\t%d\n", escrow.Amount)
			fmt.Fprintf(tw, "Depositor\t%s\n", escrow.Depositor)
			fmt.Fprintf(tw, "Released\t%t\n", escrow.Released)
			if !escrow.Recipient.IsZero() {
				fmt.Fprintf(tw, "Recipient\t%s\n", escrow.Recipient)
			}
			return tw.Flush()
		},
	}
}
