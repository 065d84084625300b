// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/taskvault/taskvault/cmd/taskvault/cli"
	"github.com/taskvault/taskvault/lib/ledger"
)

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:    "reconcile",
		Summary: "Mirror reconciliation commands",
		Description: `Replay operations on behalf of a lagging mirror.

A mirror that saw an operation succeed but missed the response can
replay it here: a state that already reflects the operation is a
convergent no-op, a state that contradicts it is an error. Funds are
never moved twice.`,
		Subcommands: []*cli.Command{
			reconcileAcceptCommand(),
			reconcileDepositCommand(),
		},
	}
}

func reconcileAcceptCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		Creator string `flag:"creator" desc:"task creator the original accept ran as"`
	}

	return &cli.Command{
		Name:    "accept",
		Summary: "Replay a bid acceptance",
		Usage:   "taskvault reconcile accept <bid-id> --creator <actor>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("accept", &params)
		},
		Run: func(args []string) error {
			bidID, err := parseBidID(args)
			if err != nil {
				return err
			}
			var task ledger.Task
			err = params.call("reconcile-accept", map[string]any{
				"bid_id": bidID,
				"caller": params.Creator,
			}, &task)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(task); done {
				return err
			}
			fmt.Printf("task %d converged (%s)\n", task.ID, task.Status)
			return nil
		},
	}
}

func reconcileDepositCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		Creator string `flag:"creator" desc:"depositor the original deposit ran as"`
		Amount  int64  `flag:"amount" desc:"claimed deposit amount in base units"`
	}

	return &cli.Command{
		Name:    "deposit",
		Summary: "Verify a recorded deposit",
		Usage:   "taskvault reconcile deposit <task-id> --creator <actor> --amount <amount>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("deposit", &params)
		},
		Run: func(args []string) error {
			taskID, err := parseTaskID(args)
			if err != nil {
				return err
			}
			var escrow ledger.Escrow
			err = params.call("reconcile-deposit", map[string]any{
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
			fmt.Printf("deposit of %d on task %d is recorded\n", params.Amount, taskID)
			return nil
		},
	}
}
