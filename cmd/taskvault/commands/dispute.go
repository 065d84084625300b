// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/taskvault/taskvault/cmd/taskvault/cli"
	"github.com/taskvault/taskvault/lib/ledger"
)

func disputeCommand() *cli.Command {
	return &cli.Command{
		Name:    "dispute",
		Summary: "Dispute commands",
		Description: `Raise and resolve disputes on assigned tasks.

Either party may raise a dispute once a task is in progress or
completed. Resolution is the one privileged operation on the ledger:
it requires an arbitration token minted with "taskvault token mint"
and is performed as the token's subject.`,
		Subcommands: []*cli.Command{
			disputeRaiseCommand(),
			disputeResolveCommand(),
		},
	}
}

func disputeRaiseCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		Caller string `flag:"caller" desc:"creator or assigned agent raising the dispute"`
	}

	return &cli.Command{
		Name:    "raise",
		Summary: "Raise a dispute on a task",
		Usage:   "taskvault dispute raise <task-id> --caller <actor>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("raise", &params)
		},
		Run: func(args []string) error {
			taskID, err := parseTaskID(args)
			if err != nil {
				return err
			}
			var task ledger.Task
			err = params.call("dispute-raise", map[string]any{
				"task_id": taskID,
				"caller":  params.Caller,
			}, &task)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(task); done {
				return err
			}
			fmt.Printf("task %d disputed, awaiting arbitration\n", task.ID)
			return nil
		},
	}
}

func disputeResolveCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		TokenFile      string `flag:"token-file" desc:"arbitration token minted by the authority"`
		Winner         string `flag:"winner" desc:"advisory winner (creator or assigned agent)"`
		CreatorPercent int64  `flag:"creator-percent" desc:"escrow share returned to the creator (0-100)"`
	}

	return &cli.Command{
		Name:    "resolve",
		Summary: "Resolve a dispute with an arbitration token",
		Usage:   "taskvault dispute resolve <task-id> --token-file <path> --winner <actor> --creator-percent <n>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("resolve", &params)
		},
		Examples: []cli.Example{
			{
				Description: "Split 60/40 in the creator's favor",
				Command:     "taskvault dispute resolve 1 --token-file arbiter.token --winner creator/alice --creator-percent 60",
			},
		},
		Run: func(args []string) error {
			taskID, err := parseTaskID(args)
			if err != nil {
				return err
			}
			if params.TokenFile == "" {
				return fmt.Errorf("--token-file is required")
			}

			var task ledger.Task
			err = params.callWithToken(params.TokenFile, "dispute-resolve", map[string]any{
				"task_id":         taskID,
				"winner":          params.Winner,
				"creator_percent": params.CreatorPercent,
			}, &task)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(task); done {
				return err
			}
			fmt.Printf("task %d resolved, %d%% to creator\n", task.ID, params.CreatorPercent)
			return nil
		},
	}
}
