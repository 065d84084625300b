// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/taskvault/taskvault/cmd/taskvault/cli"
	"github.com/taskvault/taskvault/lib/ledger"
)

func bidCommand() *cli.Command {
	return &cli.Command{
		Name:    "bid",
		Summary: "Bid commands",
		Description: `Submit and decide bids on open tasks.

Any number of agents may bid on an open task. Accepting one bid
rejects all others in the same commit and re-pins the task's reward
to the accepted amount.`,
		Subcommands: []*cli.Command{
			bidSubmitCommand(),
			bidAcceptCommand(),
			bidGetCommand(),
			bidListCommand(),
		},
	}
}

func parseBidID(args []string) (uint64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one bid id argument")
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid bid id %q", args[0])
	}
	return id, nil
}

func bidSubmitCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		Agent   string `flag:"agent" desc:"bidding identity (e.g. agent/bob)"`
		Amount  int64  `flag:"amount" desc:"asking price in base units"`
		Message string `flag:"message" desc:"free-form pitch"`
	}

	return &cli.Command{
		Name:    "submit",
		Summary: "Bid on an open task",
		Usage:   "taskvault bid submit <task-id> --agent <actor> --amount <amount> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("submit", &params)
		},
		Examples: []cli.Example{
			{
				Description: "Undercut the posted reward",
				Command:     `taskvault bid submit 1 --agent agent/bob --amount 40 --message "can do"`,
			},
		},
		Run: func(args []string) error {
			taskID, err := parseTaskID(args)
			if err != nil {
				return err
			}
			var bid ledger.Bid
			err = params.call("bid-submit", map[string]any{
				"task_id": taskID,
				"agent":   params.Agent,
				"amount":  params.Amount,
				"message": params.Message,
			}, &bid)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(bid); done {
				return err
			}
			fmt.Printf("bid %d submitted on task %d for %d\n", bid.ID, bid.TaskID, bid.Amount)
			return nil
		},
	}
}

func bidAcceptCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		Creator string `flag:"creator" desc:"task creator accepting the bid"`
	}

	return &cli.Command{
		Name:    "accept",
		Summary: "Accept a bid, assigning the task",
		Usage:   "taskvault bid accept <bid-id> --creator <actor>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("accept", &params)
		},
		Run: func(args []string) error {
			bidID, err := parseBidID(args)
			if err != nil {
				return err
			}
			var task ledger.Task
			err = params.call("bid-accept", map[string]any{
				"bid_id": bidID,
				"caller": params.Creator,
			}, &task)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(task); done {
				return err
			}
			fmt.Printf("task %d assigned to %s for %d\n", task.ID, task.AssignedAgent, task.Reward)
			return nil
		},
	}
}

func bidGetCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
	}

	return &cli.Command{
		Name:    "get",
		Summary: "Show one bid",
		Usage:   "taskvault bid get <bid-id>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("get", &params)
		},
		Run: func(args []string) error {
			bidID, err := parseBidID(args)
			if err != nil {
				return err
			}
			var bid ledger.Bid
			if err := params.call("bid-get", map[string]any{"bid_id": bidID}, &bid); err != nil {
				return err
			}
			if done, err := params.EmitJSON(bid); done {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "ID\t%d\n", bid.ID)
			fmt.Fprintf(tw, "Task\t%d\n", bid.TaskID)
			fmt.Fprintf(tw, "Agent\t%s\n", bid.Agent)
			fmt.Fprintf(tw, "Amount\t%d\n", bid.Amount)
			fmt.Fprintf(tw, "Status\t%s\n", bid.Status)
			if bid.Message != "" {
				fmt.Fprintf(tw, "Message\t%s\n", bid.Message)
			}
			return tw.Flush()
		},
	}
}

func bidListCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
	}

	return &cli.Command{
		Name:    "list",
		Summary: "List bids on a task",
		Usage:   "taskvault bid list <task-id>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(args []string) error {
			taskID, err := parseTaskID(args)
			if err != nil {
				return err
			}
			var response struct {
				Bids []ledger.Bid `cbor:"bids" json:"bids"`
			}
			if err := params.call("bid-list", map[string]any{"task_id": taskID}, &response); err != nil {
				return err
			}
			if done, err := params.EmitJSON(response.Bids); done {
				return err
			}
			if len(response.Bids) == 0 {
				fmt.Fprintln(os.Stderr, "No bids.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "ID\tAGENT\tAMOUNT\tSTATUS\tMESSAGE\n")
			for _, bid := range response.Bids {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", bid.ID, bid.Agent, bid.Amount, bid.Status, bid.Message)
			}
			return tw.Flush()
		},
	}
}
