// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/taskvault/taskvault/cmd/taskvault/cli"
	"github.com/taskvault/taskvault/lib/ledger"
)

func taskCommand() *cli.Command {
	return &cli.Command{
		Name:    "task",
		Summary: "Task lifecycle commands",
		Description: `Create, inspect, and advance tasks on the settlement ledger.

A task starts open, moves to in_progress when a bid is accepted, to
completed when the assigned agent submits a result, and settles to
finalized when the creator approves (or a dispute is resolved).`,
		Subcommands: []*cli.Command{
			taskCreateCommand(),
			taskGetCommand(),
			taskListCommand(),
			taskCompleteCommand(),
			taskApproveCommand(),
			taskCancelCommand(),
		},
	}
}

// parseTaskID converts the single positional task-id argument.
func parseTaskID(args []string) (uint64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one task id argument")
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid task id %q", args[0])
	}
	return id, nil
}

func taskCreateCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		Creator     string `flag:"creator" desc:"posting identity (e.g. creator/alice)"`
		Title       string `flag:"title" desc:"short task summary"`
		Description string `flag:"description" desc:"full work statement"`
		Reward      int64  `flag:"reward" desc:"offered reward in base units"`
		Deadline    string `flag:"deadline" desc:"RFC 3339 deadline (informational)"`
		ExternalRef string `flag:"ref" desc:"external reference for mirror reconciliation"`
	}

	return &cli.Command{
		Name:    "create",
		Summary: "Post a new task",
		Usage:   "taskvault task create --creator <actor> --title <title> --reward <amount> --deadline <time> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("create", &params)
		},
		Examples: []cli.Example{
			{
				Description: "Post a 50-unit task due in April",
				Command:     `taskvault task create --creator creator/alice --title "index the archive" --reward 50 --deadline 2026-04-01T00:00:00Z`,
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if _, err := time.Parse(time.RFC3339, params.Deadline); err != nil {
				return fmt.Errorf("--deadline must be RFC 3339: %w", err)
			}

			var task ledger.Task
			err := params.call("task-create", map[string]any{
				"creator":      params.Creator,
				"title":        params.Title,
				"description":  params.Description,
				"reward":       params.Reward,
				"deadline":     params.Deadline,
				"external_ref": params.ExternalRef,
			}, &task)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(task); done {
				return err
			}
			fmt.Printf("task %d created (%s, reward %d)\n", task.ID, task.Status, task.Reward)
			return nil
		},
	}
}

func taskGetCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		ExternalRef string `flag:"ref" desc:"look up by external reference instead of id"`
	}

	return &cli.Command{
		Name:    "get",
		Summary: "Show one task",
		Usage:   "taskvault task get <task-id> | taskvault task get --ref <external-ref>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("get", &params)
		},
		Run: func(args []string) error {
			fields := map[string]any{}
			switch {
			case params.ExternalRef != "":
				if len(args) > 0 {
					return fmt.Errorf("--ref and a task id argument are mutually exclusive")
				}
				fields["external_ref"] = params.ExternalRef
			default:
				id, err := parseTaskID(args)
				if err != nil {
					return err
				}
				fields["task_id"] = id
			}

			var task ledger.Task
			if err := params.call("task-get", fields, &task); err != nil {
				return err
			}
			if done, err := params.EmitJSON(task); done {
				return err
			}
			printTask(task)
			return nil
		},
	}
}

func printTask(task ledger.Task) {
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "ID\t%d\n", task.ID)
	fmt.Fprintf(tw, "Title\t%s\n", task.Title)
	fmt.Fprintf(tw, "Status\t%s\n", task.Status)
	fmt.Fprintf(tw, "Creator\t%s\n", task.Creator)
	if !task.AssignedAgent.IsZero() {
		fmt.Fprintf(tw, "Agent\t%s\n", task.AssignedAgent)
	}
	fmt.Fprintf(tw, "Reward\t%d\n", task.Reward)
	fmt.Fprintf(tw, "Deadline\t%s\n", task.Deadline.Format(time.RFC3339))
	if task.ExternalRef != "" {
		fmt.Fprintf(tw, "Ref\t%s\n", task.ExternalRef)
	}
	tw.Flush()
}

func taskListCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		Status  string `flag:"status" desc:"filter by status (open, in_progress, completed, disputed, finalized, cancelled)"`
		Creator string `flag:"creator" desc:"filter by creator"`
		Agent   string `flag:"agent" desc:"filter by assigned agent"`
	}

	return &cli.Command{
		Name:    "list",
		Summary: "List tasks",
		Usage:   "taskvault task list [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Examples: []cli.Example{
			{
				Description: "All open tasks",
				Command:     "taskvault task list --status open",
			},
			{
				Description: "Everything assigned to one agent, as JSON",
				Command:     "taskvault task list --agent agent/bob --json",
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			var response struct {
				Tasks []ledger.Task `cbor:"tasks" json:"tasks"`
			}
			err := params.call("task-list", map[string]any{
				"status":         params.Status,
				"creator":        params.Creator,
				"assigned_agent": params.Agent,
			}, &response)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(response.Tasks); done {
				return err
			}
			if len(response.Tasks) == 0 {
				fmt.Fprintln(os.Stderr, "No matching tasks.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "ID\tSTATUS\tREWARD\tCREATOR\tAGENT\tTITLE\n")
			for _, task := range response.Tasks {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n",
					task.ID, task.Status, task.Reward, task.Creator, task.AssignedAgent, task.Title)
			}
			return tw.Flush()
		},
	}
}

func taskCompleteCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		Agent      string `flag:"agent" desc:"assigned agent submitting the result"`
		Result     string `flag:"result" desc:"result payload (hashed, not stored)"`
		ResultFile string `flag:"result-file" desc:"read the result payload from a file"`
	}

	return &cli.Command{
		Name:    "complete",
		Summary: "Submit a result for an in-progress task",
		Usage:   "taskvault task complete <task-id> --agent <actor> --result <payload>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("complete", &params)
		},
		Run: func(args []string) error {
			id, err := parseTaskID(args)
			if err != nil {
				return err
			}

			result := []byte(params.Result)
			if params.ResultFile != "" {
				if params.Result != "" {
					return fmt.Errorf("--result and --result-file are mutually exclusive")
				}
				result, err = os.ReadFile(params.ResultFile)
				if err != nil {
					return fmt.Errorf("reading result file: %w", err)
				}
			}

			var task ledger.Task
			err = params.call("task-complete", map[string]any{
				"task_id": id,
				"caller":  params.Agent,
				"result":  result,
			}, &task)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(task); done {
				return err
			}
			fmt.Printf("task %d completed, awaiting approval\n", task.ID)
			return nil
		},
	}
}

func taskApproveCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		Creator string `flag:"creator" desc:"task creator approving the result"`
	}

	return &cli.Command{
		Name:    "approve",
		Summary: "Approve a completed task and release escrow",
		Usage:   "taskvault task approve <task-id> --creator <actor>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("approve", &params)
		},
		Run: func(args []string) error {
			id, err := parseTaskID(args)
			if err != nil {
				return err
			}
			var task ledger.Task
			err = params.call("task-approve", map[string]any{
				"task_id": id,
				"caller":  params.Creator,
			}, &task)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(task); done {
				return err
			}
			fmt.Printf("task %d finalized, escrow released to %s\n", task.ID, task.AssignedAgent)
			return nil
		},
	}
}

func taskCancelCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		Creator string `flag:"creator" desc:"task creator cancelling the task"`
	}

	return &cli.Command{
		Name:    "cancel",
		Summary: "Cancel a task and refund its escrow",
		Usage:   "taskvault task cancel <task-id> --creator <actor>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("cancel", &params)
		},
		Run: func(args []string) error {
			id, err := parseTaskID(args)
			if err != nil {
				return err
			}
			var task ledger.Task
			err = params.call("task-cancel", map[string]any{
				"task_id": id,
				"caller":  params.Creator,
			}, &task)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(task); done {
				return err
			}
			fmt.Printf("task %d cancelled\n", task.ID)
			return nil
		},
	}
}
