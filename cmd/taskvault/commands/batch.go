// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/taskvault/taskvault/cmd/taskvault/cli"
	"github.com/taskvault/taskvault/lib/service"
)

// batchResult is the per-request outcome reported by the batch
// command.
type batchResult struct {
	Action string          `json:"action"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func batchCommand() *cli.Command {
	var params struct {
		serviceParams
		Continue bool `flag:"continue" desc:"keep going after a failed request"`
	}

	return &cli.Command{
		Name:    "batch",
		Summary: "Run a batch of requests from a JSONC file",
		Description: `Send a sequence of ledger requests from a file.

The file is JSON with comments (JSONC): an array of request objects,
each carrying an "action" field plus that action's parameters. The
requests run in order; by default the batch stops at the first
failure. Results are printed as a JSON array.

Example file:

    [
      // fund the creator, then post and fund a task
      {"action": "account-credit", "actor": "creator/alice", "amount": 100},
      {"action": "task-create", "creator": "creator/alice",
       "title": "index the archive", "reward": 50,
       "deadline": "2026-04-01T00:00:00Z"},
      {"action": "escrow-deposit", "task_id": 1,
       "caller": "creator/alice", "amount": 50},
    ]`,
		Usage: "taskvault batch <file.jsonc> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("batch", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one batch file argument")
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading batch file: %w", err)
			}
			requests, err := parseBatch(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			results, runErr := runBatch(&params.serviceParams, requests, params.Continue)
			if err := cli.WriteJSON(results); err != nil {
				return err
			}
			if runErr != nil {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

// batchRequest is one decoded entry of a batch file: the action name
// plus its remaining fields.
type batchRequest struct {
	Action string
	Fields map[string]any
}

// parseBatch decodes a JSONC batch file into its requests. Every
// entry must carry a non-empty "action" string.
func parseBatch(data []byte) ([]batchRequest, error) {
	var raw []map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("parsing batch file: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("batch file contains no requests")
	}

	requests := make([]batchRequest, 0, len(raw))
	for i, entry := range raw {
		action, ok := entry["action"].(string)
		if !ok || action == "" {
			return nil, fmt.Errorf("request %d: missing \"action\" field", i+1)
		}
		delete(entry, "action")
		requests = append(requests, batchRequest{Action: action, Fields: entry})
	}
	return requests, nil
}

// runBatch executes the requests in order. With keepGoing false it
// stops after the first failure; either way every attempted request
// gets a result entry. The returned error reports whether any request
// failed.
func runBatch(conn *serviceParams, requests []batchRequest, keepGoing bool) ([]batchResult, error) {
	results := make([]batchResult, 0, len(requests))
	var failed bool

	for _, request := range requests {
		var data map[string]any
		err := conn.call(request.Action, request.Fields, &data)

		result := batchResult{Action: request.Action, OK: err == nil}
		if err != nil {
			failed = true
			result.Error = err.Error()
			var callErr *service.CallError
			if errors.As(err, &callErr) {
				result.Code = callErr.Code
				result.Error = callErr.Message
			}
		} else if data != nil {
			encoded, marshalErr := json.Marshal(data)
			if marshalErr == nil {
				result.Data = encoded
			}
		}
		results = append(results, result)

		if err != nil && !keepGoing {
			break
		}
	}

	if failed {
		return results, fmt.Errorf("batch had failures")
	}
	return results, nil
}
