// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/taskvault/taskvault/cmd/taskvault/cli"
)

func accountCommand() *cli.Command {
	return &cli.Command{
		Name:    "account",
		Summary: "Account commands",
		Description: `Inspect and fund external accounts.

Accounts hold the value that escrow deposits draw from. Crediting an
account is a development convenience of the in-process backend; a
production deployment funds accounts out of band.`,
		Subcommands: []*cli.Command{
			accountCreditCommand(),
			accountBalanceCommand(),
		},
	}
}

// balanceResponse is the shared shape of account-credit and
// account-balance responses.
type balanceResponse struct {
	Balance int64 `cbor:"balance" json:"balance"`
}

func accountCreditCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		Actor  string `flag:"actor" desc:"account to credit"`
		Amount int64  `flag:"amount" desc:"credit amount in base units"`
	}

	return &cli.Command{
		Name:    "credit",
		Summary: "Credit an account",
		Usage:   "taskvault account credit --actor <actor> --amount <amount>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("credit", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			var response balanceResponse
			err := params.call("account-credit", map[string]any{
				"actor":  params.Actor,
				"amount": params.Amount,
			}, &response)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(response); done {
				return err
			}
			fmt.Printf("%s now holds %d\n", params.Actor, response.Balance)
			return nil
		},
	}
}

func accountBalanceCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		serviceParams
		Actor string `flag:"actor" desc:"account to inspect"`
	}

	return &cli.Command{
		Name:    "balance",
		Summary: "Show an account balance",
		Usage:   "taskvault account balance --actor <actor>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("balance", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			var response balanceResponse
			if err := params.call("account-balance", map[string]any{"actor": params.Actor}, &response); err != nil {
				return err
			}
			if done, err := params.EmitJSON(response); done {
				return err
			}
			fmt.Printf("%d\n", response.Balance)
			return nil
		},
	}
}
