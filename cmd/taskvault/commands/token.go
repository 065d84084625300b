// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/taskvault/taskvault/cmd/taskvault/cli"
	"github.com/taskvault/taskvault/lib/authority"
	"github.com/taskvault/taskvault/lib/config"
	"github.com/taskvault/taskvault/lib/identity"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:    "token",
		Summary: "Arbitration token commands",
		Description: `Mint and inspect arbitration tokens.

The ledger service verifies dispute resolutions against the signing
keypair in its keys directory. Minting requires the private half of
that keypair, so it runs on the operator's machine, not through the
socket API.`,
		Subcommands: []*cli.Command{
			tokenMintCommand(),
			tokenInspectCommand(),
		},
	}
}

// resolveKeyDir picks the signing key directory: the flag, or the
// loaded configuration's keys path.
func resolveKeyDir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if os.Getenv("TASKVAULT_CONFIG") != "" {
		cfg, err := config.Load()
		if err != nil {
			return "", fmt.Errorf("loading configuration: %w", err)
		}
		return cfg.Paths.Keys, nil
	}
	return config.Default().Paths.Keys, nil
}

func tokenMintCommand() *cli.Command {
	var params struct {
		KeyDir  string        `flag:"key-dir" desc:"signing keypair directory (default: from configuration)"`
		Subject string        `flag:"subject" desc:"actor the token authenticates (the arbitrator)"`
		Targets []string      `flag:"target" desc:"creator patterns the grant covers (e.g. creator/**)"`
		TTL     time.Duration `flag:"ttl" desc:"token lifetime" default:"1h"`
		Out     string        `flag:"out" desc:"output file for the token bytes"`
	}

	return &cli.Command{
		Name:    "mint",
		Summary: "Mint a dispute-resolution token",
		Usage:   "taskvault token mint --subject <actor> --target <pattern> --out <file> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("mint", &params)
		},
		Examples: []cli.Example{
			{
				Description: "Delegate dispute resolution over every creator for one hour",
				Command:     "taskvault token mint --subject authority/arbiter --target 'creator/**' --out arbiter.token",
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			subject, err := identity.Parse(params.Subject)
			if err != nil {
				return fmt.Errorf("--subject: %w", err)
			}
			if len(params.Targets) == 0 {
				return fmt.Errorf("--target is required (use 'creator/**' for all creators)")
			}
			if params.Out == "" {
				return fmt.Errorf("--out is required")
			}

			keyDir, err := resolveKeyDir(params.KeyDir)
			if err != nil {
				return err
			}
			_, privateKey, err := authority.LoadKeypair(keyDir)
			if err != nil {
				return fmt.Errorf("loading signing keypair from %s: %w", keyDir, err)
			}

			id, err := authority.NewTokenID()
			if err != nil {
				return err
			}
			now := time.Now()
			tokenBytes, err := authority.Mint(privateKey, &authority.Token{
				Subject:  subject,
				Audience: authority.Audience,
				Grants: []authority.Grant{
					{Actions: []string{"dispute/resolve"}, Targets: params.Targets},
				},
				ID:        id,
				IssuedAt:  now.Unix(),
				ExpiresAt: now.Add(params.TTL).Unix(),
			})
			if err != nil {
				return err
			}

			if err := os.WriteFile(params.Out, tokenBytes, 0600); err != nil {
				return fmt.Errorf("writing token: %w", err)
			}
			fmt.Printf("token %s minted for %s, expires %s\n",
				id, subject, now.Add(params.TTL).Format(time.RFC3339))
			return nil
		},
	}
}

func tokenInspectCommand() *cli.Command {
	var params struct {
		cli.JSONOutput
		KeyDir string `flag:"key-dir" desc:"signing keypair directory (default: from configuration)"`
	}

	return &cli.Command{
		Name:    "inspect",
		Summary: "Verify and display a token",
		Usage:   "taskvault token inspect <file> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("inspect", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one token file argument")
			}
			tokenBytes, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading token: %w", err)
			}

			keyDir, err := resolveKeyDir(params.KeyDir)
			if err != nil {
				return err
			}
			publicKey, _, err := authority.LoadKeypair(keyDir)
			if err != nil {
				return fmt.Errorf("loading keypair from %s: %w", keyDir, err)
			}

			token, err := authority.Verify(publicKey, tokenBytes)
			if err != nil {
				return fmt.Errorf("token is invalid: %w", err)
			}

			if done, err := params.EmitJSON(token); done {
				return err
			}
			fmt.Printf("ID        %s\n", token.ID)
			fmt.Printf("Subject   %s\n", token.Subject)
			fmt.Printf("Audience  %s\n", token.Audience)
			for _, grant := range token.Grants {
				fmt.Printf("Grant     %v on %v\n", grant.Actions, grant.Targets)
			}
			fmt.Printf("Issued    %s\n", time.Unix(token.IssuedAt, 0).UTC().Format(time.RFC3339))
			fmt.Printf("Expires   %s\n", time.Unix(token.ExpiresAt, 0).UTC().Format(time.RFC3339))
			return nil
		},
	}
}
