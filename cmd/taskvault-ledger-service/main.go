// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/taskvault/taskvault/lib/authority"
	"github.com/taskvault/taskvault/lib/clock"
	"github.com/taskvault/taskvault/lib/config"
	"github.com/taskvault/taskvault/lib/eventlog"
	"github.com/taskvault/taskvault/lib/identity"
	"github.com/taskvault/taskvault/lib/ledger"
	"github.com/taskvault/taskvault/lib/mirror"
	"github.com/taskvault/taskvault/lib/service"
	"github.com/taskvault/taskvault/lib/settlement"
	"github.com/taskvault/taskvault/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to taskvault.yaml (default: $TASKVAULT_CONFIG)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("taskvault-ledger-service %s\n", version.Current())
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var authorityActor identity.Actor
	if cfg.Authority.Actor != "" {
		authorityActor, err = identity.Parse(cfg.Authority.Actor)
		if err != nil {
			return fmt.Errorf("invalid authority actor: %w", err)
		}
	}

	// The arbitration keypair: the private half stays with the
	// operator tooling for minting; the daemon only verifies.
	publicKey, _, generated, err := authority.LoadOrGenerateKeypair(cfg.Paths.Keys)
	if err != nil {
		return fmt.Errorf("loading arbitration keypair: %w", err)
	}
	if generated {
		logger.Info("generated new arbitration keypair", "dir", cfg.Paths.Keys)
	}

	// Rebuild the ledger from the journal before opening it for
	// appends. The replay is the durability story: everything the
	// previous process committed is in the journal.
	led, replayed, err := restoreLedger(cfg.Ledger.JournalPath)
	if err != nil {
		return fmt.Errorf("restoring ledger from journal: %w", err)
	}
	if replayed > 0 {
		logger.Info("ledger restored from journal", "events", replayed)
	}

	compression, err := eventlog.ParseCompressionTag(cfg.Ledger.Compression)
	if err != nil {
		return fmt.Errorf("journal compression: %w", err)
	}
	journal, err := eventlog.Open(cfg.Ledger.JournalPath, eventlog.Options{
		Compression: compression,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer journal.Close()

	mirrorDB, err := mirror.Open(mirror.Config{
		Path:     cfg.Mirror.DatabasePath,
		PoolSize: cfg.Mirror.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening mirror: %w", err)
	}
	defer mirrorDB.Close()

	// Catch the mirror up with the journal. A fresh or lagging mirror
	// replays from the start; RebuildOnStart forces the full wipe.
	if cfg.Mirror.RebuildOnStart {
		if err := mirrorDB.Rebuild(ctx, cfg.Ledger.JournalPath); err != nil {
			return fmt.Errorf("rebuilding mirror: %w", err)
		}
	} else if err := catchUpMirror(ctx, mirrorDB, cfg.Ledger.JournalPath, logger); err != nil {
		return fmt.Errorf("mirror catch-up: %w", err)
	}

	// Live events flow into the mirror as they are journaled. A mirror
	// failure only logs: the journal remains authoritative and the
	// mirror can be rebuilt.
	journal.Subscribe(func(event ledger.Event) {
		if err := mirrorDB.Apply(context.Background(), event); err != nil {
			logger.Error("mirror apply failed", "seq", event.Seq, "kind", event.Kind, "error", err)
		}
	})

	clk := clock.Real()
	accounts := NewAccounts()
	engine, err := settlement.New(settlement.Config{
		Ledger:     led,
		Clock:      clk,
		Transferor: accounts,
		Sink:       journal,
		Authority:  authorityActor,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("constructing settlement engine: %w", err)
	}

	ledgerService := &LedgerService{
		engine:     engine,
		journal:    journal,
		mirror:     mirrorDB,
		accounts:   accounts,
		clock:      clk,
		signingKey: publicKey,
		startedAt:  clk.Now(),
		logger:     logger,
	}

	socketServer := service.NewSocketServer(cfg.Ledger.SocketPath, logger)
	ledgerService.registerActions(socketServer)

	logger.Info("ledger service running",
		"socket", cfg.Ledger.SocketPath,
		"journal", cfg.Ledger.JournalPath,
		"journal_seq", journal.NextSeq()-1,
		"authority", authorityActor,
	)

	return socketServer.Serve(ctx)
}

// catchUpMirror replays the journal into the mirror. Apply skips
// everything at or below the mirror's high-water mark, so this is a
// no-op for a current mirror and an incremental catch-up for a
// lagging one.
func catchUpMirror(ctx context.Context, m *mirror.Mirror, journalPath string, logger *slog.Logger) error {
	before, err := m.LastSeq(ctx)
	if err != nil {
		return err
	}
	err = eventlog.Replay(journalPath, func(event ledger.Event) error {
		return m.Apply(ctx, event)
	})
	if err != nil {
		return err
	}
	after, err := m.LastSeq(ctx)
	if err != nil {
		return err
	}
	if after > before {
		logger.Info("mirror caught up", "from", before, "to", after)
	}
	return nil
}
