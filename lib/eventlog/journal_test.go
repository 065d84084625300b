// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/taskvault/taskvault/lib/identity"
	"github.com/taskvault/taskvault/lib/ledger"
)

var journalActor = identity.MustParse("creator/alice")

func testEvent(kind ledger.EventKind, taskID uint64) ledger.Event {
	return ledger.Event{
		Kind:       kind,
		TaskID:     taskID,
		TaskStatus: ledger.TaskOpen,
		Actor:      journalActor,
		Amount:     50,
		Timestamp:  "2026-03-01T12:00:00Z",
	}
}

func TestAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	journal, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	journal.Record(testEvent(ledger.EventTaskCreated, 1))
	journal.Record(testEvent(ledger.EventEscrowDeposited, 1))
	journal.Record(testEvent(ledger.EventTaskCreated, 2))
	if err := journal.Err(); err != nil {
		t.Fatalf("journal failed: %v", err)
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var replayed []ledger.Event
	if err := Replay(path, func(event ledger.Event) error {
		replayed = append(replayed, event)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(replayed) != 3 {
		t.Fatalf("replayed %d events, want 3", len(replayed))
	}
	for i, event := range replayed {
		if event.Seq != uint64(i+1) {
			t.Errorf("event %d: seq %d, want %d", i, event.Seq, i+1)
		}
	}
	if replayed[1].Kind != ledger.EventEscrowDeposited {
		t.Errorf("event 1 kind: %s", replayed[1].Kind)
	}
}

func TestReopenContinuesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	journal, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	journal.Record(testEvent(ledger.EventTaskCreated, 1))
	journal.Record(testEvent(ledger.EventEscrowDeposited, 1))
	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if got := reopened.NextSeq(); got != 3 {
		t.Errorf("NextSeq after reopen: got %d, want 3", got)
	}
	reopened.Record(testEvent(ledger.EventTaskCreated, 2))

	var count int
	var lastSeq uint64
	if err := Replay(path, func(event ledger.Event) error {
		count++
		lastSeq = event.Seq
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if count != 3 || lastSeq != 3 {
		t.Errorf("after reopen: count=%d lastSeq=%d, want 3/3", count, lastSeq)
	}
}

func TestReplayMissingFileIsEmpty(t *testing.T) {
	err := Replay(filepath.Join(t.TempDir(), "absent.log"), func(ledger.Event) error {
		t.Error("callback invoked for missing journal")
		return nil
	})
	if err != nil {
		t.Errorf("Replay of missing file: %v", err)
	}
}

func TestReplayDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	journal, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	journal.Record(testEvent(ledger.EventTaskCreated, 1))
	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// Flip a byte inside the record payload, past the magic header
	// and frame length.
	data[len(data)-5] ^= 0xFF
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	err = Replay(path, func(ledger.Event) error { return nil })
	if err == nil {
		t.Fatal("Replay accepted a corrupted journal")
	}
}

func TestReplayRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	if err := os.WriteFile(path, []byte("not a journal"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	err := Replay(path, func(ledger.Event) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "magic") {
		t.Errorf("bad magic: got %v", err)
	}
}

func TestSubscriberFanout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	journal, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer journal.Close()

	var seen []uint64
	journal.Subscribe(func(event ledger.Event) {
		seen = append(seen, event.Seq)
	})

	journal.Record(testEvent(ledger.EventTaskCreated, 1))
	journal.Record(testEvent(ledger.EventEscrowDeposited, 1))

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("subscriber saw %v, want [1 2]", seen)
	}
}

func TestCompressedJournalRoundTrip(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "events.log")
			journal, err := Open(path, Options{Compression: tag})
			if err != nil {
				t.Fatalf("Open: %v", err)
			}

			// A long repetitive digest compresses; tiny events fall
			// back to none. Both must replay identically.
			event := testEvent(ledger.EventTaskCompleted, 1)
			event.ResultDigest = strings.Repeat("ab", 512)
			journal.Record(event)
			journal.Record(testEvent(ledger.EventTaskCreated, 2))
			if err := journal.Err(); err != nil {
				t.Fatalf("journal failed: %v", err)
			}
			if err := journal.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			var replayed []ledger.Event
			if err := Replay(path, func(e ledger.Event) error {
				replayed = append(replayed, e)
				return nil
			}); err != nil {
				t.Fatalf("Replay: %v", err)
			}
			if len(replayed) != 2 {
				t.Fatalf("replayed %d events, want 2", len(replayed))
			}
			if replayed[0].ResultDigest != event.ResultDigest {
				t.Error("compressed payload did not round-trip")
			}
		})
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		tag, err := ParseCompressionTag(name)
		if err != nil {
			t.Errorf("ParseCompressionTag(%q): %v", name, err)
		}
		if tag.String() != name {
			t.Errorf("round trip: got %q, want %q", tag.String(), name)
		}
	}
	if _, err := ParseCompressionTag("gzip"); err == nil {
		t.Error("ParseCompressionTag accepted gzip")
	}
}
