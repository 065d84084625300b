// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventlog persists the settlement event stream. The journal
// is the durability story of the whole service: the in-memory ledger
// is rebuilt on startup by replaying every journaled event through the
// mirror schema, so a record that cannot be read back is a record that
// never happened.
//
// On-disk format: a fixed magic header, then one frame per event. A
// frame is a 4-byte big-endian length followed by the deterministic
// CBOR encoding of the record envelope, which carries the sequence
// number, the compression tag, and a BLAKE3 checksum of the raw event
// payload. Checksums are verified on replay; a mismatch stops the
// replay at the last good record.
package eventlog

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/taskvault/taskvault/lib/codec"
	"github.com/taskvault/taskvault/lib/ledger"
)

// magic identifies a journal file. Version bumps change the last byte.
var magic = []byte("TVLOG\x00\x00\x01")

// maxFrameSize bounds a single record frame. A frame larger than this
// on replay means corruption, not a huge event.
const maxFrameSize = 1 << 20

// record is the journal envelope around one event.
type record struct {
	// Seq is the journal sequence number, starting at 1.
	Seq uint64 `cbor:"1,keyasint"`

	// Tag is the payload compression algorithm.
	Tag CompressionTag `cbor:"2,keyasint"`

	// RawSize is the uncompressed payload length.
	RawSize int `cbor:"3,keyasint"`

	// Payload is the (possibly compressed) CBOR encoding of the
	// event.
	Payload []byte `cbor:"4,keyasint"`

	// Checksum is the BLAKE3-256 digest of the raw payload.
	Checksum []byte `cbor:"5,keyasint"`
}

// Subscriber receives each event after it is durably appended.
// Callbacks run on the appending goroutine; slow subscribers slow the
// engine.
type Subscriber func(ledger.Event)

// Journal is an append-only event log. It implements the settlement
// engine's EventSink. Safe for concurrent use, though in practice the
// engine serializes all appends.
type Journal struct {
	logger *slog.Logger
	tag    CompressionTag

	mu          sync.Mutex
	file        *os.File
	nextSeq     uint64
	subscribers []Subscriber

	// failed is set on the first write error. The journal refuses
	// further appends so the operator sees one clear failure instead
	// of a silently gapped log.
	failed error
}

// Options configures a journal.
type Options struct {
	// Compression is the tag to attempt per record. Incompressible
	// payloads fall back to none. Default none.
	Compression CompressionTag

	// Logger receives append failures and replay diagnostics.
	Logger *slog.Logger
}

// Open opens or creates the journal at path. An existing journal is
// scanned to find the next sequence number; its events are not
// returned here — use [Replay] to rebuild state first.
func Open(path string, options Options) (*Journal, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	lastSeq, err := scan(path, nil)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if lastSeq == 0 {
		// Fresh file: stamp the magic header. scan verified any
		// existing file already carries it.
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("stat journal: %w", err)
		}
		if info.Size() == 0 {
			if _, err := file.Write(magic); err != nil {
				file.Close()
				return nil, fmt.Errorf("writing journal header: %w", err)
			}
		}
	}

	return &Journal{
		logger:  logger,
		tag:     options.Compression,
		file:    file,
		nextSeq: lastSeq + 1,
	}, nil
}

// Close syncs and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	syncErr := j.file.Sync()
	closeErr := j.file.Close()
	j.file = nil
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// Subscribe registers a callback invoked for every event appended from
// now on. Used by the mirror to stay current without polling.
func (j *Journal) Subscribe(subscriber Subscriber) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.subscribers = append(j.subscribers, subscriber)
}

// NextSeq returns the sequence number the next append will receive.
func (j *Journal) NextSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextSeq
}

// Err returns the first append failure, if any.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.failed
}

// Record appends the event, assigning its sequence number, and fans
// it out to subscribers. It satisfies the engine's EventSink
// interface, which has no error return: a write failure is logged,
// latches the journal into a failed state, and suppresses fanout so
// downstream consumers never see an event that was not persisted.
// The daemon checks Err after each operation and refuses further
// mutations on a failed journal.
func (j *Journal) Record(event ledger.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.failed != nil {
		return
	}
	if err := j.appendLocked(&event); err != nil {
		j.failed = err
		j.logger.Error("journal append failed", "seq", event.Seq, "error", err)
		return
	}
	for _, subscriber := range j.subscribers {
		subscriber(event)
	}
}

func (j *Journal) appendLocked(event *ledger.Event) error {
	if j.file == nil {
		return fmt.Errorf("journal is closed")
	}
	event.Seq = j.nextSeq

	payload, err := codec.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	checksum := blake3.Sum256(payload)

	tag := j.tag
	compressed, err := compress(payload, tag)
	if err != nil {
		if err != errIncompressible {
			return err
		}
		tag = CompressionNone
		compressed = payload
	}

	frame, err := codec.Marshal(&record{
		Seq:      event.Seq,
		Tag:      tag,
		RawSize:  len(payload),
		Payload:  compressed,
		Checksum: checksum[:],
	})
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(frame)))
	if _, err := j.file.Write(length[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := j.file.Write(frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("syncing journal: %w", err)
	}

	j.nextSeq++
	return nil
}

// Replay reads every event in the journal at path in order, verifying
// checksums, and passes each to fn. A missing file replays nothing.
// Stops with an error at the first corrupt record.
func Replay(path string, fn func(ledger.Event) error) error {
	_, err := scan(path, fn)
	return err
}

// scan walks the journal, returning the last sequence number seen.
// fn, if non-nil, receives each decoded event.
func scan(path string, fn func(ledger.Event) error) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading journal: %w", err)
	}
	if len(data) == 0 {
		return 0, nil
	}
	if len(data) < len(magic) || string(data[:len(magic)]) != string(magic) {
		return 0, fmt.Errorf("journal %s: bad magic header", path)
	}
	data = data[len(magic):]

	var lastSeq uint64
	for offset := 0; len(data) > 0; {
		if len(data) < 4 {
			return 0, fmt.Errorf("journal: truncated frame length at offset %d", offset)
		}
		frameLength := int(binary.BigEndian.Uint32(data))
		if frameLength == 0 || frameLength > maxFrameSize {
			return 0, fmt.Errorf("journal: implausible frame length %d at offset %d", frameLength, offset)
		}
		if len(data) < 4+frameLength {
			return 0, fmt.Errorf("journal: truncated frame at offset %d", offset)
		}

		var rec record
		if err := codec.Unmarshal(data[4:4+frameLength], &rec); err != nil {
			return 0, fmt.Errorf("journal: decoding record at offset %d: %w", offset, err)
		}
		if rec.Seq != lastSeq+1 {
			return 0, fmt.Errorf("journal: sequence gap: record %d follows %d", rec.Seq, lastSeq)
		}

		payload, err := decompress(rec.Payload, rec.Tag, rec.RawSize)
		if err != nil {
			return 0, fmt.Errorf("journal: record %d: %w", rec.Seq, err)
		}
		checksum := blake3.Sum256(payload)
		if len(rec.Checksum) != len(checksum) || string(rec.Checksum) != string(checksum[:]) {
			return 0, fmt.Errorf("journal: record %d: checksum mismatch", rec.Seq)
		}

		if fn != nil {
			var event ledger.Event
			if err := codec.Unmarshal(payload, &event); err != nil {
				return 0, fmt.Errorf("journal: record %d: decoding event: %w", rec.Seq, err)
			}
			if err := fn(event); err != nil {
				return 0, err
			}
		}

		lastSeq = rec.Seq
		data = data[4+frameLength:]
		offset += 4 + frameLength
	}
	return lastSeq, nil
}
