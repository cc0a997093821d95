// Package audit implements the broker's hash-chained, tamper-evident
// audit log: sequenced records, a companion state file, and size-based
// rotation with a continuity anchor (spec §4.6, §8).
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Mindburn-Labs/helm-broker/internal/canonical"
	"github.com/gowebpki/jcs"
)

// GenesisHash is the sentinel last_hash before any record has been
// appended. Spelled out with the algorithm name per DESIGN.md's Open
// Question resolution: this chain is SHA-256, never FNV-1a.
const GenesisHash = "genesis_sha256"

// DefaultRotateBytes is the default log-size rotation threshold (5 MiB).
// Zero disables rotation.
const DefaultRotateBytes int64 = 5 * 1024 * 1024

// RecordTypeOutcome and RecordTypeRotationAnchor are the two record
// kinds the chain carries (spec §3, §6).
const (
	RecordTypeOutcome        = "action_outcome"
	RecordTypeRotationAnchor = "rotation_anchor"
)

// State is the small, persisted chain cursor.
type State struct {
	Seq      uint64 `json:"seq"`
	LastHash string `json:"last_hash"`
}

// InitialState returns the state a brand-new chain starts from.
func InitialState() State {
	return State{Seq: 0, LastHash: GenesisHash}
}

// Clock lets tests control time.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Chain is the process-wide, mutex-serialized audit log.
//
// Access to in-memory state and the on-disk log/state files is
// serialized through a single mutex, matching spec §5's "single mutex
// across load, rotation check, append, and state persist".
type Chain struct {
	mu          sync.Mutex
	logPath     string
	statePath   string
	rotateBytes int64
	state       State
	clock       Clock
}

// Open loads (or initializes) a chain rooted at logPath/statePath.
func Open(logPath, statePath string, rotateBytes int64, clock Clock) (*Chain, error) {
	if clock == nil {
		clock = wallClock{}
	}
	if rotateBytes < 0 {
		rotateBytes = DefaultRotateBytes
	}
	st, err := LoadState(statePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create log dir: %w", err)
	}
	return &Chain{
		logPath:     logPath,
		statePath:   statePath,
		rotateBytes: rotateBytes,
		state:       st,
		clock:       clock,
	}, nil
}

// LoadState reads the companion state file, or returns InitialState on
// any failure (missing file, corrupt JSON) per spec §4.6.
func LoadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return InitialState(), nil
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return InitialState(), nil
	}
	if st.LastHash == "" {
		return InitialState(), nil
	}
	return st, nil
}

// State returns a copy of the current in-memory chain cursor.
func (c *Chain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Append computes the next record for event, appends it to the log, and
// persists updated state. event must be a JSON-marshalable map; it must
// not already contain seq/prev_hash/chain_hash — those are injected here.
func (c *Chain) Append(event map[string]interface{}) (map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.maybeRotateLocked(); err != nil {
		// Rotation failures are logged here (internal errors are
		// best-effort per spec §7); the append still proceeds.
		slog.Warn("audit rotation failed", "error", err)
	}

	record, err := c.appendLocked(event)
	if err != nil {
		return nil, err
	}

	// State persistence is best-effort: its failure must never unwind
	// the append that already landed on disk (spec §4.6).
	_ = c.persistStateLocked()

	return record, nil
}

func (c *Chain) appendLocked(event map[string]interface{}) (map[string]interface{}, error) {
	nextSeq := c.state.Seq + 1
	if nextSeq < c.state.Seq {
		nextSeq = c.state.Seq // saturate rather than wrap
	}

	rec := make(map[string]interface{}, len(event)+3)
	for k, v := range event {
		rec[k] = v
	}
	rec["seq"] = nextSeq
	rec["prev_hash"] = c.state.LastHash

	serialised, err := canonical.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("audit: canonicalize record: %w", err)
	}

	hash := ComputeChainHash(nextSeq, c.state.LastHash, serialised)
	rec["chain_hash"] = hash

	line, err := canonical.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("audit: canonicalize final record: %w", err)
	}

	f, err := os.OpenFile(c.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("audit: write log: %w", err)
	}

	c.state.Seq = nextSeq
	c.state.LastHash = hash

	return rec, nil
}

// ComputeChainHash is the pure function spec §8 calls out for
// determinism testing: SHA256(seq || "|" || prev_hash || "|" ||
// serialised_event), hex-encoded.
func ComputeChainHash(seq uint64, prevHash string, serialisedEvent []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|", seq, prevHash)
	h.Write(serialisedEvent)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Chain) persistStateLocked() error {
	// gowebpki/jcs canonicalizes the small state blob independently of
	// internal/canonical — see DESIGN.md's canonicalization entry.
	raw, err := json.Marshal(c.state)
	if err != nil {
		return err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		canon = raw
	}

	tmp := c.statePath + ".tmp"
	if err := os.WriteFile(tmp, canon, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, c.statePath)
}

// maybeRotateLocked renames the current log to a timestamped archive
// once it reaches rotateBytes, then writes a rotation_anchor record as
// the first line of the new file (spec §4.6, §8 rotation continuity).
func (c *Chain) maybeRotateLocked() error {
	if c.rotateBytes == 0 {
		return nil
	}
	info, err := os.Stat(c.logPath)
	if err != nil {
		return nil // nothing to rotate yet
	}
	if info.Size() < c.rotateBytes {
		return nil
	}

	archived := fmt.Sprintf("%s.%d.jsonl", c.logPath, c.clock.Now().Unix())
	if err := os.Rename(c.logPath, archived); err != nil {
		return fmt.Errorf("audit: rotate rename: %w", err)
	}

	anchorEvent := map[string]interface{}{
		"ts":            c.clock.Now().UTC().Format(time.RFC3339Nano),
		"type":          RecordTypeRotationAnchor,
		"rotated_file":  filepath.Base(archived),
	}
	if _, err := c.appendLocked(anchorEvent); err != nil {
		return fmt.Errorf("audit: rotate anchor: %w", err)
	}
	return nil
}

// AppendOutcome is the single call site every terminal pipeline outcome
// goes through (spec §4.6: "every terminal pipeline outcome ... yields
// exactly one action_outcome record").
func (c *Chain) AppendOutcome(action, status, message string, requestVersion int, hasConfirmationID bool, payload string) (map[string]interface{}, error) {
	event := map[string]interface{}{
		"ts":                  c.clock.Now().UTC().Format(time.RFC3339Nano),
		"type":                RecordTypeOutcome,
		"action":              action,
		"status":              status,
		"message":             message,
		"request_version":     requestVersion,
		"has_confirmation_id": hasConfirmationID,
		"payload_len":         len(payload),
		"payload_hash":        HashPayload(payload),
	}
	return c.Append(event)
}

// HashPayload fingerprints a payload without ever logging it verbatim
// (spec §6: "the payload itself is never logged").
func HashPayload(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
