package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Mindburn-Labs/helm-broker/internal/registry"
	"github.com/Mindburn-Labs/helm-broker/internal/wire"
)

type memoryNote struct {
	TS   int64  `json:"ts"`
	Note string `json:"note"`
}

// RegisterMemory wires the remember / read_context actions, the one
// handler family that does its own work instead of calling an external
// tool through the Runner: it
// is plain local file I/O, not an OS-privileged side effect (grounded
// on handlers/memory.rs).
func RegisterMemory(r *registry.Registry, d Deps) {
	r.Register("remember", func(ctx context.Context, req wire.Request) wire.Response {
		if req.Payload == "" {
			return fail(req.Name, "missing memory text")
		}
		if err := appendMemory(d.MemoryDir, req.Payload); err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, "I'll remember that.")
	})

	r.Register("read_context", func(ctx context.Context, req wire.Request) wire.Response {
		notes, err := readRecentNotes(d.MemoryDir, 5)
		if err != nil || len(notes) == 0 {
			return ok(req.Name, "No saved context yet.")
		}
		return ok(req.Name, "Recent context: "+strings.Join(notes, " | "))
	})
}

func notesPath(dir string) string {
	if dir == "" {
		dir = "/var/lib/helm-broker/memory"
	}
	return filepath.Join(dir, "notes.jsonl")
}

func appendMemory(dir, note string) error {
	path := notesPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("memory dir error: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("memory write error: %w", err)
	}
	defer f.Close()

	rec := memoryNote{TS: time.Now().Unix(), Note: note}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

func readRecentNotes(dir string, limit int) ([]string, error) {
	path := notesPath(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	var notes []string
	for i := len(lines) - 1; i >= 0 && len(notes) < limit; i-- {
		var rec memoryNote
		if err := json.Unmarshal([]byte(lines[i]), &rec); err == nil {
			notes = append(notes, rec.Note)
		}
	}
	// reverse back to chronological order
	for i, j := 0, len(notes)-1; i < j; i, j = i+1, j-1 {
		notes[i], notes[j] = notes[j], notes[i]
	}
	return notes, nil
}
