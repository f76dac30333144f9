package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// HandoffFilename is written to the data directory so the UI layer can find
// the IPC server and its token
const HandoffFilename = "ipc.json"

type handoff struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
	PID   int    `json:"pid"`
}

func handoffPath(dataDir string) string {
	return filepath.Join(dataDir, HandoffFilename)
}

// writeHandoff replaces the handoff file atomically. The token is a
// credential, so the file is owner-only.
func writeHandoff(dataDir string, h handoff) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}

	tmp := handoffPath(dataDir) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, handoffPath(dataDir)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to install handoff file: %w", err)
	}
	return nil
}

func readHandoff(dataDir string) (handoff, error) {
	var h handoff
	data, err := os.ReadFile(handoffPath(dataDir))
	if err != nil {
		return h, err
	}
	err = json.Unmarshal(data, &h)
	return h, err
}

func removeHandoff(dataDir string) {
	_ = os.Remove(handoffPath(dataDir))
}
