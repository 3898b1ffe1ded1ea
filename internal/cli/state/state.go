package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LastBuild remembers the most recent executable so it can be run again.
type LastBuild struct {
	Language   string          `json:"language"`
	SourceFile string          `json:"source_file"`
	BuiltAt    time.Time       `json:"built_at"`
	Executable json.RawMessage `json:"executable"`
}

// Empty reports whether no executable has been stored.
func (b LastBuild) Empty() bool {
	return len(b.Executable) == 0 || string(b.Executable) == "null"
}

func Load(path string) (LastBuild, error) {
	var st LastBuild
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("read build state failed: %w", err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("parse build state failed: %w", err)
	}
	return st, nil
}

func Save(path string, st LastBuild) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create build state dir failed: %w", err)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal build state failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write build state failed: %w", err)
	}
	return nil
}

func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove build state failed: %w", err)
	}
	return nil
}
