// Package agent is the remote runner: it registers with the server, pulls its assignments,
// runs them locally and reports results back.
package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const StateFileName = "state.yaml"

// State is the agent's persisted identity
type State struct {
	UUID      string    `yaml:"uuid"`
	Name      string    `yaml:"name,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
}

func StatePath(dir string) string {
	return filepath.Join(dir, StateFileName)
}

// LoadOrCreateState reads the identity from dir, generating and saving a new one on first run
func LoadOrCreateState(dir string) (State, error) {
	state, err := LoadState(dir)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return state, err
	}

	state = State{UUID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	if err := SaveState(dir, state); err != nil {
		return state, err
	}
	return state, nil
}

func LoadState(dir string) (State, error) {
	var state State
	path := StatePath(dir)

	data, err := os.ReadFile(path)
	if err != nil {
		return state, fmt.Errorf("read state file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parse state file %q: %w", path, err)
	}

	if _, err := uuid.Parse(state.UUID); err != nil {
		return state, fmt.Errorf("state file %q has invalid uuid: %w", path, err)
	}

	return state, nil
}

func SaveState(dir string, state State) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ensure state dir %q: %w", dir, err)
	}

	path := StatePath(dir)
	data, err := yaml.Marshal(&state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp state file %q: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit state file %q: %w", path, err)
	}

	return nil
}
