// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AccelByte/extend-table-manager/pkg/constants"
	"github.com/AccelByte/extend-table-manager/pkg/utils"
)

// QueueEntry is a match waiting to be admitted.
type QueueEntry struct {
	MatchID string `yaml:"match_id"`
	Options string `yaml:"options,omitempty"`
}

// RunningEntry is an admitted match and what was spawned for it.
type RunningEntry struct {
	MatchID     string    `yaml:"match_id"`
	DealerPID   int       `yaml:"dealer_pid"`
	PortNumbers []int     `yaml:"port_numbers,flow"`
	PlayerPIDs  []int     `yaml:"player_pids,flow"`
	StartedAt   time.Time `yaml:"started_at"`
}

type QueueState struct {
	Waiting []QueueEntry
	Running []RunningEntry
}

// QueueStateFile keeps one directory per game type holding the waiting and
// running lists, so a restarted table manager knows what it was doing.
type QueueStateFile struct {
	Directory string
}

func (f QueueStateFile) dir(gameType string) string {
	return filepath.Join(f.Directory, utils.SanitizeToken(gameType))
}

func (f QueueStateFile) Load(gameType string) (QueueState, error) {
	var state QueueState
	if err := readYAML(filepath.Join(f.dir(gameType), constants.QueueStateEnqueuedFile), &state.Waiting); err != nil {
		return QueueState{}, err
	}
	if err := readYAML(filepath.Join(f.dir(gameType), constants.QueueStateRunningFile), &state.Running); err != nil {
		return QueueState{}, err
	}

	return state, nil
}

func (f QueueStateFile) Save(gameType string, state QueueState) error {
	dir := f.dir(gameType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeYAML(filepath.Join(dir, constants.QueueStateEnqueuedFile), state.Waiting); err != nil {
		return err
	}

	return writeYAML(filepath.Join(dir, constants.QueueStateRunningFile), state.Running)
}

func readYAML(path string, out any) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	return nil
}

// writeYAML replaces path atomically.
func writeYAML(path string, value any) error {
	raw, err := yaml.Marshal(value)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
