// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-table-manager/pkg/constants"
	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/metrics"
)

var (
	ErrSpawnTimeout = errors.New("process spawn timed out")
	// ErrUnkillable means a process survived SIGKILL. It is never ignored: a
	// leaked dealer keeps its ports and corrupts accounting for every match.
	ErrUnkillable = errors.New("process could not be killed")
)

// Command describes a process to spawn. When ReadBanner is set the first line
// the process writes to stdout is returned; the dealer reports its ports that way.
type Command struct {
	Kind       string
	Path       string
	Args       []string
	Dir        string
	LogFile    string
	ReadBanner bool
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

type Spawned struct {
	PID    int
	Banner string
}

type Supervisor interface {
	Spawn(scope *envelope.Scope, cmd Command) (Spawned, error)
	// Kill is a no-op for dead or unknown pids.
	Kill(scope *envelope.Scope, pid int) error
	IsAlive(pid int) bool
}

// OSSupervisor runs real processes.
type OSSupervisor struct {
	spawnTimeout time.Duration
	grace        time.Duration
	metrics      metrics.TableManagerMetrics

	mu       sync.Mutex
	children map[int]chan struct{}
}

func NewOSSupervisor(spawnTimeout, grace time.Duration, m metrics.TableManagerMetrics) *OSSupervisor {
	if spawnTimeout <= 0 {
		spawnTimeout = constants.DefaultSpawnTimeout
	}
	if grace <= 0 {
		grace = constants.DefaultKillGrace
	}

	return &OSSupervisor{
		spawnTimeout: spawnTimeout,
		grace:        grace,
		metrics:      m,
		children:     map[int]chan struct{}{},
	}
}

func (s *OSSupervisor) Spawn(rootScope *envelope.Scope, command Command) (Spawned, error) {
	scope := rootScope.NewChildScope("process.Spawn")
	defer scope.Finish()

	scope.SetAttributes("kind", command.Kind)
	scope.SetAttributes("command", command.String())
	started := time.Now()

	logFile, err := openLog(command.LogFile)
	if err != nil {
		return Spawned{}, err
	}

	cmd := exec.Command(command.Path, command.Args...)
	cmd.Dir = command.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if logFile != nil {
		cmd.Stderr = logFile
	}

	var stdout io.ReadCloser
	if command.ReadBanner {
		if stdout, err = cmd.StdoutPipe(); err != nil {
			closeLog(logFile)
			return Spawned{}, err
		}
	} else if logFile != nil {
		cmd.Stdout = logFile
	}

	if err = s.start(cmd); err != nil {
		closeLog(logFile)
		s.recordSpawnFailure(scope, command, err)
		return Spawned{}, err
	}

	pid := cmd.Process.Pid
	done := make(chan struct{})
	s.mu.Lock()
	s.children[pid] = done
	s.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		closeLog(logFile)
		close(done)
		s.mu.Lock()
		delete(s.children, pid)
		s.mu.Unlock()
	}()

	spawned := Spawned{PID: pid}
	if command.ReadBanner {
		var sink io.Writer = io.Discard
		if logFile != nil {
			sink = logFile
		}
		spawned.Banner, err = s.readBanner(stdout, sink)
		if err != nil {
			s.recordSpawnFailure(scope, command, err)
			_ = s.Kill(scope, pid)
			return Spawned{}, err
		}
	}

	if s.metrics != nil {
		s.metrics.AddSpawnElapsedTimeMs(command.Kind, time.Since(started))
	}
	scope.Log.WithFields(logrus.Fields{
		envelope.PIDLogField: pid,
		"kind":               command.Kind,
		"command":            command.String(),
	}).Info("process started")

	return spawned, nil
}

// start bounds process creation by the spawn timeout. A process that appears
// after the timeout is killed as soon as it does.
func (s *OSSupervisor) start(cmd *exec.Cmd) error {
	result := make(chan error, 1)
	go func() {
		result <- cmd.Start()
	}()

	timer := time.NewTimer(s.spawnTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-timer.C:
		go func() {
			if err := <-result; err == nil {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
			}
		}()
		return fmt.Errorf("%w after %s: %s", ErrSpawnTimeout, s.spawnTimeout, cmd.Path)
	}
}

func (s *OSSupervisor) readBanner(stdout io.Reader, sink io.Writer) (string, error) {
	type line struct {
		text string
		err  error
	}
	reader := bufio.NewReader(stdout)
	result := make(chan line, 1)
	go func() {
		text, err := reader.ReadString('\n')
		result <- line{text: strings.TrimSpace(text), err: err}

		// keep draining so the child never blocks on a full pipe
		_, _ = io.Copy(sink, reader)
	}()

	timer := time.NewTimer(s.spawnTimeout)
	defer timer.Stop()

	select {
	case l := <-result:
		if l.text == "" && l.err != nil {
			return "", fmt.Errorf("read process banner: %w", l.err)
		}
		return l.text, nil
	case <-timer.C:
		return "", fmt.Errorf("%w waiting %s for banner", ErrSpawnTimeout, s.spawnTimeout)
	}
}

func (s *OSSupervisor) recordSpawnFailure(scope *envelope.Scope, command Command, err error) {
	scope.RecordError(err)
	scope.Log.WithError(err).WithField("command", command.String()).Warn("unable to start process")
}

func (s *OSSupervisor) Kill(rootScope *envelope.Scope, pid int) error {
	if pid <= 0 || !s.IsAlive(pid) {
		return nil
	}

	scope := rootScope.NewChildScope("process.Kill")
	defer scope.Finish()

	scope.SetAttributes(envelope.PIDLogField, pid)
	log := scope.Log.WithField(envelope.PIDLogField, pid)
	target := signalTarget(pid)

	if dead, err := s.signal(target, syscall.SIGTERM); dead || err != nil {
		return err
	}
	if s.waitForExit(pid, s.grace) {
		sweepGroup(target)
		log.Debug("process terminated")
		return nil
	}

	log.Warn("process ignored SIGTERM, sending SIGKILL")
	if s.metrics != nil {
		s.metrics.AddKillEscalation("SIGKILL")
	}
	if dead, err := s.signal(target, syscall.SIGKILL); dead || err != nil {
		return err
	}
	if s.waitForExit(pid, s.grace) {
		sweepGroup(target)
		return nil
	}

	if s.metrics != nil {
		s.metrics.AddKillEscalation("unkillable")
	}
	err := fmt.Errorf("%w: pid %d", ErrUnkillable, pid)
	scope.RecordError(err)
	log.WithError(err).Error("process survived SIGKILL")

	return err
}

// signalTarget is -pid when pid leads its own process group, as every
// spawned child does, so wrapper scripts take their children with them.
func signalTarget(pid int) int {
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid == pid {
		return -pid
	}
	return pid
}

// sweepGroup kills whatever is left of a group once its leader is gone.
func sweepGroup(target int) {
	if target < 0 {
		_ = syscall.Kill(target, syscall.SIGKILL)
	}
}

// signal returns dead=true when nothing is left to signal.
func (s *OSSupervisor) signal(target int, sig syscall.Signal) (dead bool, err error) {
	err = syscall.Kill(target, sig)
	if errors.Is(err, syscall.ESRCH) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("send %s to pid %d: %w", sig, target, err)
	}

	return false, nil
}

func (s *OSSupervisor) waitForExit(pid int, d time.Duration) bool {
	s.mu.Lock()
	done, tracked := s.children[pid]
	s.mu.Unlock()

	if tracked {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-done:
			return true
		case <-timer.C:
			return false
		}
	}

	time.Sleep(d)
	return !s.IsAlive(pid)
}

// IsAlive probes with signal 0. Our own children count as dead once reaped,
// so exited-but-unwaited zombies are not reported alive.
func (s *OSSupervisor) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	s.mu.Lock()
	done, tracked := s.children[pid]
	s.mu.Unlock()
	if tracked {
		select {
		case <-done:
			return false
		default:
		}
	}

	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func openLog(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func closeLog(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}
