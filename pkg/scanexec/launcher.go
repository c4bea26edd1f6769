package scanexec

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/rs/zerolog/log"
)

// Launcher starts and stops engine processes. It is an interface so the
// controller can be exercised without spawning anything.
type Launcher interface {
	// Start spawns an engine process for the given engine scan ID and
	// returns its PID.
	Start(ctx context.Context, engineScanID string) (pid int, err error)
	// Stop asks the engine process to stop its running scans.
	Stop(pid int) error
}

// ExecLauncher launches the engine binary as a child process. The engine
// picks its work up from the blackboard, so the only argument is the scan
// ID to start.
type ExecLauncher struct {
	// Path is the engine binary, looked up in PATH when not absolute.
	Path string
}

func (l *ExecLauncher) Start(ctx context.Context, engineScanID string) (int, error) {
	cmd := exec.Command(l.Path, "--scan-start", engineScanID)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", l.Path, err)
	}
	pid := cmd.Process.Pid
	log.Debug().Str("component", "launcher").Int("pid", pid).Msg("engine started")

	// Reap the child so it does not linger as a zombie.
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug().Str("component", "launcher").Int("pid", pid).Err(err).Msg("engine exited")
		}
	}()
	return pid, nil
}

// Stop delivers SIGUSR2, the engine's per-scan stop signal.
func (l *ExecLauncher) Stop(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find engine process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGUSR2); err != nil {
		return fmt.Errorf("signal engine process %d: %w", pid, err)
	}
	return nil
}
