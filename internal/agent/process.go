package agent

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/watchfire-io/agentwatch/internal/config"
)

// process is one detached agent subprocess.
type process struct {
	cmd  *exec.Cmd
	pid  int
	done chan struct{}

	// Set before done is closed.
	exitCode int
	waitErr  error
}

// startProcess launches path detached from this process's session with
// stdout and stderr on logFile. The caller may close logFile once this
// returns.
func startProcess(path string, args []string, dir string, logFile *os.File) (*process, error) {
	cmd := exec.Command(path, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &process{
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

func (p *process) wait() {
	err := p.cmd.Wait()
	p.waitErr = err
	switch {
	case p.cmd.ProcessState != nil:
		p.exitCode = p.cmd.ProcessState.ExitCode()
	case err != nil:
		p.exitCode = -1
	}
	close(p.done)
}

// exited reports whether Wait has returned.
func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// alive asks the OS whether the process still exists.
func (p *process) alive() bool {
	return config.ProcessAlive(p.pid)
}

// terminate signals the process group. It does not wait for exit.
func (p *process) terminate() error {
	return terminateGroup(p.pid)
}

// ResolveAgentPath finds the agent executable.
// Check order: configured path → exec.LookPath → platform-specific fallbacks.
func ResolveAgentPath(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		}
	}

	if path, err := exec.LookPath("claude"); err == nil {
		return path, nil
	}

	homeDir, _ := os.UserHomeDir()
	fallbacks := []string{
		homeDir + "/.claude/local/claude",
	}
	if runtime.GOOS == "darwin" {
		fallbacks = append(fallbacks,
			"/opt/homebrew/bin/claude",
			"/usr/local/bin/claude",
		)
	}
	for _, p := range fallbacks {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("claude binary not found. Install Claude Code or set agent.path in ~/.agentwatch/settings.yaml")
}
