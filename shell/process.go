package shell

import (
	"errors"
	"os"
	"os/exec"
)

// Process is a command started by an Executor without waiting for it.
type Process struct {
	cmd     *exec.Cmd
	command string
	done    chan struct{}
	err     error
}

func newProcess(cmd *exec.Cmd, command string) *Process {
	return &Process{
		cmd:     cmd,
		command: command,
		done:    make(chan struct{}),
	}
}

func (p *Process) finish(err error) {
	p.err = err
	close(p.done)
}

// Pid returns the process ID of the shell running the command.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Command returns the command as passed to the executor.
func (p *Process) Command() string {
	return p.command
}

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait waits for the process to exit and for both output streams to be
// drained. It returns the exit error, if any.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Kill kills the shell running the command together with every process it
// started. Killing a process that already exited is not an error.
func (p *Process) Kill() error {
	return killProcessGroup(p.cmd)
}

// Signal sends sig to the shell running the command.
func (p *Process) Signal(sig os.Signal) error {
	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
