package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Stream identifies one of the output streams of a process.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// LineSink receives the output of a process line by line as it arrives.
// It is called from two goroutines at once, one per stream.
type LineSink func(stream Stream, line string)

// Executor runs commands in the shell of a host.
type Executor struct {
	logger zerolog.Logger
	host   Host
	sink   LineSink
}

// Option is a function that configures an Executor.
type Option func(*Executor)

// WithLineSink replaces the default sink, which logs every line at debug level.
func WithLineSink(sink LineSink) Option {
	return func(e *Executor) {
		e.sink = sink
	}
}

// New creates an executor for the given host family.
func New(logger zerolog.Logger, host Host, opts ...Option) *Executor {
	e := &Executor{
		logger: logger,
		host:   host,
	}
	e.sink = func(stream Stream, line string) {
		e.logger.Debug().Str("stream", string(stream)).Msg(line)
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Host returns the host family commands are run on.
func (e *Executor) Host() Host {
	return e.host
}

// Run runs command in the host shell. Both output streams are forwarded to
// the line sink while the process runs.
//
// With wait set, Run returns once the process has exited and both streams
// are drained; the returned process is always nil and a non-nil error means
// the command did not run successfully. Without wait, Run returns the live
// process immediately and the streams keep draining in the background.
//
// Every failure is logged together with the command line, so callers may
// treat an error simply as "did not run".
func (e *Executor) Run(ctx context.Context, command string, wait bool) (*Process, error) {
	return e.run(ctx, command, wait)
}

// RunWithRedirect runs command with its standard output redirected to the
// file redirectTo by the shell itself.
func (e *Executor) RunWithRedirect(ctx context.Context, command, redirectTo string, wait bool) (*Process, error) {
	return e.run(ctx, e.redirect(command, redirectTo), wait)
}

// RunWithResult runs command without standard input, waits for it and
// returns its standard output with the line breaks removed. The exit status
// is logged but not treated as an error; only failures to start or read the
// process are.
func (e *Executor) RunWithResult(ctx context.Context, command string) (string, error) {
	name, args := e.host.Invocation(command)
	cmd := exec.CommandContext(ctx, name, args...)
	// no stdin interaction expected, reads see EOF
	cmd.Stdin = nil
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", e.fail(cmd, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", e.fail(cmd, err)
	}
	if err := cmd.Start(); err != nil {
		return "", e.fail(cmd, err)
	}

	var result strings.Builder
	var g errgroup.Group
	g.Go(func() error {
		return readLines(stdout, func(line string) {
			result.WriteString(line)
		})
	})
	g.Go(func() error {
		return readLines(stderr, func(line string) {
			e.sink(StreamStderr, line)
		})
	})
	readErr := g.Wait()
	waitErr := cmd.Wait()

	if readErr != nil {
		return "", e.fail(cmd, readErr)
	}
	if err := ctx.Err(); err != nil {
		return "", e.fail(cmd, err)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return "", e.fail(cmd, waitErr)
		}
		e.logger.Debug().
			Str("command", command).
			Int("exit_code", exitErr.ExitCode()).
			Msg("Command exited with non-zero status")
	}

	return result.String(), nil
}

// KillByCommand terminates every running process whose command line
// contains fragment. Not finding such a process is not an error.
func (e *Executor) KillByCommand(ctx context.Context, fragment string) error {
	if strings.TrimSpace(fragment) == "" {
		return fmt.Errorf("empty command fragment")
	}
	_, err := e.run(ctx, e.killCommand(fragment), true)
	return err
}

func (e *Executor) killCommand(fragment string) string {
	// The calling process and its parent may carry the fragment in their
	// own command lines, e.g. "devrun kill <fragment>".
	self, parent := os.Getpid(), os.Getppid()
	if e.host == HostWindows {
		processName := strings.Fields(fragment)[0]
		filter := strings.ReplaceAll(strings.ReplaceAll(fragment, "'", "''"), " ", "%")
		return fmt.Sprintf(
			`Get-WmiObject Win32_Process -Filter "name like '%%%s%%' and CommandLine like '%%%s%%' and ProcessId != %d and ProcessId != %d" | Select-Object ProcessId -OutVariable pids; if(-not $pids -eq '') {Stop-Process -Id $pids.ProcessId}`,
			processName, filter, self, parent)
	}
	// The shell running this pipeline contains the fragment too; it is
	// dropped together with the grep processes by "grep -v grep".
	return fmt.Sprintf(
		`pids=$(ps aux | grep -F -- %s | grep -v grep | awk -v self=%d -v parent=%d '$2 != self && $2 != parent {print $2}'); [ -z "$pids" ] || kill $pids`,
		shellescape.Quote(fragment), self, parent)
}

func (e *Executor) redirect(command, redirectTo string) string {
	if e.host == HostWindows {
		return command + " | Out-File -FilePath '" + strings.ReplaceAll(redirectTo, "'", "''") + "'"
	}
	return command + " > " + shellescape.Quote(redirectTo)
}

func (e *Executor) run(ctx context.Context, command string, wait bool) (*Process, error) {
	p, err := e.start(command)
	if err != nil {
		return nil, err
	}

	if !wait {
		e.logger.Debug().Int("pid", p.Pid()).Str("command", command).Msg("Started command")
		return p, nil
	}

	select {
	case <-p.Done():
	case <-ctx.Done():
		_ = p.Kill()
		<-p.Done()
		return nil, e.fail(p.cmd, ctx.Err())
	}
	if err := p.Wait(); err != nil {
		return nil, e.fail(p.cmd, err)
	}

	e.logger.Debug().Str("command", command).Msg("Successfully ran command")
	return nil, nil
}

func (e *Executor) start(command string) (*Process, error) {
	name, args := e.host.Invocation(command)
	cmd := exec.Command(name, args...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, e.fail(cmd, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, e.fail(cmd, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, e.fail(cmd, err)
	}

	p := newProcess(cmd, command)

	// One reader per stream. A single reader would block on one pipe while
	// the process blocks writing to the other once its buffer is full.
	var g errgroup.Group
	g.Go(func() error {
		return readLines(stdout, func(line string) { e.sink(StreamStdout, line) })
	})
	g.Go(func() error {
		return readLines(stderr, func(line string) { e.sink(StreamStderr, line) })
	})

	go func() {
		readErr := g.Wait()
		// Wait must only be called once the pipes are fully read
		waitErr := cmd.Wait()
		if waitErr == nil {
			waitErr = readErr
		}
		p.finish(waitErr)
	}()

	return p, nil
}

func (e *Executor) fail(cmd *exec.Cmd, err error) error {
	commandLine := strings.Join(cmd.Args, " ")
	e.logger.Error().Err(err).Str("command", commandLine).Msg("Failed to run command")
	return fmt.Errorf("failed to run %q: %w", commandLine, err)
}

// readLines calls fn for every line read from r until EOF. Lines of any
// length are supported.
func readLines(r io.Reader, fn func(line string)) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			fn(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}
