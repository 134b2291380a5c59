package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines map[Stream][]string
}

func newLineRecorder() *lineRecorder {
	return &lineRecorder{lines: make(map[Stream][]string)}
}

func (r *lineRecorder) sink(stream Stream, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[stream] = append(r.lines[stream], line)
}

func (r *lineRecorder) get(stream Stream) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines[stream]...)
}

func newTestExecutor(t *testing.T) (*Executor, *lineRecorder) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell tests require a POSIX shell")
	}
	rec := newLineRecorder()
	return New(zerolog.Nop(), HostPOSIX, WithLineSink(rec.sink)), rec
}

func TestRun_BlockingDrainsLargeOutputOnBothStreams(t *testing.T) {
	e, rec := newTestExecutor(t)

	// Roughly 300KB on stderr and 100KB on stdout, well beyond a pipe buffer.
	command := `i=0; while [ $i -lt 5000 ]; do
		echo "out $i"
		echo "err $i xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx" >&2
		i=$((i+1))
	done`

	p, err := e.Run(context.Background(), command, true)
	require.NoError(t, err)
	require.Nil(t, p)

	stdout := rec.get(StreamStdout)
	stderr := rec.get(StreamStderr)
	require.Len(t, stdout, 5000)
	require.Len(t, stderr, 5000)
	require.Equal(t, "out 0", stdout[0])
	require.Equal(t, "out 4999", stdout[4999])
	require.True(t, strings.HasPrefix(stderr[4999], "err 4999 "))
}

func TestRun_BlockingDrainsSingleHugeLine(t *testing.T) {
	e, rec := newTestExecutor(t)

	command := `head -c 200000 /dev/zero | tr '\0' x >&2; echo done`
	_, err := e.Run(context.Background(), command, true)
	require.NoError(t, err)

	stderr := rec.get(StreamStderr)
	require.Len(t, stderr, 1)
	require.Len(t, stderr[0], 200000)
	require.Equal(t, []string{"done"}, rec.get(StreamStdout))
}

func TestRun_NonBlockingReturnsLiveProcess(t *testing.T) {
	e, rec := newTestExecutor(t)

	p, err := e.Run(context.Background(), "echo hello; sleep 0.2; echo bye", false)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Greater(t, p.Pid(), 0)

	select {
	case <-p.Done():
		t.Fatal("process finished before it was expected to")
	default:
	}

	require.NoError(t, p.Wait())
	require.Equal(t, []string{"hello", "bye"}, rec.get(StreamStdout))
}

func TestRun_NonZeroExit(t *testing.T) {
	e, _ := newTestExecutor(t)

	_, err := e.Run(context.Background(), "exit 3", true)
	require.Error(t, err)

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 3, exitErr.ExitCode())
}

func TestRun_ContextCanceled(t *testing.T) {
	e, _ := newTestExecutor(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Run(ctx, "exec sleep 5", true)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 4*time.Second)
}

func TestRun_ContextCanceledKillsChildren(t *testing.T) {
	e, _ := newTestExecutor(t)

	tests := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{
			name: "blocking run",
			run: func(ctx context.Context) error {
				_, err := e.Run(ctx, "sleep 5; echo done", true)
				return err
			},
		},
		{
			name: "captured result",
			run: func(ctx context.Context) error {
				_, err := e.RunWithResult(ctx, "sleep 5; echo done")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			// The sleep inherits the output pipes of the shell
			start := time.Now()
			err := tt.run(ctx)
			require.Less(t, time.Since(start), 2*time.Second)
			require.Error(t, err)
		})
	}
}

func TestRunWithResult(t *testing.T) {
	e, rec := newTestExecutor(t)

	out, err := e.RunWithResult(context.Background(), `printf 'a\nb\nc\n'; echo oops >&2`)
	require.NoError(t, err)
	require.Equal(t, "abc", out)
	require.Equal(t, []string{"oops"}, rec.get(StreamStderr))
}

func TestRunWithResult_IgnoresExitStatus(t *testing.T) {
	e, _ := newTestExecutor(t)

	out, err := e.RunWithResult(context.Background(), "echo partial; exit 1")
	require.NoError(t, err)
	require.Equal(t, "partial", out)
}

func TestRunWithRedirect(t *testing.T) {
	e, rec := newTestExecutor(t)

	path := filepath.Join(t.TempDir(), "out dir file.txt")
	_, err := e.RunWithRedirect(context.Background(), "echo redirected; echo visible >&2", path, true)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "redirected\n", string(data))
	require.Empty(t, rec.get(StreamStdout))
	require.Equal(t, []string{"visible"}, rec.get(StreamStderr))
}

func TestKillByCommand(t *testing.T) {
	e, _ := newTestExecutor(t)

	p, err := e.Run(context.Background(), "sleep 3133", false)
	require.NoError(t, err)

	// ps may not list the process the very instant it was started
	require.Eventually(t, func() bool {
		if err := e.KillByCommand(context.Background(), "sleep 3133"); err != nil {
			return false
		}
		select {
		case <-p.Done():
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)

	require.Error(t, p.Wait())
}

func TestKillByCommand_SparesCaller(t *testing.T) {
	e, _ := newTestExecutor(t)

	// The fragment is part of the command line of this test binary as well
	// as of the target, which keeps a shell alive until it is killed.
	fragment := filepath.Base(os.Args[0])
	p, err := e.Run(context.Background(), "while :; do sleep 1; done # "+fragment, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Kill() })

	require.Eventually(t, func() bool {
		if err := e.KillByCommand(context.Background(), fragment); err != nil {
			return false
		}
		select {
		case <-p.Done():
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)

	require.Error(t, p.Wait())
}

func TestKillByCommand_NoMatchIsNoop(t *testing.T) {
	e, _ := newTestExecutor(t)

	require.NoError(t, e.KillByCommand(context.Background(), "devrun-no-such-process-7f3a"))
	require.Error(t, e.KillByCommand(context.Background(), "  "))
}

func TestHostCommands(t *testing.T) {
	win := New(zerolog.Nop(), HostWindows)
	posix := New(zerolog.Nop(), HostPOSIX)

	tests := []struct {
		name string
		got  string
		want []string
	}{
		{
			name: "windows kill",
			got:  win.killCommand("adb -s abc logcat"),
			want: []string{"Get-WmiObject Win32_Process", "name like '%adb%'", "CommandLine like '%adb%-s%abc%logcat%'", fmt.Sprintf("ProcessId != %d", os.Getpid()), "Stop-Process"},
		},
		{
			name: "posix kill",
			got:  posix.killCommand("adb -s abc logcat"),
			want: []string{"ps aux | grep -F -- 'adb -s abc logcat' | grep -v grep", fmt.Sprintf("-v self=%d -v parent=%d", os.Getpid(), os.Getppid()), "kill $pids"},
		},
		{
			name: "windows redirect",
			got:  win.redirect("adb devices", `C:\out\devices.txt`),
			want: []string{`adb devices | Out-File -FilePath 'C:\out\devices.txt'`},
		},
		{
			name: "posix redirect",
			got:  posix.redirect("adb devices", "/tmp/my out.txt"),
			want: []string{`adb devices > '/tmp/my out.txt'`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, w := range tt.want {
				require.Contains(t, tt.got, w)
			}
		})
	}
}

func TestHostInvocation(t *testing.T) {
	name, args := HostWindows.Invocation("Get-Date")
	require.Equal(t, PowerShellPath, name)
	require.Equal(t, []string{"-ExecutionPolicy", "Unrestricted", "-NoProfile", "-Command", "Get-Date"}, args)

	name, args = HostPOSIX.Invocation("date")
	require.Equal(t, "sh", name)
	require.Equal(t, []string{"-c", "date"}, args)
}

func TestParseHost(t *testing.T) {
	h, err := ParseHost("Windows")
	require.NoError(t, err)
	require.Equal(t, HostWindows, h)

	h, err = ParseHost("linux")
	require.NoError(t, err)
	require.Equal(t, HostPOSIX, h)

	h, err = ParseHost("")
	require.NoError(t, err)
	require.Equal(t, DetectHost(), h)

	_, err = ParseHost("plan9")
	require.Error(t, err)
}
