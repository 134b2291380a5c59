package device

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devrun/devrun/model"
	"github.com/devrun/devrun/shell"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu       sync.Mutex
	commands []string
	result   string
	runErr   error
	// redirect writes content into the redirect target
	redirect string
	// pulled is written into the local file of a pull when set
	pulled   string
	host     shell.Host
}

func (e *fakeExecutor) record(command string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = append(e.commands, command)
}

func (e *fakeExecutor) Run(_ context.Context, command string, _ bool) (*shell.Process, error) {
	e.record(command)
	if fields := strings.Fields(command); e.pulled != "" && len(fields) > 2 && fields[len(fields)-3] == "pull" {
		return nil, os.WriteFile(strings.Trim(fields[len(fields)-1], "'"), []byte(e.pulled), 0644)
	}
	return nil, e.runErr
}

func (e *fakeExecutor) Host() shell.Host {
	return e.host
}

func (e *fakeExecutor) RunWithRedirect(_ context.Context, command, redirectTo string, _ bool) (*shell.Process, error) {
	e.record(command + " > " + filepath.Base(redirectTo))
	return nil, os.WriteFile(redirectTo, []byte(e.redirect), 0644)
}

func (e *fakeExecutor) RunWithResult(_ context.Context, command string) (string, error) {
	e.record(command)
	return e.result, nil
}

func (e *fakeExecutor) KillByCommand(_ context.Context, fragment string) error {
	e.record("kill " + fragment)
	return nil
}

func writeCase(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const loginCase = `{
  "drivers": [{"id": "d1", "platform": "android", "init": {"launcherApp": "com.example.app"}}],
  "cases": [
    {"index": 0, "driverId": "d1", "elementInfo": {"text": "Login"}, "action": {"actionType": "click"}},
    {"index": 1, "driverId": "d1", "action": {"actionType": "input", "arguments": {"content": "alice"}}, "isOption": true}
  ]
}`

func TestLoadCase(t *testing.T) {
	dir := t.TempDir()

	def, err := LoadCase(writeCase(t, dir, "login.json", loginCase))
	require.NoError(t, err)
	require.Len(t, def.Drivers, 1)
	require.Len(t, def.Actions, 2)
	require.Equal(t, "click", def.Actions[0].Action.Type)
	require.Equal(t, "alice", def.Actions[1].Action.Arguments["content"])
	require.True(t, def.Actions[1].Optional)

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "not json", content: "click login", wantErr: "failed to parse"},
		{name: "unknown driver", content: `{"drivers": [], "cases": [{"index": 3, "driverId": "x", "action": {"actionType": "click"}}]}`, wantErr: `unknown driver "x"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCase(writeCase(t, dir, "bad.json", tt.content))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err = LoadCase(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestRunCase(t *testing.T) {
	dir := t.TempDir()
	login := writeCase(t, dir, "login.json", loginCase)
	empty := writeCase(t, dir, "empty.json", `{"drivers": [], "cases": []}`)
	dev := &model.Device{Serial: "emulator-5554"}

	t.Run("runs case command", func(t *testing.T) {
		e := &fakeExecutor{}
		a := New(zerolog.Nop(), e,
			WithCaseCommand("t2c-runner --serial {serial} --case {case} --out $DevRun_TestResultFolderPath"),
			WithResultFolder("/results/run-1"))

		outcome := a.RunCase(context.Background(), dev, login)
		require.True(t, outcome.Passed)
		require.Equal(t, []string{"t2c-runner --serial emulator-5554 --case " + login + " --out /results/run-1/"}, e.commands)
	})

	t.Run("empty case passes without running", func(t *testing.T) {
		e := &fakeExecutor{}
		a := New(zerolog.Nop(), e, WithCaseCommand("t2c-runner {case}"))

		require.True(t, a.RunCase(context.Background(), dev, empty).Passed)
		require.Empty(t, e.commands)
	})

	t.Run("command failure fails case", func(t *testing.T) {
		e := &fakeExecutor{runErr: errors.New("exec: \"t2c-runner\": executable file not found")}
		a := New(zerolog.Nop(), e, WithCaseCommand("t2c-runner {case}"))

		outcome := a.RunCase(context.Background(), dev, login)
		require.False(t, outcome.Passed)
		require.Contains(t, outcome.Reason, "executable file not found")
	})

	t.Run("no command configured", func(t *testing.T) {
		a := New(zerolog.Nop(), &fakeExecutor{})
		require.False(t, a.RunCase(context.Background(), dev, login).Passed)
	})

	t.Run("broken case file", func(t *testing.T) {
		a := New(zerolog.Nop(), &fakeExecutor{}, WithCaseCommand("t2c-runner {case}"))
		outcome := a.RunCase(context.Background(), dev, filepath.Join(dir, "missing.json"))
		require.False(t, outcome.Passed)
		require.Contains(t, outcome.Reason, "failed to read case")
	})
}

func TestRunCase_ExitStatus(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no POSIX shell available")
	}
	dir := t.TempDir()
	login := writeCase(t, dir, "login.json", loginCase)

	a := New(zerolog.Nop(), shell.New(zerolog.Nop(), shell.HostPOSIX), WithCaseCommand("exit 4"))
	outcome := a.RunCase(context.Background(), &model.Device{Serial: "d1"}, login)
	require.False(t, outcome.Passed)
	require.Equal(t, "case command exited with status 4", outcome.Reason)
}

func TestScreenRecorder(t *testing.T) {
	e := &fakeExecutor{}
	a := New(zerolog.Nop(), e, WithPath("/opt/android/adb"))
	rec := a.ScreenRecorder(&model.Device{Serial: "d1"}, "/results/run 1", "merged_test.mp4")

	ctx := context.Background()
	require.NoError(t, rec.Prepare(ctx))
	require.NoError(t, rec.Start(ctx, 90*time.Second))
	require.NoError(t, rec.Stop(ctx))

	require.Equal(t, []string{
		"/opt/android/adb -s d1 shell rm -f /sdcard/devrun_merged_test.mp4",
		"/opt/android/adb -s d1 shell screenrecord --bit-rate 4000000 --time-limit 90 /sdcard/devrun_merged_test.mp4",
		"/opt/android/adb -s d1 shell pkill -INT screenrecord",
		"/opt/android/adb -s d1 pull /sdcard/devrun_merged_test.mp4 '/results/run 1/merged_test.mp4'",
	}, e.commands)
}

func TestRecordLimit(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{in: 0, want: MaxRecordTimeout},
		{in: time.Hour, want: MaxRecordTimeout},
		{in: 100 * time.Millisecond, want: time.Second},
		{in: 90500 * time.Millisecond, want: 90 * time.Second},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, recordLimit(tt.in), "recordLimit(%s)", tt.in)
	}
}

func TestSerial(t *testing.T) {
	e := &fakeExecutor{result: "emulator-5554"}
	serial, err := New(zerolog.Nop(), e).Serial(context.Background())
	require.NoError(t, err)
	require.Equal(t, "emulator-5554", serial)
	require.Equal(t, []string{"adb get-serialno"}, e.commands)

	e.result = "unknown"
	_, err = New(zerolog.Nop(), e).Serial(context.Background())
	require.Error(t, err)
}

func TestScreenshot(t *testing.T) {
	e := &fakeExecutor{}
	a := New(zerolog.Nop(), e)

	img, err := a.Screenshot(context.Background(), &model.Device{Serial: "d1"})
	require.NoError(t, err)
	require.Nil(t, img, "empty screencap means no screenshot")
	require.Len(t, e.commands, 1)
	require.True(t, strings.HasPrefix(e.commands[0], "adb -s d1 exec-out screencap -p > devrun-screen-"))

	e.redirect = "garbage"
	_, err = a.Screenshot(context.Background(), &model.Device{Serial: "d1"})
	require.Error(t, err)
}

func TestScreenshot_WindowsPullsFromDevice(t *testing.T) {
	var png bytes.Buffer
	require.NoError(t, imaging.Encode(&png, image.NewNRGBA(image.Rect(0, 0, 8, 4)), imaging.PNG))

	e := &fakeExecutor{host: shell.HostWindows, pulled: png.String()}
	a := New(zerolog.Nop(), e)

	img, err := a.Screenshot(context.Background(), &model.Device{Serial: "d1"})
	require.NoError(t, err)
	require.NotNil(t, img)
	require.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())

	require.Len(t, e.commands, 2)
	require.Equal(t, "adb -s d1 shell screencap -p /sdcard/devrun_screen.png", e.commands[0])
	require.True(t, strings.HasPrefix(e.commands[1], "adb -s d1 pull /sdcard/devrun_screen.png "))
	for _, c := range e.commands {
		require.NotContains(t, c, "exec-out")
	}
}
