package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoveFirstDashDash(t *testing.T) {
	require.Equal(t, []string{"-top"}, removeFirstDashDash([]string{"--", "-top"}))
	require.Equal(t, []string{"-top", "--"}, removeFirstDashDash([]string{"-top", "--"}))
	require.Empty(t, removeFirstDashDash([]string{"--"}))
	require.Empty(t, removeFirstDashDash(nil))
}

func TestParseViewArgs(t *testing.T) {
	tests := []struct {
		name          string
		in            []string
		wantID        string
		wantPprofArgs []string
	}{
		{
			name:   "no args views last run",
			in:     []string{},
			wantID: "0",
		},
		{
			name:          "negative index",
			in:            []string{"-1"},
			wantID:        "-1",
			wantPprofArgs: []string{},
		},
		{
			name:          "run ID prefix",
			in:            []string{"3f2a9c"},
			wantID:        "3f2a9c",
			wantPprofArgs: []string{},
		},
		{
			name:          "pprof flag without run",
			in:            []string{"-top"},
			wantID:        "0",
			wantPprofArgs: []string{"-top"},
		},
		{
			name:          "run with separator and pprof args",
			in:            []string{"-2", "--", "-http=:8080", "-sample_index=cpu"},
			wantID:        "-2",
			wantPprofArgs: []string{"-http=:8080", "-sample_index=cpu"},
		},
		{
			name:          "only separator",
			in:            []string{"--", "-traces"},
			wantID:        "0",
			wantPprofArgs: []string{"-traces"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID, gotPprofArgs := parseViewArgs(tt.in)
			require.Equal(t, tt.wantID, gotID)
			require.Equal(t, tt.wantPprofArgs, gotPprofArgs)
		})
	}
}
