package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devrun/devrun/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func saveRun(t *testing.T, root, id string, ts time.Time) string {
	t.Helper()
	dir := filepath.Join(root, ts.Format("20060102-150405")+"-"+id[:8])
	require.NoError(t, os.MkdirAll(dir, 0755))

	run := model.NewTestRun(id, "task", dir)
	run.SetTotalCount(1)
	run.AddTimeTag("testRunStarted", 0)
	run.AddResult(&model.TestCaseResult{Name: "login.json", Success: true})

	require.NoError(t, Save(dir, &model.RunRecord{
		ID:        id,
		Timestamp: ts,
		Package:   "com.example.app",
		Device:    "emulator-5554",
		Artifacts: []model.Artifact{{Type: model.ArtifactTypeGIF, Size: 42, File: "com.example.app.gif"}},
		Run:       run,
	}))
	return dir
}

func TestSaveAndLoadEntries(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	saveRun(t, root, "aaaaaaaa-0000-0000-0000-000000000001", base)
	newest := saveRun(t, root, "bbbbbbbb-0000-0000-0000-000000000002", base.Add(time.Hour))
	saveRun(t, root, "cccccccc-0000-0000-0000-000000000003", base.Add(-time.Hour))

	broken := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(broken, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(broken, RecordFileName), []byte("{"), 0644))

	entries, err := LoadEntries(zerolog.Nop(), root)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, newest, entries[0].FullPath)
	require.Equal(t, "cccccccc-0000-0000-0000-000000000003", entries[2].Record.ID)

	rec := entries[0].Record
	require.Equal(t, "com.example.app", rec.Package)
	require.Len(t, rec.Artifacts, 1)
	require.Equal(t, model.ArtifactTypeGIF, rec.Artifacts[0].Type)
	require.NotNil(t, rec.Run)
	require.Len(t, rec.Run.Results, 1)
	require.Equal(t, "login.json", rec.Run.Results[0].Name)
	require.Equal(t, []model.TimeTag{{Label: "testRunStarted"}}, rec.Run.TimeTags)
}

func TestLoadEntries_MissingRoot(t *testing.T) {
	entries, err := LoadEntries(zerolog.Nop(), filepath.Join(t.TempDir(), "devrun-results"))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestFind(t *testing.T) {
	entries := []Entry{
		{Record: model.RunRecord{ID: "bbbb1111"}},
		{Record: model.RunRecord{ID: "aaaa2222"}},
		{Record: model.RunRecord{ID: "aaab3333"}},
	}

	tests := []struct {
		query   string
		want    string
		wantErr bool
	}{
		{query: "", want: "bbbb1111"},
		{query: "0", want: "bbbb1111"},
		{query: "-2", want: "aaab3333"},
		{query: "-3", wantErr: true},
		{query: "1", wantErr: true},
		{query: "AAAA", want: "aaaa2222"},
		{query: "aaab", want: "aaab3333"},
		{query: "ffff", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := Find(entries, tt.query)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Record.ID)
		})
	}

	_, err := Find(nil, "0")
	require.Error(t, err)
}
