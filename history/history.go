package history

// This file contains shared history utilities for saving and loading
// run records.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/devrun/devrun/model"
	"github.com/rs/zerolog"
)

// RecordFileName is the run record written into every result folder.
const RecordFileName = "run.json"

type Entry struct {
	Record   model.RunRecord
	FullPath string
}

// Save writes record as run.json into dir.
func Save(dir string, record *model.RunRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	path := filepath.Join(dir, RecordFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	return nil
}

// LoadEntries loads all run records below root, newest first. Records that
// cannot be parsed are logged and skipped.
func LoadEntries(logger zerolog.Logger, root string) ([]Entry, error) {
	var entries []Entry

	// No results directory yet means no runs
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			recordPath := filepath.Join(path, RecordFileName)
			if _, err := os.Stat(recordPath); err == nil {
				record, err := parseRecord(recordPath)
				if err != nil {
					logger.Warn().Err(err).Str("path", recordPath).Msg("Failed to parse run.json")
					return nil
				}

				entries = append(entries, Entry{
					Record:   record,
					FullPath: path,
				})
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk results directory: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Record.Timestamp.After(entries[j].Record.Timestamp)
	})
	return entries, nil
}

// Find returns the entry identified by query in entries, which are sorted
// newest first. "0" is the newest run, "-1" the one before it and so on;
// anything else is matched as a run ID prefix.
func Find(entries []Entry, query string) (Entry, error) {
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("no runs found")
	}
	if query == "" {
		query = "0"
	}

	if parsed, err := strconv.ParseInt(query, 10, 64); err == nil {
		if parsed > 0 {
			return Entry{}, fmt.Errorf("invalid index: %s (use 0 for last, -1 for second-to-last, etc.)", query)
		}
		index := int(-parsed)
		if index >= len(entries) {
			return Entry{}, fmt.Errorf("index %s out of range (only %d runs)", query, len(entries))
		}
		return entries[index], nil
	}

	prefix := strings.ToLower(query)
	for _, entry := range entries {
		if strings.HasPrefix(strings.ToLower(entry.Record.ID), prefix) {
			return entry, nil
		}
	}
	return Entry{}, fmt.Errorf("no run found matching ID: %s", query)
}

// parseRecord parses a run.json file.
func parseRecord(path string) (model.RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.RunRecord{}, err
	}

	var record model.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.RunRecord{}, err
	}

	return record, nil
}
