package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

const (
	usageFileName = "usage.json"
	proFileName   = "pro_groups.json"
)

// fileBackend keeps the counter table and the pro list as two flat JSON files.
type fileBackend struct {
	usagePath string
	proPath   string
}

func newFileBackend(dataDir string) (*fileBackend, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}
	return &fileBackend{
		usagePath: filepath.Join(dataDir, usageFileName),
		proPath:   filepath.Join(dataDir, proFileName),
	}, nil
}

func (f *fileBackend) Load() (usageSnapshot, error) {
	snapshot := usageSnapshot{
		Counters: make(map[string]int),
		Pro:      make(map[int64]struct{}),
	}

	var errs []error
	if ok, err := readJSON(f.usagePath, &snapshot.Counters); err != nil {
		errs = append(errs, err)
		snapshot.Counters = make(map[string]int)
	} else if !ok || snapshot.Counters == nil {
		snapshot.Counters = make(map[string]int)
	}

	var rawPro []any
	if _, err := readJSON(f.proPath, &rawPro); err != nil {
		errs = append(errs, err)
	} else {
		pro, err := parseProIDs(rawPro)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, f.proPath, err))
		}
		snapshot.Pro = pro
	}

	return snapshot, errors.Join(errs...)
}

func (f *fileBackend) SaveCounters(counters map[string]int) error {
	return writeJSONAtomic(f.usagePath, counters)
}

// SavePro writes ids as strings, sorted so the file diffs cleanly.
func (f *fileBackend) SavePro(pro map[int64]struct{}) error {
	ids := make([]int64, 0, len(pro))
	for id := range pro {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	encoded := make([]string, 0, len(ids))
	for _, id := range ids {
		encoded = append(encoded, strconv.FormatInt(id, 10))
	}
	return writeJSONAtomic(f.proPath, encoded)
}

func (f *fileBackend) Close() error {
	return nil
}

// parseProIDs accepts both string and numeric entries. Bad entries are skipped
// and reported together.
func parseProIDs(raw []any) (map[int64]struct{}, error) {
	pro := make(map[int64]struct{}, len(raw))
	var errs []error
	for _, entry := range raw {
		var (
			id  int64
			err error
		)
		switch v := entry.(type) {
		case string:
			id, err = strconv.ParseInt(v, 10, 64)
		case json.Number:
			id, err = v.Int64()
		default:
			err = fmt.Errorf("unexpected pro group entry %v", entry)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pro[id] = struct{}{}
	}
	return pro, errors.Join(errs...)
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, path, err)
	}
	return true, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}
	return nil
}
