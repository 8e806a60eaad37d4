package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// FileStore keeps one indented JSON file per run under a directory.
type FileStore struct {
	dataDir string
	lock    sync.RWMutex
}

func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create result dir %s: %w", dataDir, err)
	}
	return &FileStore{dataDir: dataDir}, nil
}

func (fs *FileStore) path(id string) string {
	return filepath.Join(fs.dataDir, id+".json")
}

func (fs *FileStore) Save(_ context.Context, rec *RunRecord) error {
	if err := validID(rec.ID); err != nil {
		return err
	}
	fs.lock.Lock()
	defer fs.lock.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", rec.ID, err)
	}
	tmp := fs.path(rec.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}
	if err := os.Rename(tmp, fs.path(rec.ID)); err != nil {
		return fmt.Errorf("failed to move run file into place: %w", err)
	}
	log.Infof("FileStore.Save: run=%s name=%s file=%s", rec.ID, rec.Name, fs.path(rec.ID))
	return nil
}

func (fs *FileStore) Load(_ context.Context, id string) (*RunRecord, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	data, err := os.ReadFile(fs.path(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}
	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}
	return &rec, nil
}

// List reads every run file; unreadable files are skipped with a warning.
func (fs *FileStore) List(ctx context.Context) ([]RunSummary, error) {
	entries, err := os.ReadDir(fs.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read result dir: %w", err)
	}
	var out []RunSummary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		rec, err := fs.Load(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			log.Warningf("FileStore.List: skipping %s: %v", name, err)
			continue
		}
		out = append(out, RunSummary{ID: rec.ID, Name: rec.Name, CreatedAt: rec.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (fs *FileStore) Close() error { return nil }
