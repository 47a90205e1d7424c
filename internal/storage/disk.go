package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"vibegame-backend/pkg/logger"
)

const (
	overviewFile = "world.md"
	indexFile    = "entities.json"
)

// DiskStorage reads lore from a directory laid out as
//
//	<dataDir>/world.md
//	<dataDir>/entities.json
//	<dataDir>/<kind>/<id>.md
//
// Files are read on first use and cached for the life of the process.
type DiskStorage struct {
	dataDir  string
	mu       sync.RWMutex
	overview *string
	index    []Entity
	cache    map[string]*Entity
}

func NewDiskStorage(dataDir string) *DiskStorage {
	return &DiskStorage{
		dataDir: dataDir,
		cache:   make(map[string]*Entity),
	}
}

func (d *DiskStorage) Init() error {
	info, err := os.Stat(d.dataDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrStorageInit, d.dataDir)
	}

	if err := d.loadIndex(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Infof("Lore storage initialized from %s (%d entities)", d.dataDir, len(d.index))
	return nil
}

func (d *DiskStorage) Close() error {
	return nil
}

func (d *DiskStorage) loadIndex() error {
	indexPath := filepath.Join(d.dataDir, indexFile)

	data, err := os.ReadFile(indexPath)
	if errors.Is(err, os.ErrNotExist) {
		d.mu.Lock()
		d.index = []Entity{}
		d.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	var index []Entity
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidData, indexFile, err)
	}
	for i := range index {
		if index[i].ID == "" || index[i].Kind == "" {
			return fmt.Errorf("%w: entry %d lacks id or kind", ErrInvalidData, i)
		}
		for j, name := range index[i].Names {
			index[i].Names[j] = strings.ToLower(name)
		}
		index[i].Content = ""
	}

	d.mu.Lock()
	d.index = index
	d.mu.Unlock()
	return nil
}

func (d *DiskStorage) Overview() (string, error) {
	d.mu.RLock()
	if d.overview != nil {
		defer d.mu.RUnlock()
		return *d.overview, nil
	}
	d.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(d.dataDir, overviewFile))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	text := string(data)
	d.mu.Lock()
	d.overview = &text
	d.mu.Unlock()
	return text, nil
}

func (d *DiskStorage) Entities() ([]Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.index == nil {
		return nil, ErrStorageInit
	}
	out := make([]Entity, len(d.index))
	copy(out, d.index)
	return out, nil
}

func (d *DiskStorage) GetEntity(kind EntityKind, id string) (*Entity, error) {
	key := entityKey(kind, id)

	d.mu.RLock()
	if e, ok := d.cache[key]; ok {
		d.mu.RUnlock()
		out := *e
		return &out, nil
	}
	var base *Entity
	for i := range d.index {
		if d.index[i].Kind == kind && d.index[i].ID == id {
			e := d.index[i]
			base = &e
			break
		}
	}
	d.mu.RUnlock()

	if base == nil {
		return nil, ErrEntityNotFound
	}

	// ids come from the index file, but keep reads inside dataDir regardless
	name := filepath.Base(id) + ".md"
	data, err := os.ReadFile(filepath.Join(d.dataDir, filepath.Base(string(kind)), name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	base.Content = string(data)

	d.mu.Lock()
	d.cache[key] = base
	d.mu.Unlock()

	out := *base
	return &out, nil
}
