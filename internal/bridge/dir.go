package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/dm/dashsync/internal/model"
)

// DirSurface writes each payload to <dir>/<id>.json, each exported
// collection to <dir>/<id>.<collection>.json and the activity state
// ("active" or "suspended") to <dir>/<id>.state. Files are replaced
// atomically so readers never see a partial payload.
type DirSurface struct {
	id      string
	dir     string
	exports []model.Collection
}

// NewDirSurface creates dir if needed and returns a surface writing into it.
// exports names the collections also written as standalone arrays.
func NewDirSurface(dir, id string, exports ...model.Collection) (*DirSurface, error) {
	if id == "" || filepath.Base(id) != id {
		return nil, fmt.Errorf("invalid surface id %q", id)
	}
	for _, c := range exports {
		if !c.Valid() {
			return nil, fmt.Errorf("surface %s: unknown collection %q", id, c)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create surface dir: %w", err)
	}
	return &DirSurface{id: id, dir: dir, exports: slices.Clone(exports)}, nil
}

func (d *DirSurface) ID() string { return d.id }

// PayloadPath returns the file holding the latest payload.
func (d *DirSurface) PayloadPath() string { return filepath.Join(d.dir, d.id+".json") }

// ExportPath returns the file holding the array of collection c.
func (d *DirSurface) ExportPath(c model.Collection) string {
	return filepath.Join(d.dir, d.id+"."+string(c)+".json")
}

// StatePath returns the file holding the activity state.
func (d *DirSurface) StatePath() string { return filepath.Join(d.dir, d.id+".state") }

func (d *DirSurface) Inject(_ context.Context, payload string) error {
	return writeAtomic(d.PayloadPath(), []byte(payload))
}

func (d *DirSurface) Exports() []model.Collection { return slices.Clone(d.exports) }

func (d *DirSurface) Export(_ context.Context, c model.Collection, data string) error {
	return writeAtomic(d.ExportPath(c), []byte(data))
}

func (d *DirSurface) Suspend(_ context.Context) error {
	return writeAtomic(d.StatePath(), []byte("suspended\n"))
}

func (d *DirSurface) Resume(_ context.Context) error {
	return writeAtomic(d.StatePath(), []byte("active\n"))
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
