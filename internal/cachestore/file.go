package cachestore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// File：本地文件后端（默认）
// 约束：写入先落临时文件再重命名，读者不会看到半截快照
type File struct {
	path string
}

func NewFile(path string) *File { return &File{path: path} }

func (f *File) Load(context.Context) ([]byte, error) {
	b, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read cache file %s", f.path)
	}
	return b, nil
}

func (f *File) Save(_ context.Context, blob []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create cache dir")
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create cache temp file")
	}
	name := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return errors.Wrap(err, "write cache temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return errors.Wrap(err, "close cache temp file")
	}
	if err := os.Rename(name, f.path); err != nil {
		_ = os.Remove(name)
		return errors.Wrap(err, "replace cache file")
	}
	return nil
}

func (f *File) Clear(context.Context) error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove cache file")
	}
	return nil
}

func (f *File) Close() error { return nil }
