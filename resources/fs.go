package resources

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"strings"
)

// FS 基于 fs.FS 的只读存储
type FS struct {
	name string
	fsys fs.FS
}

// NewFS 创建 fs.FS 存储，可用于 embed.FS
func NewFS(name string, fsys fs.FS) *FS {
	return &FS{name: name, fsys: fsys}
}

// NewDir 创建目录存储
func NewDir(root string) *FS {
	return NewFS("dir:"+root, os.DirFS(root))
}

func (s *FS) Name() string { return s.name }

func (s *FS) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := path.Clean(strings.TrimPrefix(name, "/"))
	if !fs.ValidPath(p) {
		return nil, ErrNotFound
	}
	data, err := fs.ReadFile(s.fsys, p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}
