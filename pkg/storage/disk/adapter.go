package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"regsweep/pkg/storage"
)

// Adapter 实现了 storage.Driver 接口
type Adapter struct {
	rootPath string // 比如: /var/lib/registry/docker/registry/v2
}

var _ storage.Driver = (*Adapter)(nil)

// NewAdapter 创建一个新的磁盘存储适配器
// 与写入方不同，GC 不负责创建目录：根目录不存在就是配置错误
func NewAdapter(root string) (*Adapter, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat storage root: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", root)
	}
	return &Adapter{rootPath: root}, nil
}

// Root 返回物理根目录
func (s *Adapter) Root() string { return s.rootPath }

// resolve 把相对路径转换为物理路径
func (s *Adapter) resolve(p string) string {
	return filepath.Join(s.rootPath, filepath.FromSlash(p))
}

func (s *Adapter) List(ctx context.Context, p string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.resolve(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list %s: %w", p, storage.ErrNotFound)
	}
	if err != nil {
		return nil, &storage.ReadError{Op: "list", Path: p, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (s *Adapter) Read(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.resolve(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", p, storage.ErrNotFound)
	}
	if err != nil {
		return nil, &storage.ReadError{Op: "read", Path: p, Err: err}
	}
	return data, nil
}

// Delete 等价于 rm -rf
func (s *Adapter) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := s.resolve(p)
	// 防御：绝不删除根目录本身
	if filepath.Clean(target) == filepath.Clean(s.rootPath) {
		return &storage.ReadError{Op: "delete", Path: p, Err: errors.New("refusing to delete storage root")}
	}

	if err := os.RemoveAll(target); err != nil {
		return &storage.ReadError{Op: "delete", Path: p, Err: err}
	}
	return nil
}
