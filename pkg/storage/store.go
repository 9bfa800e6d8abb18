package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("path not found")
)

// Driver defines the minimal view of a registry storage backend that the
// collector needs. Implementations can be local disk or S3-compatible object storage.
//
// 所有 path 都相对于存储根目录，使用 "/" 分隔
type Driver interface {
	// List 返回目录下直接子项的名字
	// 目录不存在时返回 ErrNotFound
	List(ctx context.Context, path string) ([]string, error)

	// Read 读取一个文件的全部内容
	// manifest 通常只有几 KB，所以这里直接返回 []byte
	Read(ctx context.Context, path string) ([]byte, error)

	// Delete 递归删除 path 下的所有内容
	// path 不存在不算错误 (上一轮可能已经删掉了)
	Delete(ctx context.Context, path string) error
}

// ReadError 表示目录或文件无法被列出/读取 (FilesystemReadError)
type ReadError struct {
	Op   string // "list" | "read" | "delete"
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// IsNotFound 判断错误链中是否包含 ErrNotFound
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
