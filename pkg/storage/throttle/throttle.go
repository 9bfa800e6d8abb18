package throttle

import (
	"context"

	"regsweep/pkg/storage"

	"golang.org/x/sync/semaphore"
)

// Driver 是一个装饰器，限制底层 storage.Driver 同时进行中的调用数量
// 扫描阶段会为每个目录起一个 goroutine，真正的 I/O 在这里排队
type Driver struct {
	backend storage.Driver
	sem     *semaphore.Weighted
}

var _ storage.Driver = (*Driver)(nil)

// New 返回限流后的 Driver；limit <= 0 时直接返回 backend
func New(backend storage.Driver, limit int) storage.Driver {
	if limit <= 0 {
		return backend
	}
	return &Driver{
		backend: backend,
		sem:     semaphore.NewWeighted(int64(limit)),
	}
}

func (d *Driver) List(ctx context.Context, path string) ([]string, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.sem.Release(1)
	return d.backend.List(ctx, path)
}

func (d *Driver) Read(ctx context.Context, path string) ([]byte, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.sem.Release(1)
	return d.backend.Read(ctx, path)
}

func (d *Driver) Delete(ctx context.Context, path string) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.sem.Release(1)
	return d.backend.Delete(ctx, path)
}
