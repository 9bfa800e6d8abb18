// Package fanout runs sibling tasks concurrently and joins them.
//
// Unlike errgroup.WithContext, a failing task does not cancel its siblings:
// every task runs to completion so the caller sees the complete error picture,
// then Wait reports all failures at once.
package fanout

import (
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

type Group struct {
	g    errgroup.Group
	mu   sync.Mutex
	errs []error
}

// Go 启动一个任务
func (g *Group) Go(fn func() error) {
	g.g.Go(func() error {
		if err := fn(); err != nil {
			g.mu.Lock()
			g.errs = append(g.errs, err)
			g.mu.Unlock()
			return err
		}
		return nil
	})
}

// Wait 等待所有任务结束，返回 errors.Join 后的全部错误
func (g *Group) Wait() error {
	_ = g.g.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return errors.Join(g.errs...)
}
