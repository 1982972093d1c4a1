// Package pool 提供一个有界 worker 池，把阻塞型调用（文件 IO、向量计算）
// 移出调用方，使单个慢请求不会拖住共享同一调度器的其他调用。
package pool

import (
	"context"
	"sync"
)

type task struct {
	fn   func() error
	done chan error
}

// Pool 有界 worker 池
type Pool struct {
	tasks chan task
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// New 创建并启动 worker 池
func New(workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}

	p := &Pool{
		tasks: make(chan task, workers),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		t.done <- t.fn()
	}
}

// Submit 提交任务并等待完成。
// ctx 取消时停止等待并返回 ctx 错误；已开始执行的任务不会被中断或回滚。
func (p *Pool) Submit(ctx context.Context, fn func() error) error {
	t := task{fn: fn, done: make(chan error, 1)}

	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 关闭任务队列并等待所有 worker 退出。
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}
