package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestSubmitReturnsTaskError 任务错误原样返回给提交方
func TestSubmitReturnsTaskError(t *testing.T) {
	p := New(2)
	defer p.Close()

	wantErr := errors.New("task failed")
	err := p.Submit(context.Background(), func() error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected task error, got %v", err)
	}

	if err := p.Submit(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("expected nil for succeeding task, got %v", err)
	}
}

// TestBoundedConcurrency 同时运行的任务数不超过 worker 数
func TestBoundedConcurrency(t *testing.T) {
	const workers = 3
	p := New(workers)
	defer p.Close()

	var running, peak int64
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Submit(context.Background(), func() error {
				n := atomic.AddInt64(&running, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&peak); got > workers {
		t.Fatalf("expected at most %d concurrent tasks, observed %d", workers, got)
	}
}

// TestSubmitContextCancel ctx 取消时 Submit 停止等待
func TestSubmitContextCancel(t *testing.T) {
	p := New(1)
	defer p.Close()

	block := make(chan struct{})
	go p.Submit(context.Background(), func() error {
		<-block
		return nil
	})
	time.Sleep(10 * time.Millisecond) // 让阻塞任务占住唯一 worker

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Submit(ctx, func() error {
		<-block
		return nil
	})
	close(block)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Submit did not return promptly after cancel: %v", elapsed)
	}
}

// TestCloseIdempotent Close 可以安全调用多次
func TestCloseIdempotent(t *testing.T) {
	p := New(2)
	p.Close()
	p.Close()
}
