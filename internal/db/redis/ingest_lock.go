package redisdb

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	applog "knowbase/internal/platform/log"
)

// IngestLock 基于 Redis SETNX 的按文档 id 单飞锁。
// 同一内容（同一派生 id）并发入库时只放行第一个调用方，
// 避免对索引后端重复写入同一批 chunk。
type IngestLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIngestLock 创建入库锁
func NewIngestLock(client *redis.Client) *IngestLock {
	return &IngestLock{
		client: client,
		ttl:    30 * time.Second,
	}
}

// Acquire 尝试获取锁，已被持有时返回 false
func (l *IngestLock) Acquire(ctx context.Context, docID string) (bool, error) {
	key := lockKey(docID)
	acquired, err := l.client.SetNX(ctx, key, "locked", l.ttl).Result()
	if err != nil {
		applog.Warn("[Knowledge/IngestLock] Failed to acquire lock", "doc_id", docID, "error", err)
		return false, err
	}

	if acquired {
		applog.Debug("[Knowledge/IngestLock] Lock acquired", "doc_id", docID)
	} else {
		applog.Debug("[Knowledge/IngestLock] Lock already held", "doc_id", docID)
	}
	return acquired, nil
}

// Release 释放锁
func (l *IngestLock) Release(ctx context.Context, docID string) error {
	if err := l.client.Del(ctx, lockKey(docID)).Err(); err != nil {
		applog.Warn("[Knowledge/IngestLock] Failed to release lock", "doc_id", docID, "error", err)
		return err
	}
	applog.Debug("[Knowledge/IngestLock] Lock released", "doc_id", docID)
	return nil
}

func lockKey(docID string) string {
	return fmt.Sprintf("knowledge:ingest:lock:%s", docID)
}
