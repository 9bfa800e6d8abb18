package report

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	URL     string // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	Key     string // 报告列表的 key
	History int    // 保留的报告数量
}

const (
	DefaultRedisKey     = "regsweep:reports"
	DefaultRedisHistory = 100
)

// RedisSink 把报告推入一个有长度上限的列表，并在 <key>:events 上广播报告 ID
// 只保存周期的结果，从不缓存存储状态：每个周期都必须从磁盘重新读取
type RedisSink struct {
	client  *redis.Client
	key     string
	history int64
}

func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisSinkWithClient(client, cfg.Key, cfg.History), nil
}

func NewRedisSinkWithClient(client *redis.Client, key string, history int) *RedisSink {
	if key == "" {
		key = DefaultRedisKey
	}
	if history <= 0 {
		history = DefaultRedisHistory
	}
	return &RedisSink{client: client, key: key, history: int64(history)}
}

func (s *RedisSink) eventsChannel() string { return s.key + ":events" }

func (s *RedisSink) Publish(ctx context.Context, r *Report) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}

	// LPUSH + LTRIM 放在同一个事务里，列表不会超过上限
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, s.key, data)
		p.LTrim(ctx, s.key, 0, s.history-1)
		p.Publish(ctx, s.eventsChannel(), r.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish report: %w", err)
	}
	return nil
}

// Recent 返回最近 n 份报告，最新的在前
func (s *RedisSink) Recent(ctx context.Context, n int) ([]*Report, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read reports: %w", err)
	}

	out := make([]*Report, 0, len(raw))
	for _, item := range raw {
		r, err := Decode([]byte(item))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RedisSink) Close() error { return s.client.Close() }
