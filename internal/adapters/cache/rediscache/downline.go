// Package rediscache は階層スコープ計算結果の Redis キャッシュを提供します。
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "revenue-claims:downline:"

// DownlineCache は部下集合を JSON 配列として Redis に保持します。
// 上長関係の変更は TTL 経過後に反映されます。
type DownlineCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewDownlineCache は DownlineCache を生成します。client が nil の場合は nil を返します。
// nil の *DownlineCache は常にキャッシュミスとして振る舞います。
func NewDownlineCache(client redis.Cmdable, ttl time.Duration) *DownlineCache {
	if client == nil {
		return nil
	}
	return &DownlineCache{client: client, ttl: ttl}
}

// GetDownline はキャッシュ済みの部下集合を返します。未登録なら ok=false です。
func (c *DownlineCache) GetDownline(ctx context.Context, companyID, profileID string) ([]string, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, key(companyID, profileID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false, fmt.Errorf("decode downline: %w", err)
	}
	return ids, true, nil
}

// SetDownline は部下集合を TTL 付きで保存します。空集合も保存します。
func (c *DownlineCache) SetDownline(ctx context.Context, companyID, profileID string, ids []string) error {
	if c == nil {
		return nil
	}
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode downline: %w", err)
	}
	if err := c.client.Set(ctx, key(companyID, profileID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func key(companyID, profileID string) string {
	return keyPrefix + companyID + ":" + profileID
}
