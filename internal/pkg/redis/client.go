// internal/pkg/redis/client.go
package redis

import (
	"context"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 的通用客户端
// addrs 为单节点时使用普通客户端，多节点时走 cluster 模式
type Client struct {
	client goredis.UniversalClient
}

// NewClient 创建并校验一个新的 redis 客户端
// addrs 格式为 "host1:port1,host2:port2"
func NewClient(addrs string) (*Client, error) {
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs: strings.Split(addrs, ","),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Client{client: client}, nil
}

// GetClient 暴露底层客户端，供需要 pipeline 等高级能力的调用方使用
func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

// Get 读取一个 key，key 不存在时返回 ("", false, nil)
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set 写入一个带过期时间的 key
func (c *Client) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	return c.client.Set(ctx, key, val, ttl).Err()
}

// Del 删除若干 key
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// Close 关闭底层连接
func (c *Client) Close() error {
	return c.client.Close()
}
