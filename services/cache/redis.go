package cachesvc

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/report"
)

// Client is the subset of redis commands the report cache runs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// ReportCache keeps encoded reports in redis.
// Each student has a version counter; invalidation bumps it so stale entries are never read again
// and expire on their own.
type ReportCache struct {
	client Client
	ttl    time.Duration
}

var _ report.Cache = (*ReportCache)(nil)

func NewReportCache(client Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

// NewRedisClient connects to conf.Redis.Addr and checks the connection.
func NewRedisClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

func versionKey(studentID int) string {
	return "report:v:" + strconv.Itoa(studentID)
}

func dataKey(key report.Key, version int64) string {
	return fmt.Sprintf("report:%s:%d", key, version)
}

func (c *ReportCache) version(ctx context.Context, studentID int) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(studentID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

func (c *ReportCache) Get(ctx context.Context, key report.Key) ([]byte, int64, bool, error) {
	v, err := c.version(ctx, key.StudentID)
	if err != nil {
		return nil, 0, false, errors.Wrap(err, "reading report version")
	}
	data, err := c.client.Get(ctx, dataKey(key, v)).Bytes()
	switch {
	case err == redis.Nil:
		return nil, v, false, nil
	case err != nil:
		return nil, v, false, errors.Wrap(err, "reading report")
	}
	return data, v, true, nil
}

// Set stores data under version as returned by Get. Once the student has been invalidated
// past it, the entry is unreachable.
func (c *ReportCache) Set(ctx context.Context, key report.Key, version int64, data []byte) error {
	return errors.Wrap(c.client.Set(ctx, dataKey(key, version), data, c.ttl).Err(), "writing report")
}

func (c *ReportCache) InvalidateStudent(ctx context.Context, studentID int) error {
	return errors.Wrap(c.client.Incr(ctx, versionKey(studentID)).Err(), "bumping report version")
}
