package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"kata-board/domain"
)

const (
	projectsCacheKey = "projects"
	// projectsGenKey is bumped on every write. A read-through only stores its
	// result when the generation it started with is still current.
	projectsGenKey = "projects:gen"
)

var errStaleRead = errors.New("cache generation changed during read")

type backend interface {
	ListProjects(ctx context.Context) ([]domain.Project, error)
	GetProject(ctx context.Context, key string) (domain.Project, error)
	CreateProject(ctx context.Context, p domain.Project) error
	UpdateProject(ctx context.Context, key string, upd domain.ProjectUpdate) error
	DeleteProject(ctx context.Context, key string) error
}

// Cache wraps a project backend with Redis-backed caching for read operations.
// Writes go straight to the backend and evict the affected keys.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var projects []domain.Project
	if c.load(ctx, projectsCacheKey, &projects) {
		return projects, nil
	}
	gen, ok := c.generation(ctx)
	projects, err := c.base.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		c.store(ctx, projectsCacheKey, projects, gen)
	}
	return projects, nil
}

func (c *Cache) GetProject(ctx context.Context, key string) (domain.Project, error) {
	var p domain.Project
	if c.load(ctx, projectCacheKey(key), &p) {
		return p, nil
	}
	gen, ok := c.generation(ctx)
	p, err := c.base.GetProject(ctx, key)
	if err != nil {
		return domain.Project{}, err
	}
	if ok {
		c.store(ctx, projectCacheKey(key), p, gen)
	}
	return p, nil
}

func (c *Cache) CreateProject(ctx context.Context, p domain.Project) error {
	if err := c.base.CreateProject(ctx, p); err != nil {
		return err
	}
	c.evict(ctx, p.Key)
	return nil
}

// UpdateProject evicts even when the write fails, the stored state is unknown then.
func (c *Cache) UpdateProject(ctx context.Context, key string, upd domain.ProjectUpdate) error {
	err := c.base.UpdateProject(ctx, key, upd)
	c.evict(ctx, key)
	return err
}

func (c *Cache) DeleteProject(ctx context.Context, key string) error {
	err := c.base.DeleteProject(ctx, key)
	c.evict(ctx, key)
	return err
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) generation(ctx context.Context) (string, bool) {
	if c.redis == nil {
		return "", false
	}
	gen, err := c.redis.Get(ctx, projectsGenKey).Result()
	if err != nil && err != redis.Nil {
		return "", false
	}
	return gen, true
}

// store writes v under key unless a write bumped the generation since gen was read.
func (c *Cache) store(ctx context.Context, key string, v any, gen string) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, projectsGenKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return errStaleRead
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, projectsGenKey)
}

func (c *Cache) evict(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, projectsGenKey)
		pipe.Del(ctx, projectsCacheKey, projectCacheKey(key))
		return nil
	})
}

func projectCacheKey(key string) string {
	return "project:" + key
}
