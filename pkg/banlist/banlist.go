// Package banlist persists banned identity tokens. Bans outlive the process:
// the file store writes a state file on every change, and the Redis store
// shares one ban set across gateway instances.
package banlist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry records one ban.
type Entry struct {
	Token    string    `json:"token"`
	Reason   string    `json:"reason"`
	BannedAt time.Time `json:"banned_at"`
}

// Store is the ban persistence backend.
type Store interface {
	Add(ctx context.Context, token, reason string) error
	Contains(ctx context.Context, token string) (bool, error)
	Remove(ctx context.Context, token string) error
	Count(ctx context.Context) (int, error)
}

// FileStore keeps bans in memory and mirrors them to a JSON state file. The
// file is rewritten atomically (write temp, rename) so a crash mid-save
// never truncates the ban list.
type FileStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
}

// NewFileStore loads (or creates) a file-backed store at path.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path:    path,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ban state: %w", err)
	}

	var state struct {
		Bans []Entry `json:"bans"`
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse ban state %s: %w", path, err)
	}
	for _, e := range state.Bans {
		fs.entries[e.Token] = e
	}
	return fs, nil
}

// save writes the state file. Caller holds the lock.
func (fs *FileStore) save() error {
	entries := make([]Entry, 0, len(fs.entries))
	for _, e := range fs.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Token < entries[j].Token })

	data, err := json.MarshalIndent(struct {
		Bans []Entry `json:"bans"`
	}{entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ban state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write ban state: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("replace ban state: %w", err)
	}
	return nil
}

// Add implements Store.
func (fs *FileStore) Add(_ context.Context, token, reason string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.entries[token] = Entry{Token: token, Reason: reason, BannedAt: time.Now().UTC()}
	return fs.save()
}

// Contains implements Store.
func (fs *FileStore) Contains(_ context.Context, token string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, ok := fs.entries[token]
	return ok, nil
}

// Remove implements Store.
func (fs *FileStore) Remove(_ context.Context, token string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.entries[token]; !ok {
		return nil
	}
	delete(fs.entries, token)
	return fs.save()
}

// Count implements Store.
func (fs *FileStore) Count(_ context.Context) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.entries), nil
}

// RedisStore keeps the ban set in Redis. Reasons live in a companion hash so
// membership checks stay a single SISMEMBER.
type RedisStore struct {
	client *redis.Client
}

const (
	redisBanSet     = "bouncer:bans"
	redisBanReasons = "bouncer:ban_reasons"
)

// NewRedisStore creates a Redis-backed ban store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Add implements Store.
func (rs *RedisStore) Add(ctx context.Context, token, reason string) error {
	pipe := rs.client.Pipeline()
	pipe.SAdd(ctx, redisBanSet, token)
	pipe.HSet(ctx, redisBanReasons, token, reason)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis ban add: %w", err)
	}
	return nil
}

// Contains implements Store.
func (rs *RedisStore) Contains(ctx context.Context, token string) (bool, error) {
	ok, err := rs.client.SIsMember(ctx, redisBanSet, token).Result()
	if err != nil {
		return false, fmt.Errorf("redis ban check: %w", err)
	}
	return ok, nil
}

// Remove implements Store.
func (rs *RedisStore) Remove(ctx context.Context, token string) error {
	pipe := rs.client.Pipeline()
	pipe.SRem(ctx, redisBanSet, token)
	pipe.HDel(ctx, redisBanReasons, token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis ban remove: %w", err)
	}
	return nil
}

// Count implements Store.
func (rs *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := rs.client.SCard(ctx, redisBanSet).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ban count: %w", err)
	}
	return int(n), nil
}
