package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key pattern helpers
//
// All keys and the change channel are namespaced by room so multiple rooms
// can safely share one Redis server.
//
// Key pattern: drey:{room}:{kind}:{container_name}
// Channel pattern: drey:{room}:changes

// MapKey returns the Redis key for a shared map container.
func MapKey(room, name string) string {
	return fmt.Sprintf("drey:%s:map:%s", room, name)
}

// ArrayKey returns the Redis key for a shared array container.
func ArrayKey(room, name string) string {
	return fmt.Sprintf("drey:%s:array:%s", room, name)
}

// ChangesChannel returns the Pub/Sub channel carrying container change
// notifications for a room.
func ChangesChannel(room string) string {
	return fmt.Sprintf("drey:%s:changes", room)
}

// changeMessage is published after a container mutation settles so replica
// processes observing the same room can refresh their projections.
type changeMessage struct {
	Origin    string `json:"origin"`
	Kind      string `json:"kind"` // "map" or "array"
	Container string `json:"container"`
}

// RedisStore is the replicated Store implementation. Each shared map is a
// Redis hash and each shared array a Redis list, namespaced by room. After a
// transaction settles the store publishes one change message per dirty
// container; replica stores subscribed to the same room fan those out to
// their local observers.
//
// Only the authoritative reduction host writes. Replicas are read-only
// observers; multi-writer convergence is out of scope.
type RedisStore struct {
	rdb    *redis.Client
	room   string
	origin string // distinguishes our own published changes from replicas'
	pubsub *redis.PubSub

	mu       sync.Mutex
	maps     map[string]*redisMap
	arrays   map[string]*redisArray
	txnDepth int
	dirty    []*observers
	dirtyMsg []changeMessage
}

// NewRedisStore connects to Redis and starts the change subscription for the
// given room.
func NewRedisStore(opts *redis.Options, room string) (*RedisStore, error) {
	if room == "" {
		return nil, fmt.Errorf("room name cannot be empty")
	}

	s := &RedisStore{
		rdb:    redis.NewClient(opts),
		room:   room,
		origin: uuid.New().String(),
		maps:   make(map[string]*redisMap),
		arrays: make(map[string]*redisArray),
	}

	s.pubsub = s.rdb.Subscribe(context.Background(), ChangesChannel(room))
	go s.receiveChanges()

	return s, nil
}

// receiveChanges forwards change messages published by other processes to the
// local observers of the named container.
func (s *RedisStore) receiveChanges() {
	for msg := range s.pubsub.Channel() {
		var change changeMessage
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			log.Printf("[store] room=%s bad change message: %v", s.room, err)
			continue
		}
		if change.Origin == s.origin {
			// Our own write; local observers were already notified at flush.
			continue
		}

		s.mu.Lock()
		var obs *observers
		switch change.Kind {
		case "map":
			if m, ok := s.maps[change.Container]; ok {
				obs = &m.obs
			}
		case "array":
			if a, ok := s.arrays[change.Container]; ok {
				obs = &a.obs
			}
		}
		s.mu.Unlock()

		if obs != nil {
			obs.notify()
		}
	}
}

// SharedMap returns the map container with the given name, creating it on
// first use.
func (s *RedisStore) SharedMap(name string) SharedMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.maps[name]
	if !ok {
		m = &redisMap{store: s, name: name, key: MapKey(s.room, name)}
		s.maps[name] = m
	}
	return m
}

// SharedArray returns the array container with the given name, creating it on
// first use.
func (s *RedisStore) SharedArray(name string) SharedArray {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.arrays[name]
	if !ok {
		a = &redisArray{store: s, name: name, key: ArrayKey(s.room, name)}
		s.arrays[name] = a
	}
	return a
}

// Transaction runs fn, then notifies local observers and publishes one change
// message per container fn mutated.
func (s *RedisStore) Transaction(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	s.txnDepth++
	s.mu.Unlock()

	err := fn()

	s.mu.Lock()
	s.txnDepth--
	flush := s.txnDepth == 0
	s.mu.Unlock()

	if flush {
		s.flush(ctx)
	}
	return err
}

// Ping verifies Redis connectivity. Useful for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close stops the change subscription and closes the Redis connection.
func (s *RedisStore) Close() error {
	if err := s.pubsub.Close(); err != nil {
		return err
	}
	return s.rdb.Close()
}

func (s *RedisStore) flagChange(ctx context.Context, obs *observers, msg changeMessage) {
	s.mu.Lock()
	already := false
	for _, d := range s.dirty {
		if d == obs {
			already = true
			break
		}
	}
	if !already {
		s.dirty = append(s.dirty, obs)
		s.dirtyMsg = append(s.dirtyMsg, msg)
	}
	flush := s.txnDepth == 0
	s.mu.Unlock()

	if flush {
		s.flush(ctx)
	}
}

func (s *RedisStore) flush(ctx context.Context) {
	s.mu.Lock()
	dirty := s.dirty
	msgs := s.dirtyMsg
	s.dirty = nil
	s.dirtyMsg = nil
	s.mu.Unlock()

	for i, obs := range dirty {
		obs.notify()

		payload, err := json.Marshal(msgs[i])
		if err != nil {
			continue
		}
		if err := s.rdb.Publish(ctx, ChangesChannel(s.room), payload).Err(); err != nil {
			log.Printf("[store] room=%s failed to publish change for %s %q: %v",
				s.room, msgs[i].Kind, msgs[i].Container, err)
		}
	}
}

//
// map container
//

type redisMap struct {
	store *RedisStore
	name  string
	key   string
	obs   observers
}

func (m *redisMap) Name() string { return m.name }

func (m *redisMap) changed(ctx context.Context) {
	m.store.flagChange(ctx, &m.obs, changeMessage{
		Origin:    m.store.origin,
		Kind:      "map",
		Container: m.name,
	})
}

func (m *redisMap) Get(ctx context.Context, key string, out any) (bool, error) {
	raw, err := m.store.rdb.HGet(ctx, m.key, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read map %q key %q: %w", m.name, key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return true, fmt.Errorf("failed to decode map %q key %q: %w", m.name, key, err)
	}
	return true, nil
}

func (m *redisMap) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize map %q key %q: %w", m.name, key, err)
	}
	if err := m.store.rdb.HSet(ctx, m.key, key, raw).Err(); err != nil {
		return fmt.Errorf("failed to write map %q key %q: %w", m.name, key, err)
	}
	m.changed(ctx)
	return nil
}

func (m *redisMap) Delete(ctx context.Context, key string) error {
	removed, err := m.store.rdb.HDel(ctx, m.key, key).Result()
	if err != nil {
		return fmt.Errorf("failed to delete map %q key %q: %w", m.name, key, err)
	}
	if removed > 0 {
		m.changed(ctx)
	}
	return nil
}

func (m *redisMap) Keys(ctx context.Context) ([]string, error) {
	keys, err := m.store.rdb.HKeys(ctx, m.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list map %q keys: %w", m.name, err)
	}
	return keys, nil
}

func (m *redisMap) Copy(ctx context.Context) (map[string]json.RawMessage, error) {
	all, err := m.store.rdb.HGetAll(ctx, m.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot map %q: %w", m.name, err)
	}
	snapshot := make(map[string]json.RawMessage, len(all))
	for k, v := range all {
		snapshot[k] = json.RawMessage(v)
	}
	return snapshot, nil
}

func (m *redisMap) Observe(fn func()) (cancel func()) {
	return m.obs.add(fn)
}

//
// array container
//

type redisArray struct {
	store *RedisStore
	name  string
	key   string
	obs   observers
}

func (a *redisArray) Name() string { return a.name }

func (a *redisArray) changed(ctx context.Context) {
	a.store.flagChange(ctx, &a.obs, changeMessage{
		Origin:    a.store.origin,
		Kind:      "array",
		Container: a.name,
	})
}

func (a *redisArray) Push(ctx context.Context, items ...any) error {
	if len(items) == 0 {
		return nil
	}
	raws := make([]any, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to serialize array %q item: %w", a.name, err)
		}
		raws = append(raws, raw)
	}
	if err := a.store.rdb.RPush(ctx, a.key, raws...).Err(); err != nil {
		return fmt.Errorf("failed to push to array %q: %w", a.name, err)
	}
	a.changed(ctx)
	return nil
}

func (a *redisArray) Get(ctx context.Context, i int, out any) (bool, error) {
	raw, err := a.store.rdb.LIndex(ctx, a.key, int64(i)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read array %q index %d: %w", a.name, i, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return true, fmt.Errorf("failed to decode array %q index %d: %w", a.name, i, err)
	}
	return true, nil
}

func (a *redisArray) Len(ctx context.Context) (int, error) {
	n, err := a.store.rdb.LLen(ctx, a.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to measure array %q: %w", a.name, err)
	}
	return int(n), nil
}

func (a *redisArray) DeleteMatching(ctx context.Context, match func(json.RawMessage) bool) error {
	items, err := a.store.rdb.LRange(ctx, a.key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read array %q: %w", a.name, err)
	}

	kept := make([]any, 0, len(items))
	removed := 0
	for _, item := range items {
		if match(json.RawMessage(item)) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	if removed == 0 {
		return nil
	}

	// Single authoritative writer per room, so delete-and-rewrite is safe.
	pipe := a.store.rdb.TxPipeline()
	pipe.Del(ctx, a.key)
	if len(kept) > 0 {
		pipe.RPush(ctx, a.key, kept...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to rewrite array %q: %w", a.name, err)
	}
	a.changed(ctx)
	return nil
}

func (a *redisArray) Copy(ctx context.Context) ([]json.RawMessage, error) {
	items, err := a.store.rdb.LRange(ctx, a.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot array %q: %w", a.name, err)
	}
	snapshot := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		snapshot = append(snapshot, json.RawMessage(item))
	}
	return snapshot, nil
}

func (a *redisArray) Observe(fn func()) (cancel func()) {
	return a.obs.add(fn)
}
