// Package redis is a journal store on Redis.
//
// Each entry is a JSON string under {prefix}attempt:{transaction id}. The ids
// of unresolved entries are kept in the sorted set {prefix}unresolved, scored
// by last update time, so that the oldest can be listed first.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"payflow/pkg/journal"

	"github.com/redis/rueidis"
)

// Store implements journal.Store on Redis.
type Store struct {
	client rueidis.Client
	name   string
	config Config
}

// Config configures a Store.
type Config struct {
	Name string
	// Addr is the Redis server address for single node mode.
	Addr string
	// ClusterAddrs enables cluster mode when set.
	ClusterAddrs []string
	Username     string
	Password     string
	DB           int
	KeyPrefix    string
	// TTL of resolved entries. Unresolved entries never expire. Zero keeps
	// resolved entries forever.
	ResolvedTTL  time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a configuration for a local Redis.
func DefaultConfig() Config {
	return Config{
		Name:         "redis",
		Addr:         "localhost:6379",
		KeyPrefix:    "payflow:",
		ResolvedTTL:  30 * 24 * time.Hour,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// New connects to Redis and verifies the connection.
func New(config Config) (*Store, error) {
	if config.Name == "" {
		config.Name = "redis"
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	var initAddress []string
	if len(config.ClusterAddrs) > 0 {
		initAddress = config.ClusterAddrs
	} else if config.Addr != "" {
		initAddress = []string{config.Addr}
	} else {
		return nil, fmt.Errorf("redis: no addresses configured (set Addr or ClusterAddrs)")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &Store{
		client: client,
		name:   config.Name,
		config: config,
	}, nil
}

func (s *Store) entryKey(transactionID string) string {
	return s.config.KeyPrefix + "attempt:" + transactionID
}

func (s *Store) unresolvedKey() string {
	return s.config.KeyPrefix + "unresolved"
}

// Record implements journal.Recorder.
func (s *Store) Record(ctx context.Context, e journal.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	prev, err := s.Get(ctx, e.TransactionID)
	if err != nil && !errors.Is(err, journal.ErrNotFound) {
		return err
	}
	e = journal.Merge(prev, e)

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis record: failed to marshal: %w", err)
	}

	key := s.entryKey(e.TransactionID)
	cmds := make([]rueidis.Completed, 0, 2)
	if e.Resolved {
		if s.config.ResolvedTTL > 0 {
			cmds = append(cmds, s.client.B().Set().Key(key).Value(string(data)).Ex(s.config.ResolvedTTL).Build())
		} else {
			cmds = append(cmds, s.client.B().Set().Key(key).Value(string(data)).Build())
		}
		cmds = append(cmds, s.client.B().Zrem().Key(s.unresolvedKey()).Member(e.TransactionID).Build())
	} else {
		cmds = append(cmds, s.client.B().Set().Key(key).Value(string(data)).Build())
		score := float64(e.UpdatedAt.UnixMilli())
		cmds = append(cmds, s.client.B().Zadd().Key(s.unresolvedKey()).ScoreMember().ScoreMember(score, e.TransactionID).Build())
	}

	var errs []error
	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("redis record %s: %w", e.TransactionID, errors.Join(errs...))
	}
	return nil
}

// Get implements journal.Store.
func (s *Store) Get(ctx context.Context, transactionID string) (journal.Entry, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(s.entryKey(transactionID)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return journal.Entry{}, journal.ErrNotFound
		}
		return journal.Entry{}, fmt.Errorf("redis get: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return journal.Entry{}, fmt.Errorf("redis get: failed to read response: %w", err)
	}

	var e journal.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return journal.Entry{}, fmt.Errorf("redis get: failed to unmarshal: %w", err)
	}
	return e, nil
}

// Unresolved implements journal.Store.
func (s *Store) Unresolved(ctx context.Context, limit int) ([]journal.Entry, error) {
	stop := "-1"
	if limit > 0 {
		stop = strconv.Itoa(limit - 1)
	}

	resp := s.client.Do(ctx, s.client.B().Zrange().Key(s.unresolvedKey()).Min("0").Max(stop).Build())
	ids, err := resp.AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("redis unresolved: %w", err)
	}
	if len(ids) == 0 {
		return []journal.Entry{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.entryKey(id)
	}

	// Separate GETs rather than MGET: keys may live in different cluster slots.
	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = s.client.B().Get().Key(key).Build()
	}

	entries := make([]journal.Entry, 0, len(ids))
	var errs []error
	for i, resp := range s.client.DoMulti(ctx, cmds...) {
		data, err := resp.AsBytes()
		if err != nil {
			if !rueidis.IsRedisNil(err) {
				errs = append(errs, fmt.Errorf("entry %s: %w", ids[i], err))
			}
			continue
		}

		var e journal.Entry
		if err := json.Unmarshal(data, &e); err != nil {
			errs = append(errs, fmt.Errorf("entry %s: failed to unmarshal: %w", ids[i], err))
			continue
		}
		entries = append(entries, e)
	}

	if len(errs) > 0 {
		return entries, errors.Join(errs...)
	}
	return entries, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Name implements journal.Store.
func (s *Store) Name() string {
	return s.name
}

// Close implements journal.Store.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}
