// Package redis keeps per-kind default widget settings in Redis so that
// several daemons can share them.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/redis/go-redis/v9"
)

const kindsSet = "signalflow:kinds"

// SettingsStore maps a widget kind to the settings new nodes of that kind
// start with.
type SettingsStore struct {
	client *redis.Client
}

func NewSettingsStore(client *redis.Client) *SettingsStore {
	return &SettingsStore{client: client}
}

func (s *SettingsStore) makeKey(kind string) string {
	return fmt.Sprintf("signalflow:settings:%s", kind)
}

// Set replaces the defaults for kind.
func (s *SettingsStore) Set(ctx context.Context, kind string, settings map[string]any) error {
	key := s.makeKey(kind)
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings for %s: %w", kind, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to SET key %s: %w", key, err)
	}
	if err := s.client.SAdd(ctx, kindsSet, kind).Err(); err != nil {
		return fmt.Errorf("failed to SADD %s to %s: %w", kind, kindsSet, err)
	}
	return nil
}

// Get returns the defaults for kind. Lookup failures are logged and
// reported as missing.
func (s *SettingsStore) Get(ctx context.Context, kind string) (map[string]any, bool) {
	key := s.makeKey(kind)
	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Failed to GET key %s: %v", key, err)
		}
		return nil, false
	}
	var settings map[string]any
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		log.Printf("Failed to unmarshal settings from key %s: %v", key, err)
		return nil, false
	}
	return settings, true
}

// Kinds lists the kinds with stored defaults.
func (s *SettingsStore) Kinds(ctx context.Context) []string {
	kinds, err := s.client.SMembers(ctx, kindsSet).Result()
	if err != nil {
		log.Printf("Failed to SMEMBERS %s: %v", kindsSet, err)
		return nil
	}
	sort.Strings(kinds)
	return kinds
}

// All returns every stored default keyed by kind.
func (s *SettingsStore) All(ctx context.Context) map[string]map[string]any {
	kinds := s.Kinds(ctx)
	out := make(map[string]map[string]any, len(kinds))
	if len(kinds) == 0 {
		return out
	}
	keys := make([]string, len(kinds))
	for i, k := range kinds {
		keys[i] = s.makeKey(k)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		log.Printf("Failed to MGET keys: %v", err)
		return out
	}
	for i, val := range values {
		str, ok := val.(string)
		if !ok {
			continue
		}
		var settings map[string]any
		if err := json.Unmarshal([]byte(str), &settings); err != nil {
			log.Printf("Failed to unmarshal settings for key %s: %v", keys[i], err)
			continue
		}
		out[kinds[i]] = settings
	}
	return out
}

// Delete removes the defaults for kind.
func (s *SettingsStore) Delete(ctx context.Context, kind string) error {
	if err := s.client.Del(ctx, s.makeKey(kind)).Err(); err != nil {
		return fmt.Errorf("failed to DEL defaults for %s: %w", kind, err)
	}
	return s.client.SRem(ctx, kindsSet, kind).Err()
}

// Clear removes every stored default.
func (s *SettingsStore) Clear(ctx context.Context) {
	kinds, err := s.client.SMembers(ctx, kindsSet).Result()
	if err != nil {
		log.Printf("Failed to SMEMBERS %s during clear: %v", kindsSet, err)
		return
	}
	for _, k := range kinds {
		if err := s.client.Del(ctx, s.makeKey(k)).Err(); err != nil {
			log.Printf("Failed to DEL defaults for %s: %v", k, err)
		}
	}
	if err := s.client.Del(ctx, kindsSet).Err(); err != nil {
		log.Printf("Failed to DEL set %s: %v", kindsSet, err)
	}
}
