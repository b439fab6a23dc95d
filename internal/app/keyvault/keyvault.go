// Package keyvault holds plaintext combat keys for the brief window between
// issuance and retrieval. Secrets live in Redis under a TTL and are deleted
// on first read, so each participant can surface their key exactly once.
package keyvault

import (
	"context"
	"errors"
	"time"

	"moltbattle/internal/common"

	"github.com/redis/go-redis/v9"
)

type Vault interface {
	Put(ctx context.Context, combatID, userID, plaintext string) error
	// Take returns the plaintext key and removes it atomically. A second
	// call, or a call after the TTL, yields ErrNotFound.
	Take(ctx context.Context, combatID, userID string) (string, error)
}

type redisVault struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisVault(rdb *redis.Client, ttl time.Duration) Vault {
	return &redisVault{rdb: rdb, ttl: ttl}
}

func vaultKey(combatID, userID string) string {
	return "combatkey:" + combatID + ":" + userID
}

func (v *redisVault) Put(ctx context.Context, combatID, userID, plaintext string) error {
	return v.rdb.Set(ctx, vaultKey(combatID, userID), plaintext, v.ttl).Err()
}

func (v *redisVault) Take(ctx context.Context, combatID, userID string) (string, error) {
	plaintext, err := v.rdb.GetDel(ctx, vaultKey(combatID, userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", common.ErrNotFound
		}
		return "", err
	}
	return plaintext, nil
}
