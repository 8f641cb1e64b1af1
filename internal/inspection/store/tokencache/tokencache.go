// Package tokencache maps invitation tokens to signer keys in Redis. Tokens
// never appear raw in key space: keys carry a BLAKE2b digest.
package tokencache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	id "habitat/pkg/domain"
)

const keyPrefix = "inspection:token:"

// Cache remembers which (inspection, profile) a token belongs to. Tokens are
// immutable once issued, so entries never go stale; the TTL only bounds memory.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func New(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func key(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Lookup returns ok=false on a miss.
func (c *Cache) Lookup(ctx context.Context, token string) (id.InspectionID, id.ProfileID, bool, error) {
	val, err := c.client.Get(ctx, key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return id.InspectionID{}, id.ProfileID{}, false, nil
	}
	if err != nil {
		return id.InspectionID{}, id.ProfileID{}, false, fmt.Errorf("token cache get: %w", err)
	}
	rawInspection, rawProfile, found := strings.Cut(val, ":")
	if !found {
		return id.InspectionID{}, id.ProfileID{}, false, nil
	}
	inspectionID, err := id.ParseInspectionID(rawInspection)
	if err != nil {
		return id.InspectionID{}, id.ProfileID{}, false, nil
	}
	profileID, err := id.ParseProfileID(rawProfile)
	if err != nil {
		return id.InspectionID{}, id.ProfileID{}, false, nil
	}
	return inspectionID, profileID, true, nil
}

func (c *Cache) Remember(ctx context.Context, token string, inspectionID id.InspectionID, profileID id.ProfileID) error {
	val := inspectionID.String() + ":" + profileID.String()
	if err := c.client.Set(ctx, key(token), val, c.ttl).Err(); err != nil {
		return fmt.Errorf("token cache set: %w", err)
	}
	return nil
}
