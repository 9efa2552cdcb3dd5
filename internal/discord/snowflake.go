package discord

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Epoch is the platform snowflake epoch (2015-01-01T00:00:00Z) in ms.
const Epoch int64 = 1420070400000

// EmbeddedTimestamp decodes the creation instant carried in the high bits
// of a platform snowflake id.
func EmbeddedTimestamp(id string) (time.Time, error) {
	sf, err := snowflake.ParseString(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse snowflake %q: %w", id, err)
	}
	if sf.Int64() <= 0 {
		return time.Time{}, fmt.Errorf("parse snowflake %q: not positive", id)
	}
	ms := (sf.Int64() >> 22) + Epoch
	return time.UnixMilli(ms).UTC(), nil
}

// TokenExpired reports whether an interaction token minted with id is older
// than ttl at now. Ids that cannot be decoded are treated as expired.
func TokenExpired(id string, ttl time.Duration, now time.Time) bool {
	created, err := EmbeddedTimestamp(id)
	if err != nil {
		return true
	}
	return now.Sub(created) >= ttl
}
