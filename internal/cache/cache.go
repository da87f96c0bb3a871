// Package cache stores screening outputs keyed by their inputs. Screening is
// deterministic, so identical inputs can reuse a stored output.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-screen/internal/proximity"
	"github.com/sells-group/parcel-screen/internal/risk"
)

// Cache stores opaque payloads by key. Get reports a miss with ok == false
// and a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (payload []byte, ok bool, err error)
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Close() error
}

// Key derives a cache key from everything that determines a screening
// output: boundary, reference point, candidates (in order), ladder, and the
// projection strategy name.
func Key(in proximity.Input, projection string) (string, error) {
	payload := struct {
		Version    int          `json:"v"`
		Projection string       `json:"projection"`
		Boundary   [][2]string  `json:"boundary"`
		Reference  [2]string    `json:"reference"`
		Sites      []keySite    `json:"sites"`
		Ladder     *risk.Ladder `json:"ladder"`
	}{
		Version:    1,
		Projection: projection,
		Reference:  [2]string{formatCoord(in.Reference.Lat), formatCoord(in.Reference.Lng)},
		Ladder:     in.Ladder,
	}
	for _, v := range in.Boundary {
		payload.Boundary = append(payload.Boundary, [2]string{formatCoord(v.Lat), formatCoord(v.Lng)})
	}
	for _, c := range in.Candidates {
		payload.Sites = append(payload.Sites, keySite{
			ID:    c.ID,
			Lat:   formatCoord(c.Point.Lat),
			Lng:   formatCoord(c.Point.Lng),
			Attrs: c.Attributes,
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrap(err, "cache: marshal key")
	}
	sum := sha256.Sum256(data)
	return "screen:" + hex.EncodeToString(sum[:]), nil
}

type keySite struct {
	ID    string            `json:"id"`
	Lat   string            `json:"lat"`
	Lng   string            `json:"lng"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// formatCoord renders coordinates exactly, NaN included, which plain JSON
// float encoding rejects.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Nop is a cache that never stores anything.
type Nop struct{}

// Get implements Cache.
func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Put implements Cache.
func (Nop) Put(context.Context, string, []byte, time.Duration) error { return nil }

// Close implements Cache.
func (Nop) Close() error { return nil }
