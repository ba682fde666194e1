package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nunatak-io/icewatch/pkg/archive"
	"github.com/nunatak-io/icewatch/pkg/timeseries"
)

// Redis key layout. Series points live in append-only lists, one per series
// key; cameras and per-camera images live in hashes so retransmissions
// overwrite in place. The two sets exist so loads can enumerate without
// SCAN.
const (
	redisKeySeries       = "icewatch:series:"      // + <kind>:<sub>, list of point JSON
	redisKeySeriesKeys   = "icewatch:series-keys"  // set of <kind>:<sub>
	redisKeyCameras      = "icewatch:cameras"      // hash: name -> camera JSON
	redisKeyImages       = "icewatch:images:"      // + <camera>, hash: RFC3339Nano -> record JSON
	redisKeyImageCameras = "icewatch:image-camera" // set of camera names with images
)

// RedisStore implements the Store interface using Redis as a backend.
// It gives the station durable state shared across restarts without
// running a relational database at the ground station.
type RedisStore struct {
	client *redis.Client
	mu     sync.RWMutex
}

// NewRedisStore creates a new Redis-backed store.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//
// Returns an error if the connection to Redis fails or if parameters are invalid.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client}, nil
}

// seriesMember encodes a series key as a set member. Kinds never contain a
// colon, so the first colon is an unambiguous separator even for sub-keys
// that contain one.
func seriesMember(key timeseries.Key) string {
	return string(key.Kind) + ":" + key.Sub
}

func parseSeriesMember(member string) (timeseries.Key, error) {
	kind, sub, ok := strings.Cut(member, ":")
	if !ok || kind == "" {
		return timeseries.Key{}, fmt.Errorf("malformed series member %q", member)
	}
	return timeseries.Key{Kind: timeseries.Kind(kind), Sub: sub}, nil
}

// AppendPoint pushes the point onto the series' list and records the series
// key in the enumeration set.
func (r *RedisStore) AppendPoint(ctx context.Context, key timeseries.Key, pt timeseries.Point) error {
	if key.Kind == "" {
		return errors.New("series kind cannot be empty")
	}

	data, err := json.Marshal(pt)
	if err != nil {
		return fmt.Errorf("failed to marshal point: %w", err)
	}

	member := seriesMember(key)
	if err := r.client.SAdd(ctx, redisKeySeriesKeys, member).Err(); err != nil {
		return fmt.Errorf("failed to record series key in redis: %w", err)
	}
	if err := r.client.RPush(ctx, redisKeySeries+member, data).Err(); err != nil {
		return fmt.Errorf("failed to append point in redis: %w", err)
	}
	return nil
}

// cameraRecord is the durable JSON shape of a camera. The interval is
// stored in whole seconds, matching the nominal capture cadence unit used
// everywhere outside the process.
type cameraRecord struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	IntervalSeconds int64  `json:"interval_seconds"`
}

// PutCamera stores the camera in the camera hash, keyed by name.
func (r *RedisStore) PutCamera(ctx context.Context, cam archive.Camera) error {
	if cam.Name == "" {
		return errors.New("camera name cannot be empty")
	}

	data, err := json.Marshal(cameraRecord{
		Name:            cam.Name,
		Description:     cam.Description,
		IntervalSeconds: int64(cam.Interval / time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal camera: %w", err)
	}

	if err := r.client.HSet(ctx, redisKeyCameras, cam.Name, data).Err(); err != nil {
		return fmt.Errorf("failed to store camera in redis: %w", err)
	}
	return nil
}

// PutImage stores the record in its camera's image hash, keyed by capture
// time so a retransmission overwrites the locator instead of duplicating.
func (r *RedisStore) PutImage(ctx context.Context, rec archive.ImageRecord) error {
	if rec.Camera == "" {
		return errors.New("image camera cannot be empty")
	}
	if rec.CapturedAt.IsZero() {
		return errors.New("image capture time cannot be zero")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal image record: %w", err)
	}

	if err := r.client.SAdd(ctx, redisKeyImageCameras, rec.Camera).Err(); err != nil {
		return fmt.Errorf("failed to record image camera in redis: %w", err)
	}
	field := rec.CapturedAt.UTC().Format(time.RFC3339Nano)
	if err := r.client.HSet(ctx, redisKeyImages+rec.Camera, field, data).Err(); err != nil {
		return fmt.Errorf("failed to store image record in redis: %w", err)
	}
	return nil
}

// LoadSeries reads every series list named by the enumeration set.
func (r *RedisStore) LoadSeries(ctx context.Context) (map[timeseries.Key][]timeseries.Point, error) {
	members, err := r.client.SMembers(ctx, redisKeySeriesKeys).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list series keys from redis: %w", err)
	}

	out := make(map[timeseries.Key][]timeseries.Point, len(members))
	for _, member := range members {
		key, err := parseSeriesMember(member)
		if err != nil {
			return nil, err
		}

		raws, err := r.client.LRange(ctx, redisKeySeries+member, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read series %s from redis: %w", member, err)
		}

		pts := make([]timeseries.Point, 0, len(raws))
		for _, raw := range raws {
			var pt timeseries.Point
			if err := json.Unmarshal([]byte(raw), &pt); err != nil {
				return nil, fmt.Errorf("failed to unmarshal point in series %s: %w", member, err)
			}
			pts = append(pts, pt)
		}
		out[key] = pts
	}
	return out, nil
}

// LoadCameras reads the camera hash, ordered by name.
func (r *RedisStore) LoadCameras(ctx context.Context) ([]archive.Camera, error) {
	fields, err := r.client.HGetAll(ctx, redisKeyCameras).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cameras from redis: %w", err)
	}

	out := make([]archive.Camera, 0, len(fields))
	for name, raw := range fields {
		var rec cameraRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal camera %q: %w", name, err)
		}
		out = append(out, archive.Camera{
			Name:        rec.Name,
			Description: rec.Description,
			Interval:    time.Duration(rec.IntervalSeconds) * time.Second,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LoadImages reads every per-camera image hash named by the enumeration
// set, ordered by camera and then capture time.
func (r *RedisStore) LoadImages(ctx context.Context) ([]archive.ImageRecord, error) {
	cameras, err := r.client.SMembers(ctx, redisKeyImageCameras).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list image cameras from redis: %w", err)
	}

	var out []archive.ImageRecord
	for _, camera := range cameras {
		fields, err := r.client.HGetAll(ctx, redisKeyImages+camera).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read images for %q from redis: %w", camera, err)
		}
		for field, raw := range fields {
			var rec archive.ImageRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return nil, fmt.Errorf("failed to unmarshal image %s/%s: %w", camera, field, err)
			}
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Camera != out[j].Camera {
			return out[i].Camera < out[j].Camera
		}
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	return out, nil
}

// Close closes the Redis client connection.
// It is safe to call multiple times (idempotent).
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if err != nil && err.Error() == "redis: client is closed" {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
// Returns an error if the connection is unavailable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
