package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/carpool/internal/models"
)

// RedisIndex implements CandidateIndex on Redis GEO commands. Ride
// origins live in a single geo set; seat counts and departure times in
// per-ride hashes maintained by the event consumer.
type RedisIndex struct {
	client *redis.Client
	key    string
}

func NewRedisIndex(addr, password, key string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: key}
}

// NewRedisIndexWithClient wraps an existing client, mainly for the consumer.
func NewRedisIndexWithClient(c *redis.Client, key string) *RedisIndex {
	return &RedisIndex{client: c, key: key}
}

func (r *RedisIndex) Upsert(ctx context.Context, c Candidate) error {
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: c.Origin.Lon,
		Latitude:  c.Origin.Lat,
		Name:      c.RideID,
	}).Result(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(c.RideID), map[string]interface{}{
		"seats_available": strconv.Itoa(c.SeatsAvailable),
		"departure_time":  c.DepartureTime.Format(time.RFC3339),
	}).Err()
}

func (r *RedisIndex) Remove(ctx context.Context, rideID string) error {
	if err := r.client.ZRem(ctx, r.key, rideID).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, metaKey(rideID)).Err()
}

func (r *RedisIndex) Nearby(ctx context.Context, origin models.Coord, radiusKm float64, limit int) ([]Candidate, error) {
	res, err := r.client.GeoRadius(ctx, r.key, origin.Lon, origin.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Count:     limit,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(res))
	for _, g := range res {
		c := Candidate{RideID: g.Name}
		c.Origin.Lat = g.Latitude
		c.Origin.Lon = g.Longitude
		if m, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result(); err == nil {
			if v, ok := m["seats_available"]; ok {
				if n, err := strconv.Atoi(v); err == nil {
					c.SeatsAvailable = n
				}
			}
			if v, ok := m["departure_time"]; ok {
				if t, err := time.Parse(time.RFC3339, v); err == nil {
					c.DepartureTime = t
				}
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func metaKey(id string) string { return "ride:meta:" + id }
