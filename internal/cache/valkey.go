package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key is not cached.
var ErrMiss = errors.New("cache miss")

// ErrStale is returned by SetSlots when the grid was invalidated after it was computed.
var ErrStale = errors.New("cache entry superseded")

type Config struct {
	Addr            string
	Password        string
	DB              int
	UsersHashKey    string
	ReferenceTTL    time.Duration
	AvailabilityTTL time.Duration
}

type ValkeyClient struct {
	client          *redis.Client
	usersHashKey    string
	referenceTTL    time.Duration
	availabilityTTL time.Duration
}

func NewValkeyClient(cfg Config) (*ValkeyClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	return newValkeyClient(rdb, cfg), nil
}

func newValkeyClient(rdb *redis.Client, cfg Config) *ValkeyClient {
	if cfg.UsersHashKey == "" {
		cfg.UsersHashKey = "users:auth"
	}
	if cfg.ReferenceTTL <= 0 {
		cfg.ReferenceTTL = 5 * time.Minute
	}
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 30 * time.Second
	}
	return &ValkeyClient{
		client:          rdb,
		usersHashKey:    cfg.UsersHashKey,
		referenceTTL:    cfg.ReferenceTTL,
		availabilityTTL: cfg.AvailabilityTTL,
	}
}

func authField(email, passwordHash string) string {
	authString := fmt.Sprintf("%s:%s", email, passwordHash)
	return base64.StdEncoding.EncodeToString([]byte(authString))
}

func (v *ValkeyClient) GetUserIDByAuth(ctx context.Context, email, passwordHash string) (int64, error) {
	userIDStr, err := v.client.HGet(ctx, v.usersHashKey, authField(email, passwordHash)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, ErrMiss
		}
		return 0, fmt.Errorf("cache lookup error: %w", err)
	}

	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID in cache: %w", err)
	}

	return userID, nil
}

// SetUserAuth remembers a verified email/password-hash pair.
func (v *ValkeyClient) SetUserAuth(ctx context.Context, email, passwordHash string, userID int64) error {
	return v.client.HSet(ctx, v.usersHashKey, authField(email, passwordHash), userID).Err()
}

// Reference data

func courtKey(courtID int64, kind string) string {
	return fmt.Sprintf("court:%d:%s", courtID, kind)
}

const courtsListKey = "courts:list"

// GetReference decodes a cached reference entry ("rules", "price_plans", "court") into dest.
func (v *ValkeyClient) GetReference(ctx context.Context, courtID int64, kind string, dest any) error {
	return v.getJSON(ctx, courtKey(courtID, kind), dest)
}

func (v *ValkeyClient) SetReference(ctx context.Context, courtID int64, kind string, value any) error {
	return v.setJSON(ctx, courtKey(courtID, kind), value, v.referenceTTL)
}

func (v *ValkeyClient) GetCourtsList(ctx context.Context, dest any) error {
	return v.getJSON(ctx, courtsListKey, dest)
}

func (v *ValkeyClient) SetCourtsList(ctx context.Context, value any) error {
	return v.setJSON(ctx, courtsListKey, value, v.referenceTTL)
}

// InvalidateCourt drops all cached reference data of a court.
func (v *ValkeyClient) InvalidateCourt(ctx context.Context, courtID int64) error {
	return v.client.Del(ctx,
		courtKey(courtID, "court"),
		courtKey(courtID, "rules"),
		courtKey(courtID, "price_plans"),
		courtsListKey,
	).Err()
}

// Availability

func availabilityKey(courtID int64, date string) string {
	return fmt.Sprintf("availability:%d:%s", courtID, date)
}

func availabilityGenKey(courtID int64, date string) string {
	return fmt.Sprintf("availability:gen:%d:%s", courtID, date)
}

// GetSlotsRaw returns the cached slots response for a court and date as raw JSON.
func (v *ValkeyClient) GetSlotsRaw(ctx context.Context, courtID int64, date string) ([]byte, error) {
	data, err := v.client.Get(ctx, availabilityKey(courtID, date)).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup error: %w", err)
	}
	return data, nil
}

// SlotsGeneration returns how many times the grid of a court and date has been invalidated.
// Read it before loading reservations and hand it to SetSlots.
func (v *ValkeyClient) SlotsGeneration(ctx context.Context, courtID int64, date string) (int64, error) {
	n, err := v.client.Get(ctx, availabilityGenKey(courtID, date)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache lookup error: %w", err)
	}
	return n, nil
}

// SetSlots caches a grid computed at generation. It returns ErrStale without writing when an
// invalidation happened in between.
func (v *ValkeyClient) SetSlots(ctx context.Context, courtID int64, date string, generation int64, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode slots: %w", err)
	}

	genKey := availabilityGenKey(courtID, date)
	err = v.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != generation {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, availabilityKey(courtID, date), data, v.availabilityTTL)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStale
	}
	return err
}

// InvalidateAvailability drops the cached grid and bumps its generation.
func (v *ValkeyClient) InvalidateAvailability(ctx context.Context, courtID int64, date string) error {
	genKey := availabilityGenKey(courtID, date)
	pipe := v.client.TxPipeline()
	pipe.Incr(ctx, genKey)
	pipe.Expire(ctx, genKey, 48*time.Hour)
	pipe.Del(ctx, availabilityKey(courtID, date))
	_, err := pipe.Exec(ctx)
	return err
}

// Daily booking counters

func countersKey(date string) string {
	return "bookings:count:" + date
}

// IncrDailyBookings adjusts the number of active bookings of a court on date.
func (v *ValkeyClient) IncrDailyBookings(ctx context.Context, date string, courtID int64, delta int64) (int64, error) {
	key := countersKey(date)
	pipe := v.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, strconv.FormatInt(courtID, 10), delta)
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to update booking counter: %w", err)
	}
	return incr.Val(), nil
}

// DailyBookings returns active booking counts per court for date.
func (v *ValkeyClient) DailyBookings(ctx context.Context, date string) (map[int64]int64, error) {
	raw, err := v.client.HGetAll(ctx, countersKey(date)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache lookup error: %w", err)
	}
	out := make(map[int64]int64, len(raw))
	for k, val := range raw {
		courtID, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		out[courtID] = n
	}
	return out, nil
}

// SetDailyBookings replaces the counters of date.
func (v *ValkeyClient) SetDailyBookings(ctx context.Context, date string, counts map[int64]int) error {
	key := countersKey(date)
	pipe := v.client.TxPipeline()
	pipe.Del(ctx, key)
	for courtID, n := range counts {
		pipe.HSet(ctx, key, strconv.FormatInt(courtID, 10), n)
	}
	pipe.Expire(ctx, key, 48*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

func (v *ValkeyClient) getJSON(ctx context.Context, key string, dest any) error {
	data, err := v.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("cache lookup error: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return nil
}

func (v *ValkeyClient) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return v.client.Set(ctx, key, data, ttl).Err()
}

// Ping reports whether Valkey is reachable.
func (v *ValkeyClient) Ping(ctx context.Context) error {
	return v.client.Ping(ctx).Err()
}

func (v *ValkeyClient) Close() error {
	return v.client.Close()
}
