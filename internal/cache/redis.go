package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mtorres-dev/apptsync/internal/model"
)

const (
	apptKeyPrefix = "appt:"
	apptIndexKey  = "appt:ids"
	settingsKey   = "settings"
)

// RedisCache persists appointments as one JSON value per id with a set index.
// Construction pings the server: the cache is required infrastructure, so an
// unreachable Redis is an initialization error, not a degraded mode.
type RedisCache struct {
	rdb    *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewRedisCache(ctx context.Context, rdb *redis.Client, logger *slog.Logger) (*RedisCache, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis unavailable: %w", err)
	}
	return &RedisCache{rdb: rdb, logger: logger, now: time.Now}, nil
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

func (c *RedisCache) Get(ctx context.Context, id string) (model.Appointment, error) {
	raw, err := c.rdb.Get(ctx, apptKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	var appt model.Appointment
	if err := json.Unmarshal(raw, &appt); err != nil {
		return model.Appointment{}, fmt.Errorf("cache: corrupt record %s: %w", id, err)
	}
	return appt, nil
}

// GetAll returns every cached appointment sorted by date+time. It also runs
// the auto-completion sweep: past, non-canceled appointments are flipped to
// completed and written back as pending local edits.
func (c *RedisCache) GetAll(ctx context.Context) ([]model.Appointment, error) {
	appts, err := c.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	for _, done := range model.CompletePast(appts, c.now()) {
		if err := c.store(ctx, done); err != nil {
			c.logger.Warn("auto-complete write failed", "id", done.ID, "err", err)
			continue
		}
		for i := range appts {
			if appts[i].ID == done.ID {
				appts[i] = done
			}
		}
	}

	sort.Slice(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		return appts[i].Time < appts[j].Time
	})
	return appts, nil
}

func (c *RedisCache) GetByDateRange(ctx context.Context, start, end string) ([]model.Appointment, error) {
	all, err := c.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Appointment
	for _, a := range all {
		// Dates are ISO strings, so the range check is lexicographic.
		if a.Date >= start && a.Date <= end {
			out = append(out, a)
		}
	}
	return out, nil
}

func (c *RedisCache) Put(ctx context.Context, appt model.Appointment) error {
	appt.PendingSync = true
	appt.PendingDelete = false
	return c.store(ctx, appt)
}

func (c *RedisCache) PutSynced(ctx context.Context, appt model.Appointment) error {
	appt.PendingSync = false
	appt.PendingDelete = false
	return c.store(ctx, appt)
}

func (c *RedisCache) MarkDeleted(ctx context.Context, id string) error {
	appt, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	appt.PendingDelete = true
	appt.UpdatedAt = c.now()
	return c.store(ctx, appt)
}

func (c *RedisCache) Delete(ctx context.Context, id string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, apptKeyPrefix+id)
	pipe.SRem(ctx, apptIndexKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) Pending(ctx context.Context) ([]model.Appointment, error) {
	all, err := c.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Appointment
	for _, a := range all {
		if a.PendingSync || a.PendingDelete {
			out = append(out, a)
		}
	}
	return out, nil
}

func (c *RedisCache) ReplaceAll(ctx context.Context, synced []model.Appointment) error {
	existing, err := c.loadAll(ctx)
	if err != nil {
		return err
	}

	pending := make(map[string]bool, len(existing))
	for _, a := range existing {
		if a.PendingSync || a.PendingDelete {
			pending[a.ID] = true
		}
	}

	confirmed := make(map[string]bool, len(synced))
	for _, a := range synced {
		confirmed[a.ID] = true
		if pending[a.ID] {
			// The local copy has an unconfirmed edit; overwriting it with the
			// backend's copy would drop the edit. The next push settles it.
			continue
		}
		if err := c.PutSynced(ctx, a); err != nil {
			return err
		}
	}

	for _, a := range existing {
		if confirmed[a.ID] || pending[a.ID] {
			continue
		}
		if err := c.Delete(ctx, a.ID); err != nil {
			return err
		}
	}
	return nil
}

func (c *RedisCache) Settings(ctx context.Context) (model.BusinessSettings, error) {
	raw, err := c.rdb.Get(ctx, settingsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.BusinessSettings{}, err
	}
	var s model.BusinessSettings
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.BusinessSettings{}, fmt.Errorf("cache: corrupt settings: %w", err)
	}
	return s, nil
}

func (c *RedisCache) PutSettings(ctx context.Context, s model.BusinessSettings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, settingsKey, raw, 0).Err()
}

func (c *RedisCache) store(ctx context.Context, appt model.Appointment) error {
	raw, err := json.Marshal(appt)
	if err != nil {
		return err
	}
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, apptKeyPrefix+appt.ID, raw, 0)
	pipe.SAdd(ctx, apptIndexKey, appt.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) loadAll(ctx context.Context) ([]model.Appointment, error) {
	ids, err := c.rdb.SMembers(ctx, apptIndexKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = apptKeyPrefix + id
	}
	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	appts := make([]model.Appointment, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Index entry with no value; drop the stale id.
			_ = c.rdb.SRem(ctx, apptIndexKey, ids[i]).Err()
			continue
		}
		var appt model.Appointment
		if err := json.Unmarshal([]byte(s), &appt); err != nil {
			return nil, fmt.Errorf("cache: corrupt record %s: %w", ids[i], err)
		}
		appts = append(appts, appt)
	}
	return appts, nil
}

var _ AppointmentCache = (*RedisCache)(nil)
