// Package catalog resolves service durations from the local copy of the clinic's service
// catalog, fronted by a Redis cache.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
)

type ServiceStore interface {
	FindService(ctx context.Context, id string) (model.Service, error)
	UpsertService(ctx context.Context, s model.Service) error
}

// Durations looks up how many minutes a service takes.
type Durations struct {
	store  ServiceStore
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
	onHit  func(hit bool)
}

type Options struct {
	// Redis is optional; without it every lookup reads the store.
	Redis  redis.Cmdable
	TTL    time.Duration
	Prefix string
	// OnCacheLookup, if set, is told whether each cache read hit.
	OnCacheLookup func(hit bool)
}

func NewDurations(store ServiceStore, logger *slog.Logger, opts Options) *Durations {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	if opts.Prefix == "" {
		opts.Prefix = "svc-duration"
	}
	return &Durations{
		store:  store,
		rdb:    opts.Redis,
		ttl:    opts.TTL,
		prefix: opts.Prefix,
		logger: logger,
		onHit:  opts.OnCacheLookup,
	}
}

// Duration returns the service's duration in minutes. An unknown service is a NotFound
// rejection and a non-positive duration an InvalidDuration rejection. Cache failures only log.
func (d *Durations) Duration(ctx context.Context, serviceID string) (int, error) {
	if mins, ok := d.cached(ctx, serviceID); ok {
		return mins, nil
	}

	svc, err := d.store.FindService(ctx, serviceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return 0, model.Rejectf(model.ReasonNotFound, "service %q not found", serviceID)
		}
		return 0, fmt.Errorf("find service: %w", err)
	}
	if svc.DurationMinutes <= 0 {
		return 0, model.Rejectf(model.ReasonInvalidDuration, "service %q has duration %d", serviceID, svc.DurationMinutes)
	}

	if d.rdb != nil {
		if err := d.rdb.Set(ctx, d.key(serviceID), svc.DurationMinutes, d.ttl).Err(); err != nil {
			d.logger.Warn("service duration cache write failed", "service_id", serviceID, "err", err)
		}
	}
	return svc.DurationMinutes, nil
}

// Evict drops the cached duration so the next lookup reads the store.
func (d *Durations) Evict(ctx context.Context, serviceID string) error {
	if d.rdb == nil {
		return nil
	}
	return d.rdb.Del(ctx, d.key(serviceID)).Err()
}

func (d *Durations) cached(ctx context.Context, serviceID string) (int, bool) {
	if d.rdb == nil {
		return 0, false
	}
	raw, err := d.rdb.Get(ctx, d.key(serviceID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			d.logger.Warn("service duration cache read failed", "service_id", serviceID, "err", err)
		}
		d.report(false)
		return 0, false
	}
	mins, err := strconv.Atoi(raw)
	if err != nil || mins <= 0 {
		d.report(false)
		return 0, false
	}
	d.report(true)
	return mins, true
}

func (d *Durations) report(hit bool) {
	if d.onHit != nil {
		d.onHit(hit)
	}
}

func (d *Durations) key(serviceID string) string {
	return d.prefix + ":" + serviceID
}
