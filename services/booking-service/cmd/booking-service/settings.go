package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/dentalbook/libs/config"
	"github.com/md-rashed-zaman/dentalbook/libs/kafkax"
)

type settings struct {
	Service  string
	Port     string
	GRPCPort string
	LogLevel string

	StoreDriver string
	DatabaseURL string
	DBMaxConns  int

	Location            *time.Location
	DefaultSlotMinutes  int
	EnforceWorkingHours bool

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	DurationCacheTTL time.Duration

	RateLimitPerMinute int
	CORSOrigins        []string
	RequestTimeout     time.Duration

	KafkaBrokers      []string
	KafkaGroupID      string
	KafkaCatalogTopic string
	OutboxPollEvery   time.Duration
	OutboxBatchSize   int
}

const (
	storeMemory   = "memory"
	storePostgres = "postgres"
)

func loadSettings() (settings, error) {
	s := settings{
		Service:             config.String("SERVICE_NAME", "booking-service"),
		LogLevel:            config.String("LOG_LEVEL", "info"),
		StoreDriver:         strings.ToLower(config.String("STORE_DRIVER", storePostgres)),
		DBMaxConns:          config.Int("DB_MAX_CONNS", 10),
		DefaultSlotMinutes:  config.Int("DEFAULT_SLOT_MINUTES", 30),
		EnforceWorkingHours: config.Bool("ENFORCE_WORKING_HOURS", false),
		RedisAddr:           config.String("REDIS_ADDR", ""),
		RedisPassword:       config.String("REDIS_PASSWORD", ""),
		RedisDB:             config.Int("REDIS_DB", 0),
		DurationCacheTTL:    config.Duration("SERVICE_DURATION_CACHE_TTL", 10*time.Minute),
		RateLimitPerMinute:  config.Int("RATE_LIMIT_PER_MINUTE", 120),
		CORSOrigins:         config.List("CORS_ALLOWED_ORIGINS", ""),
		RequestTimeout:      config.Duration("REQUEST_TIMEOUT", 15*time.Second),
		KafkaBrokers:        kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")),
		KafkaGroupID:        config.String("KAFKA_GROUP_ID", "booking-service"),
		KafkaCatalogTopic:   config.String("KAFKA_CATALOG_TOPIC", "catalog.service.upserted.v1"),
		OutboxPollEvery:     config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		OutboxBatchSize:     config.Int("OUTBOX_BATCH_SIZE", 50),
	}

	var err error
	if s.Port, err = config.Port("PORT", "8083"); err != nil {
		return settings{}, err
	}
	if s.GRPCPort, err = config.Port("GRPC_PORT", "9083"); err != nil {
		return settings{}, err
	}

	switch s.StoreDriver {
	case storeMemory:
	case storePostgres:
		if s.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
			return settings{}, err
		}
	default:
		return settings{}, fmt.Errorf("STORE_DRIVER must be %q or %q (got %q)", storePostgres, storeMemory, s.StoreDriver)
	}

	tz := config.String("CLINIC_TIMEZONE", "Local")
	if s.Location, err = time.LoadLocation(tz); err != nil {
		return settings{}, fmt.Errorf("CLINIC_TIMEZONE: %w", err)
	}
	if s.DefaultSlotMinutes <= 0 || s.DefaultSlotMinutes > 24*60 {
		return settings{}, fmt.Errorf("DEFAULT_SLOT_MINUTES must be between 1 and 1440 (got %d)", s.DefaultSlotMinutes)
	}
	if s.RequestTimeout < 0 {
		return settings{}, fmt.Errorf("REQUEST_TIMEOUT must not be negative (got %s)", s.RequestTimeout)
	}
	return s, nil
}
