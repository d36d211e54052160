package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsMemoryDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("CLINIC_TIMEZONE", "UTC")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	s, err := loadSettings()
	require.NoError(t, err)
	assert.Equal(t, "memory", s.StoreDriver)
	assert.Equal(t, "8083", s.Port)
	assert.Equal(t, 30, s.DefaultSlotMinutes)
	assert.Equal(t, time.UTC, s.Location)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, s.KafkaBrokers)
	assert.False(t, s.EnforceWorkingHours)
	assert.Equal(t, 15*time.Second, s.RequestTimeout)
}

func TestLoadSettingsRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres", "DATABASE_URL": ""}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}},
		{"bad timezone", map[string]string{"STORE_DRIVER": "memory", "CLINIC_TIMEZONE": "Mars/Olympus"}},
		{"bad port", map[string]string{"STORE_DRIVER": "memory", "PORT": "0"}},
		{"bad slot size", map[string]string{"STORE_DRIVER": "memory", "DEFAULT_SLOT_MINUTES": "-5"}},
		{"negative request timeout", map[string]string{"STORE_DRIVER": "memory", "REQUEST_TIMEOUT": "-1s"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := loadSettings()
			assert.Error(t, err)
		})
	}
}
