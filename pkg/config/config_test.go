package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperAppliesDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	require.NotNil(t, cfg)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, [7]int{60, 60, 60, 60, 90, 90, 60}, cfg.Capacity.WeeklyDefaults)
	assert.InDelta(t, 0.8, cfg.Capacity.NearRatio, 0.0001)
	assert.Equal(t, "@every 5m", cfg.Capacity.ResyncCron)
	assert.Equal(t, 1000, cfg.Series.MaxOccurrences)
	assert.Equal(t, 15*time.Second, cfg.Series.WriteTimeout)
	assert.True(t, cfg.Calendar.CacheEnabled)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("CAPACITY_DEFAULT_MONDAY", 45)
	v.Set("CAPACITY_DEFAULT_FRIDAY", -3)
	v.Set("CAPACITY_NEAR_RATIO", 1.7)
	v.Set("SERIES_WRITE_TIMEOUT", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := fromViper(v)

	assert.Equal(t, 45, cfg.Capacity.WeeklyDefaults[1])
	assert.Equal(t, 90, cfg.Capacity.WeeklyDefaults[5], "negative limits fall back to the seed")
	assert.InDelta(t, 0.8, cfg.Capacity.NearRatio, 0.0001)
	assert.Equal(t, 15*time.Second, cfg.Series.WriteTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
