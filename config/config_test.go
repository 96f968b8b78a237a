package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POS_SELLER_ACCOUNTS", "")
	t.Setenv("EXTERNAL_CALL_TIMEOUT", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Second, cfg.Business.ExternalCallTimeout)
	assert.Empty(t, cfg.POS.SellerAccounts)
	assert.Contains(t, cfg.POS.ExcludedProducts, "fee")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POS_SELLER_ACCOUNTS", " branch-1, ,branch-2 ")
	t.Setenv("EXTERNAL_CALL_TIMEOUT", "3s")
	t.Setenv("POS_SYNC_INTERVAL", "not-a-duration")
	t.Setenv("POS_RATE_LIMIT_PER_MIN", "0")

	cfg := Load()

	assert.Equal(t, []string{"branch-1", "branch-2"}, cfg.POS.SellerAccounts)
	assert.Equal(t, 3*time.Second, cfg.Business.ExternalCallTimeout)
	assert.Equal(t, time.Hour, cfg.POS.SyncInterval)
	assert.Equal(t, 10, cfg.POS.RateLimitPerMin)
}
