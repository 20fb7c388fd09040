package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/ethword-go/pkg/channel"
)

func TestDefaultServerConfig_IsValid(t *testing.T) {
	cfg := DefaultServerConfig()
	require.NoError(t, cfg.Validate())

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, channel.PolicyAlwaysClose, policy)
	assert.Equal(t, channel.DefaultMaxWordCount, cfg.MaxWordCount)
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ServerConfig)
		wantErr string
	}{
		{
			name:    "port too low",
			mutate:  func(c *ServerConfig) { c.Port = 0 },
			wantErr: "port",
		},
		{
			name:    "port too high",
			mutate:  func(c *ServerConfig) { c.Port = 70000 },
			wantErr: "port",
		},
		{
			name:    "unknown persistence",
			mutate:  func(c *ServerConfig) { c.Persistence.Type = "postgres" },
			wantErr: "persistence.type",
		},
		{
			name: "badger without path",
			mutate: func(c *ServerConfig) {
				c.Persistence.Type = PersistenceTypeBadger
				c.Persistence.DataPath = " "
			},
			wantErr: "persistence.dataPath",
		},
		{
			name:    "redis without address",
			mutate:  func(c *ServerConfig) { c.Persistence.Type = PersistenceTypeRedis },
			wantErr: "persistence.redis.address",
		},
		{
			name: "redis bad db",
			mutate: func(c *ServerConfig) {
				c.Persistence.Type = PersistenceTypeRedis
				c.Persistence.Redis.Address = "localhost:6379"
				c.Persistence.Redis.DB = 16
			},
			wantErr: "persistence.redis.db",
		},
		{
			name:    "unknown hash",
			mutate:  func(c *ServerConfig) { c.HashFunction = "md5" },
			wantErr: "hashFunction",
		},
		{
			name:    "unknown policy",
			mutate:  func(c *ServerConfig) { c.ClosePolicy = "sometimes" },
			wantErr: "closePolicy",
		},
		{
			name:    "zero max word count",
			mutate:  func(c *ServerConfig) { c.MaxWordCount = 0 },
			wantErr: "maxWordCount",
		},
		{
			name:    "negative rate",
			mutate:  func(c *ServerConfig) { c.RateLimit = -1 },
			wantErr: "rateLimit",
		},
		{
			name:    "zero burst with limiter",
			mutate:  func(c *ServerConfig) { c.RateBurst = 0 },
			wantErr: "rateBurst",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServerConfig_ValidBackends(t *testing.T) {
	badger := DefaultServerConfig()
	badger.Persistence.Type = PersistenceTypeBadger
	assert.NoError(t, badger.Validate())

	redis := DefaultServerConfig()
	redis.Persistence.Type = PersistenceTypeRedis
	redis.Persistence.Redis.Address = "localhost:6379"
	assert.NoError(t, redis.Validate())

	unlimited := DefaultServerConfig()
	unlimited.RateLimit = 0
	unlimited.RateBurst = 0
	assert.NoError(t, unlimited.Validate())
}

func TestServerConfig_CollectsAllErrors(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Port = 0
	cfg.HashFunction = "nope"
	cfg.ClosePolicy = "nope"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
	assert.Contains(t, err.Error(), "hashFunction")
	assert.Contains(t, err.Error(), "closePolicy")
}
