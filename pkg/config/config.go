package config

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/Layr-Labs/ethword-go/pkg/channel"
	"github.com/Layr-Labs/ethword-go/pkg/hashing"
)

// Environment variable names for payword server configuration
const (
	EnvPaywordPort            = "PAYWORD_PORT"
	EnvPaywordPersistenceType = "PAYWORD_PERSISTENCE_TYPE"
	EnvPaywordDataPath        = "PAYWORD_DATA_PATH"
	EnvPaywordRedisAddress    = "PAYWORD_REDIS_ADDRESS"
	EnvPaywordRedisPassword   = "PAYWORD_REDIS_PASSWORD"
	EnvPaywordRedisDB         = "PAYWORD_REDIS_DB"
	EnvPaywordRedisKeyPrefix  = "PAYWORD_REDIS_KEY_PREFIX"
	EnvPaywordHashFunction    = "PAYWORD_HASH_FUNCTION"
	EnvPaywordClosePolicy     = "PAYWORD_CLOSE_POLICY"
	EnvPaywordRateLimit       = "PAYWORD_RATE_LIMIT"
	EnvPaywordRateBurst       = "PAYWORD_RATE_BURST"
	EnvPaywordMaxWordCount    = "PAYWORD_MAX_WORD_COUNT"
	EnvPaywordAllowFaucet     = "PAYWORD_ALLOW_FAUCET"
	EnvPaywordDebug           = "PAYWORD_DEBUG"
)

// Environment variable names for the payword client
const (
	EnvPaywordHubURL = "PAYWORD_HUB_URL"
	EnvPaywordCaller = "PAYWORD_CALLER"
)

type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

// GetSupportedPersistenceTypesString returns supported persistence types for CLI help
func GetSupportedPersistenceTypesString() string {
	return fmt.Sprintf("%s, %s, %s", PersistenceTypeMemory, PersistenceTypeBadger, PersistenceTypeRedis)
}

// RedisConfig holds connection settings for the redis store
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"-"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// PersistenceConfig selects and configures the channel store
type PersistenceConfig struct {
	Type     PersistenceType `json:"type"`
	DataPath string          `json:"data_path"` // badger only
	Redis    RedisConfig     `json:"redis"`
}

// ServerConfig represents the complete configuration for a payword hub server
type ServerConfig struct {
	Port int `json:"port"`

	Persistence PersistenceConfig `json:"persistence"`

	// HashFunction names the hash used for chains, trees and channel ids
	HashFunction string `json:"hash_function"`
	// ClosePolicy is "always-close" or "partial"
	ClosePolicy string `json:"close_policy"`
	// MaxWordCount caps the words a new channel may commit to
	MaxWordCount uint64 `json:"max_word_count"`

	// RateLimit is the sustained request rate per second; 0 disables limiting
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	// AllowFaucet enables the endpoint that credits accounts out of thin air
	AllowFaucet bool `json:"allow_faucet"`

	Debug bool `json:"debug"`
}

// DefaultServerConfig returns a config that runs an in-memory keccak hub
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port: 8080,
		Persistence: PersistenceConfig{
			Type:     PersistenceTypeMemory,
			DataPath: "./data/payword",
		},
		HashFunction: hashing.NameKeccak256,
		ClosePolicy:  channel.PolicyAlwaysClose.String(),
		MaxWordCount: channel.DefaultMaxWordCount,
		RateLimit:    50,
		RateBurst:    100,
	}
}

// Policy returns the parsed close policy
func (c *ServerConfig) Policy() (channel.Policy, error) {
	return channel.ParsePolicy(c.ClosePolicy)
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "must be between 1-65535"))
	}

	persistencePath := field.NewPath("persistence")
	switch c.Persistence.Type {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if strings.TrimSpace(c.Persistence.DataPath) == "" {
			allErrors = append(allErrors, field.Required(persistencePath.Child("dataPath"), "data path is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		redisPath := persistencePath.Child("redis")
		if c.Persistence.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(redisPath.Child("address"), "address is required for redis persistence"))
		}
		if c.Persistence.Redis.DB < 0 || c.Persistence.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(redisPath.Child("db"), c.Persistence.Redis.DB, "must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(persistencePath.Child("type"), string(c.Persistence.Type),
			[]string{string(PersistenceTypeMemory), string(PersistenceTypeBadger), string(PersistenceTypeRedis)}))
	}

	if _, err := hashing.Parse(c.HashFunction); err != nil {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("hashFunction"), c.HashFunction, hashing.SupportedNames()))
	}

	if _, err := c.Policy(); err != nil {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("closePolicy"), c.ClosePolicy,
			[]string{channel.PolicyAlwaysClose.String(), channel.PolicyPartial.String()}))
	}

	if c.MaxWordCount == 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxWordCount"), c.MaxWordCount, "must be at least 1"))
	}

	if c.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit"), c.RateLimit, "must not be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateBurst"), c.RateBurst, "must be at least 1 when rate limiting is enabled"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
