package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/din-network/din-monitor/pkg/types"
	"gopkg.in/yaml.v3"
)

type NetworkConfig struct {
	Name string `yaml:"name"`
}

type ApiConfig struct {
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`

	// RateLimit is the sustained rate of write requests per second; zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

type StoreConfig struct {
	// Dsn selects the postgres store; empty keeps operators in memory.
	Dsn string `yaml:"dsn"`
}

type StakingConfig struct {
	MinStake string `yaml:"min_stake"`
}

type PerformanceConfig struct {
	HistoryCapacity int `yaml:"history_capacity"`
	SampleCacheSize int `yaml:"sample_cache_size"`
}

type SlashingConfig struct {
	RetryAttempts uint          `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	DedupWindow   int           `yaml:"dedup_window"`
}

type OutputConfig struct {
	Path string `yaml:"path"`
}

type KafkaConfig struct {
	Topic               string        `yaml:"topic"`
	BootstrapServersStr string        `yaml:"bootstrap_servers"`
	BootstrapServers    []string      `yaml:"-"`
	Timeout             time.Duration `yaml:"timeout"`
}

type BusConfig struct {
	Topics []string      `yaml:"topics"`
	Output *OutputConfig `yaml:"output"`
	Kafka  *KafkaConfig  `yaml:"kafka"`

	// Signers lists the addresses allowed to sign bus messages; empty disables verification.
	Signers []string `yaml:"signers"`

	// SigningKey is the hex secp256k1 key the monitor signs its own messages with.
	SigningKey        string `yaml:"signing_key"`
	RequireSignatures bool   `yaml:"require_signatures"`
}

type MemoryConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	ScoreTTL      time.Duration `yaml:"score_ttl"`
}

type CollectorConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Endpoints []string      `yaml:"endpoints"`
}

type WebsiteConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Host              string `yaml:"host"`
	Port              uint16 `yaml:"port"`
	ShowConfigDetails bool   `yaml:"show_config_details"`
	LinkMonitorAPI    string `yaml:"link_monitor_api"`
}

type Config struct {
	Network     *NetworkConfig     `yaml:"network"`
	Api         *ApiConfig         `yaml:"api"`
	Store       *StoreConfig       `yaml:"store"`
	Staking     *StakingConfig     `yaml:"staking"`
	Performance *PerformanceConfig `yaml:"performance"`
	Slashing    *SlashingConfig    `yaml:"slashing"`
	Bus         *BusConfig         `yaml:"bus"`
	Memory      *MemoryConfig      `yaml:"memory"`
	Collector   *CollectorConfig   `yaml:"collector"`
	Website     *WebsiteConfig     `yaml:"website"`
}

// Load reads the YAML file at path and fills in every section left out.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %v", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	config := &Config{}
	err := yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %v", err)
	}
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if _, err := c.MinStake(); err != nil {
		return err
	}
	if c.Collector.Interval <= 0 {
		return fmt.Errorf("collector.interval must be positive, got %s", c.Collector.Interval)
	}
	if c.Bus.RequireSignatures && c.Bus.SigningKey == "" {
		return fmt.Errorf("bus.require_signatures needs bus.signing_key, or the monitor's own messages are dropped")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Network == nil {
		c.Network = &NetworkConfig{Name: "local"}
	}
	if c.Api == nil {
		c.Api = &ApiConfig{}
	}
	if c.Api.Host == "" {
		c.Api.Host = "localhost"
	}
	if c.Api.Port == 0 {
		c.Api.Port = 8080
	}
	if c.Store == nil {
		c.Store = &StoreConfig{}
	}
	if c.Staking == nil {
		c.Staking = &StakingConfig{}
	}
	if c.Performance == nil {
		c.Performance = &PerformanceConfig{}
	}
	if c.Slashing == nil {
		c.Slashing = &SlashingConfig{}
	}
	if c.Bus == nil {
		c.Bus = &BusConfig{}
	}
	if c.Bus.Kafka != nil && c.Bus.Kafka.BootstrapServersStr != "" {
		c.Bus.Kafka.BootstrapServers = nil
		for _, server := range strings.Split(c.Bus.Kafka.BootstrapServersStr, ",") {
			if server = strings.TrimSpace(server); server != "" {
				c.Bus.Kafka.BootstrapServers = append(c.Bus.Kafka.BootstrapServers, server)
			}
		}
	}
	if c.Memory == nil {
		c.Memory = &MemoryConfig{}
	}
	if c.Collector == nil {
		c.Collector = &CollectorConfig{}
	}
	if c.Collector.Interval == 0 {
		c.Collector.Interval = 30 * time.Second
	}
	if c.Website == nil {
		c.Website = &WebsiteConfig{}
	}
	if c.Website.Host == "" {
		c.Website.Host = "localhost"
	}
	if c.Website.Port == 0 {
		c.Website.Port = 8081
	}
}

// MinStake returns the configured minimum stake, types.MinStake when unset.
func (c *Config) MinStake() (types.Amount, error) {
	if c.Staking == nil || c.Staking.MinStake == "" {
		return types.MinStake, nil
	}
	minStake, err := types.AmountFromString(c.Staking.MinStake)
	if err != nil {
		return types.Amount{}, fmt.Errorf("could not parse staking.min_stake: %v", err)
	}
	return minStake, nil
}
