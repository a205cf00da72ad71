package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

// ProviderLimits are the rate-limit knobs shared by every provider block.
type ProviderLimits struct {
	MaxRequestsPerMinute  int `json:"max_requests_per_minute"`
	Burst                 int `json:"burst"`
	MinRequestIntervalSec int `json:"min_request_interval_sec"`
}

type FundGate struct {
	Enabled  bool   `json:"enabled"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"`
	Currency string `json:"currency"`
	ProviderLimits
}

type MetalPrice struct {
	Enabled  bool   `json:"enabled"`
	APIKey   string `json:"api_key"`
	Endpoint string `json:"endpoint"`
	Currency string `json:"currency"`
	ProviderLimits
}

type FinBridge struct {
	Enabled  bool   `json:"enabled"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"`
	Currency string `json:"currency"`
	ProviderLimits
}

type Newswire struct {
	Enabled      bool   `json:"enabled"`
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
	MaxHeadlines int    `json:"max_headlines"`
	ProviderLimits
}

type Cache struct {
	Dir                string `json:"dir"`
	MemoryMaxItems     int    `json:"memory_max_items"`
	MemoryTTLSec       int    `json:"memory_ttl_sec"`
	FileTTLSec         int    `json:"file_ttl_sec"`
	RetentionHours     int    `json:"retention_hours"`
	CleanupIntervalSec int    `json:"cleanup_interval_sec"`
}

type Warmup struct {
	IntervalSec int `json:"interval_sec"`
	TimeoutSec  int `json:"timeout_sec"`
	// WatchList entries are "kind:key", e.g. "fund:VWRL" or "commodity:XAU".
	WatchList []string `json:"watch_list"`
}

type Hub struct {
	MaxConnections       int `json:"max_connections"`
	HeartbeatIntervalSec int `json:"heartbeat_interval_sec"`
	HeartbeatTimeoutSec  int `json:"heartbeat_timeout_sec"`
}

type Health struct {
	IntervalSec int `json:"interval_sec"`
	// ProbeKeys maps provider name to a known-good key used for probing.
	ProbeKeys map[string]string `json:"probe_keys"`
}

type Config struct {
	Server     Server     `json:"server"`
	FundGate   FundGate   `json:"fundgate"`
	MetalPrice MetalPrice `json:"metalprice"`
	FinBridge  FinBridge  `json:"finbridge"`
	Newswire   Newswire   `json:"newswire"`
	Cache      Cache      `json:"cache"`
	Warmup     Warmup     `json:"warmup"`
	Hub        Hub        `json:"hub"`
	Health     Health     `json:"health"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		FundGate: FundGate{
			Enabled:  true,
			Currency: "USD",
			ProviderLimits: ProviderLimits{
				MaxRequestsPerMinute: 30,
				Burst:                5,
			},
		},
		MetalPrice: MetalPrice{
			Enabled:  true,
			Currency: "USD",
			ProviderLimits: ProviderLimits{
				MaxRequestsPerMinute: 30,
				Burst:                5,
			},
		},
		FinBridge: FinBridge{
			Enabled:  true,
			Currency: "USD",
			ProviderLimits: ProviderLimits{
				MaxRequestsPerMinute: 60,
				Burst:                10,
			},
		},
		Newswire: Newswire{
			Enabled:      false,
			MaxHeadlines: 10,
			ProviderLimits: ProviderLimits{
				MaxRequestsPerMinute: 10,
				Burst:                2,
			},
		},
		Cache: Cache{
			Dir:                "data/cache",
			MemoryMaxItems:     1000,
			MemoryTTLSec:       60,
			FileTTLSec:         300,
			RetentionHours:     168,
			CleanupIntervalSec: 600,
		},
		Warmup: Warmup{
			IntervalSec: 120,
			TimeoutSec:  30,
			WatchList:   []string{},
		},
		Hub: Hub{
			MaxConnections:       256,
			HeartbeatIntervalSec: 30,
			HeartbeatTimeoutSec:  90,
		},
		Health: Health{IntervalSec: 300, ProbeKeys: map[string]string{}},
	}
}

// Load reads JSON config from path. If path is empty or the file does not
// exist, it returns defaults. Environment variables override select fields
// for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := envInt("REQUEST_TIMEOUT_SEC"); v > 0 {
		cfg.Server.RequestTimeoutSec = v
	}
	if v := os.Getenv("FUNDGATE_API_KEY"); v != "" {
		cfg.FundGate.APIKey = v
	}
	if v := os.Getenv("FUNDGATE_BASE_URL"); v != "" {
		cfg.FundGate.BaseURL = v
	}
	if v := os.Getenv("METALPRICE_API_KEY"); v != "" {
		cfg.MetalPrice.APIKey = v
	}
	if v := os.Getenv("METALPRICE_ENDPOINT"); v != "" {
		cfg.MetalPrice.Endpoint = v
	}
	if v := os.Getenv("FINBRIDGE_API_KEY"); v != "" {
		cfg.FinBridge.APIKey = v
	}
	if v := os.Getenv("FINBRIDGE_BASE_URL"); v != "" {
		cfg.FinBridge.BaseURL = v
	}
	if v := os.Getenv("NEWSWIRE_API_KEY"); v != "" {
		cfg.Newswire.APIKey = v
	}
	if v := envBool("NEWSWIRE_ENABLED"); v != nil {
		cfg.Newswire.Enabled = *v
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := envInt("CACHE_MEMORY_MAX_ITEMS"); v > 0 {
		cfg.Cache.MemoryMaxItems = v
	}
	if v := envInt("CACHE_MEMORY_TTL_SEC"); v > 0 {
		cfg.Cache.MemoryTTLSec = v
	}
	if v := envInt("CACHE_FILE_TTL_SEC"); v > 0 {
		cfg.Cache.FileTTLSec = v
	}
	if v := envInt("WARMUP_INTERVAL_SEC"); v > 0 {
		cfg.Warmup.IntervalSec = v
	}
	if v := os.Getenv("WARMUP_WATCH_LIST"); v != "" {
		cfg.Warmup.WatchList = splitCSV(v)
	}
	if v := envInt("HUB_MAX_CONNECTIONS"); v > 0 {
		cfg.Hub.MaxConnections = v
	}
	if v := envInt("HUB_HEARTBEAT_INTERVAL_SEC"); v > 0 {
		cfg.Hub.HeartbeatIntervalSec = v
	}
	if v := envInt("HUB_HEARTBEAT_TIMEOUT_SEC"); v > 0 {
		cfg.Hub.HeartbeatTimeoutSec = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	var x int
	_, _ = fmt.Sscanf(v, "%d", &x)
	return x
}

func envBool(key string) *bool {
	v := strings.ToLower(os.Getenv(key))
	t, f := true, false
	switch v {
	case "1", "true", "yes", "y":
		return &t
	case "0", "false", "no", "n":
		return &f
	}
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
