package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
)

// VauchiConfig is the core library's configuration surface (spec.md §6):
// exactly the recognised options below, nothing more. It is loaded from
// .env files via loadEnvFiles, environment variables via getEnv, and an
// optional Vault lookup for the storage key.
type VauchiConfig struct {
	StoragePath string
	// StorageKey is the 32-byte at-rest AEAD key (spec.md §4.6). Nil
	// means the embedder must supply one programmatically; LoadVauchiConfig
	// only populates it when VAUCHI_STORAGE_KEY or a Vault secret is set.
	StorageKey *[32]byte
	Relay      RelayConfig
	Sync       SyncConfig
	Proxy      ProxyConfig
}

// RelayConfig configures the relay client (internal/network), with the
// exact defaults spec.md §6 and §4.8 name.
type RelayConfig struct {
	ServerURL            string
	ConnectTimeoutMS     int
	IOTimeoutMS          int
	MaxReconnectAttempts int
	ReconnectBaseDelayMS int
	AckTimeoutMS         int
	MaxPendingMessages   int
	MaxRetries           int
}

// SyncConfig configures the sync engine (internal/sync).
type SyncConfig struct {
	AutoSync          bool
	SyncIntervalMS    int
	MaxPendingUpdates int
}

// ProxyKind selects whether outbound relay connections route through a
// SOCKS5 proxy (spec.md §6: "proxy: None|Socks5{host,port}").
type ProxyKind int

const (
	ProxyNone ProxyKind = iota
	ProxySocks5
)

// ProxyConfig is the recognised proxy option. Host/Port are only
// meaningful when Kind is ProxySocks5.
type ProxyConfig struct {
	Kind ProxyKind
	Host string
	Port int
}

// DefaultVauchiConfig returns the spec-mandated defaults for every
// recognised option other than storage_path and relay.server_url,
// which have no sensible default and must be supplied by the caller or
// the environment.
func DefaultVauchiConfig(storagePath string) VauchiConfig {
	return VauchiConfig{
		StoragePath: storagePath,
		Relay: RelayConfig{
			ConnectTimeoutMS:     10000,
			IOTimeoutMS:          30000,
			MaxReconnectAttempts: 5,
			ReconnectBaseDelayMS: 1000,
			AckTimeoutMS:         30000,
			MaxPendingMessages:   100,
			MaxRetries:           8,
		},
		Sync: SyncConfig{
			AutoSync:          true,
			SyncIntervalMS:    60000,
			MaxPendingUpdates: 50,
		},
		Proxy: ProxyConfig{Kind: ProxyNone},
	}
}

// LoadVauchiConfig reads a VauchiConfig from .env files and the process
// environment, following DefaultVauchiConfig for any option left unset.
// The storage key, if present, is read from VAUCHI_STORAGE_KEY (hex) or,
// failing that, from Vault under the key "storage_key" if a Vault
// client was already initialized via InitializeVaultClient: the
// environment variable takes precedence, Vault is the fallback.
func LoadVauchiConfig() (VauchiConfig, error) {
	loadEnvFiles()

	storagePath := getEnv("VAUCHI_STORAGE_PATH", "")
	if storagePath == "" {
		return VauchiConfig{}, fmt.Errorf("config: VAUCHI_STORAGE_PATH is required")
	}

	cfg := DefaultVauchiConfig(storagePath)
	cfg.Relay.ServerURL = getEnv("VAUCHI_RELAY_SERVER_URL", "")
	cfg.Relay.ConnectTimeoutMS = getEnvInt("VAUCHI_RELAY_CONNECT_TIMEOUT_MS", cfg.Relay.ConnectTimeoutMS)
	cfg.Relay.IOTimeoutMS = getEnvInt("VAUCHI_RELAY_IO_TIMEOUT_MS", cfg.Relay.IOTimeoutMS)
	cfg.Relay.MaxReconnectAttempts = getEnvInt("VAUCHI_RELAY_MAX_RECONNECT_ATTEMPTS", cfg.Relay.MaxReconnectAttempts)
	cfg.Relay.ReconnectBaseDelayMS = getEnvInt("VAUCHI_RELAY_RECONNECT_BASE_DELAY_MS", cfg.Relay.ReconnectBaseDelayMS)
	cfg.Relay.AckTimeoutMS = getEnvInt("VAUCHI_RELAY_ACK_TIMEOUT_MS", cfg.Relay.AckTimeoutMS)
	cfg.Relay.MaxPendingMessages = getEnvInt("VAUCHI_RELAY_MAX_PENDING_MESSAGES", cfg.Relay.MaxPendingMessages)
	cfg.Relay.MaxRetries = getEnvInt("VAUCHI_RELAY_MAX_RETRIES", cfg.Relay.MaxRetries)

	cfg.Sync.AutoSync = getEnvBool("VAUCHI_SYNC_AUTO_SYNC", cfg.Sync.AutoSync)
	cfg.Sync.SyncIntervalMS = getEnvInt("VAUCHI_SYNC_SYNC_INTERVAL_MS", cfg.Sync.SyncIntervalMS)
	cfg.Sync.MaxPendingUpdates = getEnvInt("VAUCHI_SYNC_MAX_PENDING_UPDATES", cfg.Sync.MaxPendingUpdates)

	if host := getEnv("VAUCHI_PROXY_SOCKS5_HOST", ""); host != "" {
		cfg.Proxy = ProxyConfig{
			Kind: ProxySocks5,
			Host: host,
			Port: getEnvInt("VAUCHI_PROXY_SOCKS5_PORT", 1080),
		}
	}

	key, err := loadStorageKey()
	if err != nil {
		return VauchiConfig{}, err
	}
	cfg.StorageKey = key

	return cfg, nil
}

func loadStorageKey() (*[32]byte, error) {
	if hexKey := os.Getenv("VAUCHI_STORAGE_KEY"); hexKey != "" {
		return decodeStorageKey(hexKey)
	}
	if vaultClient != nil {
		if secret, err := GetSecretFromVault("storage_key"); err == nil && secret != "" {
			return decodeStorageKey(secret)
		}
	}
	return nil, nil
}

func decodeStorageKey(hexKey string) (*[32]byte, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("config: storage key is not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("config: storage key must decode to 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}
