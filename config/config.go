package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/coinnode/coinnode/libs/log"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
// NOTE: libs/cli must know to look in the config dir!
var (
	DefaultCoinnodeDir = ".coinnode"
	defaultConfigDir   = "config"
	defaultDataDir     = "data"

	defaultConfigFileName = "config.toml"

	defaultConfigFilePath     = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultPeerStoreDirectory = filepath.Join(defaultDataDir, "peers")
)

// Config defines the top level configuration for a coinnode node
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	P2P             *P2PConfig             `mapstructure:"p2p"`
	AddrBook        *AddrBookConfig        `mapstructure:"addr_book"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration for a coinnode node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		P2P:             DefaultP2PConfig(),
		AddrBook:        DefaultAddrBookConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		P2P:             TestP2PConfig(),
		AddrBook:        TestAddrBookConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.AddrBook.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.P2P.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [p2p] section: %w", err)
	}
	if err := cfg.AddrBook.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [addr_book] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for a coinnode node
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// Output level for logging
	LogLevel string `mapstructure:"log_level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log_format"`
}

// DefaultBaseConfig returns a default base configuration for a coinnode node
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		LogLevel:  log.LogLevelInfo,
		LogFormat: LogFormatPlain,
	}
}

// TestBaseConfig returns a base configuration for testing a coinnode node
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.LogLevel = log.LogLevelDebug
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log_format (must be 'plain' or 'json')")
	}
	switch cfg.LogLevel {
	case log.LogLevelDebug, log.LogLevelInfo, log.LogLevelWarn, log.LogLevelError:
	default:
		return fmt.Errorf("unknown log_level %q", cfg.LogLevel)
	}
	return nil
}

//-----------------------------------------------------------------------------
// P2PConfig

// P2PConfig defines which network zones the node takes part in.
type P2PConfig struct {
	// Keep an address book for peers reachable over IPv4/IPv6
	ClearNet bool `mapstructure:"clearnet"`

	// Keep an address book for peers behind Tor onion services
	Onion bool `mapstructure:"onion"`

	// Set true for strict address routability rules
	// Set false for private or local networks
	AddrBookStrict bool `mapstructure:"addr_book_strict"`
}

// DefaultP2PConfig returns a default configuration for the peer-to-peer layer
func DefaultP2PConfig() *P2PConfig {
	return &P2PConfig{
		ClearNet:       true,
		Onion:          false,
		AddrBookStrict: true,
	}
}

// TestP2PConfig returns a configuration for testing the peer-to-peer layer
func TestP2PConfig() *P2PConfig {
	cfg := DefaultP2PConfig()
	cfg.Onion = true
	cfg.AddrBookStrict = false
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *P2PConfig) ValidateBasic() error {
	if !cfg.ClearNet && !cfg.Onion {
		return errors.New("at least one of clearnet and onion must be enabled")
	}
	return nil
}

//-----------------------------------------------------------------------------
// AddrBookConfig

// AddrBookConfig defines the configuration of the per-zone address books.
type AddrBookConfig struct {
	RootDir string `mapstructure:"home"`

	// Maximum number of peers we have connected to, per zone
	MaxWhiteListLength int `mapstructure:"max_white_list_length"`

	// Maximum number of peers only heard of through gossip, per zone
	MaxGrayListLength int `mapstructure:"max_gray_list_length"`

	// Directory holding one <zone>_peers.json file per zone
	PeerStoreDirectory string `mapstructure:"peer_store_directory"`

	// Optional file of IPs, IP:port pairs or subnets to ban at startup in
	// the clear-net zone
	BanListPath string `mapstructure:"ban_list_path"`

	// Optional file of onion hosts to ban at startup in the onion zone
	OnionBanListPath string `mapstructure:"onion_ban_list_path"`

	// Time between two saves of the peer files
	PeerSavePeriod time.Duration `mapstructure:"peer_save_period"`
}

// DefaultAddrBookConfig returns a default configuration for the address
// books
func DefaultAddrBookConfig() *AddrBookConfig {
	return &AddrBookConfig{
		MaxWhiteListLength: 1000,
		MaxGrayListLength:  5000,
		PeerStoreDirectory: defaultPeerStoreDirectory,
		BanListPath:        "",
		OnionBanListPath:   "",
		PeerSavePeriod:     90 * time.Second,
	}
}

// TestAddrBookConfig returns a configuration for testing the address books
func TestAddrBookConfig() *AddrBookConfig {
	cfg := DefaultAddrBookConfig()
	cfg.MaxWhiteListLength = 10
	cfg.MaxGrayListLength = 20
	cfg.PeerSavePeriod = time.Second
	return cfg
}

// PeerStoreDir returns the full path to the peer store directory
func (cfg *AddrBookConfig) PeerStoreDir() string {
	return rootify(cfg.PeerStoreDirectory, cfg.RootDir)
}

// BanListFile returns the full path to the clear-net ban list, or "" if
// there is none
func (cfg *AddrBookConfig) BanListFile() string {
	return optionalFile(cfg.BanListPath, cfg.RootDir)
}

// OnionBanListFile returns the full path to the onion ban list, or "" if
// there is none
func (cfg *AddrBookConfig) OnionBanListFile() string {
	return optionalFile(cfg.OnionBanListPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *AddrBookConfig) ValidateBasic() error {
	if cfg.MaxWhiteListLength <= 0 {
		return errors.New("max_white_list_length must be positive")
	}
	if cfg.MaxGrayListLength <= 0 {
		return errors.New("max_gray_list_length must be positive")
	}
	if cfg.PeerStoreDirectory == "" {
		return errors.New("peer_store_directory can't be empty")
	}
	if cfg.PeerSavePeriod <= 0 {
		return errors.New("peer_save_period must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	// Check out the documentation for the list of available metrics.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr"`

	// Maximum number of simultaneous connections.
	// If you want to accept a larger number than the default, make sure
	// you increase your OS limits.
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max_open_connections"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		MaxOpenConnections:   3,
		Namespace:            "coinnode",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.MaxOpenConnections < 0 {
		return errors.New("max_open_connections can't be negative")
	}
	if cfg.Prometheus && cfg.PrometheusListenAddr == "" {
		return errors.New("prometheus_listen_addr can't be empty when prometheus is on")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func optionalFile(path, root string) string {
	if path == "" {
		return ""
	}
	return rootify(path, root)
}
