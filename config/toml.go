package config

import (
	"bytes"
	"os"
	"path/filepath"
	"text/template"

	cnos "github.com/coinnode/coinnode/libs/os"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate")
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

// EnsureRoot creates the root, config, and data directories if they don't
// exist, and writes the default config file if there is none yet.
func EnsureRoot(rootDir string) error {
	for _, dir := range []string{
		rootDir,
		filepath.Join(rootDir, defaultConfigDir),
		filepath.Join(rootDir, defaultDataDir),
	} {
		if err := cnos.EnsureDir(dir, defaultDirPerm); err != nil {
			return err
		}
	}
	return writeDefaultConfigFileIfNone(rootDir)
}

// ConfigFile returns the path of the config file under rootDir.
func ConfigFile(rootDir string) string {
	return filepath.Join(rootDir, defaultConfigFilePath)
}

// WriteConfigFile renders config using the template and writes it to
// the config file under rootDir.
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteToTemplate(ConfigFile(rootDir))
}

// WriteToTemplate writes the config to the exact file specified by
// the path, in the default toml template and does not mangle the path
// or filename at all.
func (cfg *Config) WriteToTemplate(path string) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}

	return os.WriteFile(path, buffer.Bytes(), 0644)
}

func writeDefaultConfigFileIfNone(rootDir string) error {
	if !cnos.FileExists(ConfigFile(rootDir)) {
		return WriteConfigFile(rootDir, DefaultConfig())
	}
	return nil
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/coinnode/data") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.coinnode" by default, but could be changed via $COINNODE_HOME env
# variable or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# Output level for logging: debug | info | warn | error
log_level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log_format = "{{ .BaseConfig.LogFormat }}"

#######################################################################
###                 Advanced Configuration Options                  ###
#######################################################################

#######################################################
###           P2P Configuration Options             ###
#######################################################
[p2p]

# Keep an address book for peers reachable over IPv4/IPv6
clearnet = {{ .P2P.ClearNet }}

# Keep an address book for peers behind Tor onion services
onion = {{ .P2P.Onion }}

# Set true for strict address routability rules
# Set false for private or local networks
addr_book_strict = {{ .P2P.AddrBookStrict }}

#######################################################
###        Address Book Configuration Options       ###
#######################################################
[addr_book]

# Maximum number of peers we have connected to, per zone
max_white_list_length = {{ .AddrBook.MaxWhiteListLength }}

# Maximum number of peers only heard of through gossip, per zone
max_gray_list_length = {{ .AddrBook.MaxGrayListLength }}

# Directory holding one <zone>_peers.json file per zone
peer_store_directory = "{{ .AddrBook.PeerStoreDirectory }}"

# Optional files of peers to ban at startup, one per line. Text after '#'
# is a comment. The clear-net list takes IPs, IP:port pairs and subnets
# (e.g. 1.2.3.0/24); the onion list takes onion hosts.
ban_list_path = "{{ .AddrBook.BanListPath }}"
onion_ban_list_path = "{{ .AddrBook.OnionBanListPath }}"

# Time between two saves of the peer files
peer_save_period = "{{ .AddrBook.PeerSavePeriod }}"

#######################################################
###       Instrumentation Configuration Options     ###
#######################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
# Check out the documentation for the list of available metrics.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus_listen_addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Maximum number of simultaneous connections.
# If you want to accept a larger number than the default, make sure
# you increase your OS limits.
# 0 - unlimited.
max_open_connections = {{ .Instrumentation.MaxOpenConnections }}

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`
