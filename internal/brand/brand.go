// Package brand holds the product identity shared by the daemon, its CLI and
// its packaging. Values come from brand.json, embedded at compile time.
package brand

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information.
type Brand struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Repository       string `json:"repository"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultRunDir    string `json:"defaultRunDir"`
	ConfigFileName   string `json:"configFileName"`
	SocketName       string `json:"socketName"`
	BinaryName       string `json:"binaryName"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultRunDir = b.DefaultRunDir
	ConfigFileName = b.ConfigFileName
	SocketName = b.SocketName
	BinaryName = b.BinaryName
}

var (
	Name             string
	Description      string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	DefaultRunDir    string
	ConfigFileName   string
	SocketName       string
	BinaryName       string

	// Set at build time via -ldflags
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Get returns the full Brand struct.
func Get() Brand {
	return b
}

// VersionString describes the running build.
func VersionString() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s/%s)",
		Name, Version, GitCommit, BuildTime, runtime.GOOS, runtime.GOARCH)
}

// GetConfigDir returns the config directory.
// Priority: SPLITDNS_CONFIG_DIR > SPLITDNS_PREFIX/etc > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "etc")
	}
	return DefaultConfigDir
}

// GetRunDir returns the runtime directory for the control socket.
// Priority: SPLITDNS_RUN_DIR > SPLITDNS_PREFIX/run > DefaultRunDir
func GetRunDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_RUN_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "run")
	}
	return DefaultRunDir
}

// ConfigPath is the default configuration file.
func ConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}

// SocketPath is the default control socket.
func SocketPath() string {
	return filepath.Join(GetRunDir(), SocketName)
}
