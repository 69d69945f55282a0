package sailor

import (
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/harborworks/flotilla/pkg/storage"
	"github.com/harborworks/flotilla/pkg/types"
)

// DefaultPort is the agent's listen port
const DefaultPort = 8001

// Config is the node's identity and advertised capacity, written once
// by `flotilla sailor setup` and read on every agent start.
type Config struct {
	Name        string      `json:"name"`
	CaptainHost string      `json:"captain_host"`
	CaptainPort int         `json:"captain_port"`
	Port        int         `json:"port"`
	CPUs        int         `json:"cpus"`
	GPUs        []types.GPU `json:"gpus"`
	RAM         int64       `json:"ram"`
}

// ConfigPath is where the node config lives under dataDir
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "resources.json")
}

// LoadConfig reads the node config written by setup
func LoadConfig(dataDir string) (Config, error) {
	var cfg Config
	if err := storage.LoadJSON(ConfigPath(dataDir), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load sailor config (run `flotilla sailor setup` first): %w", err)
	}
	if cfg.Name == "" {
		return Config{}, fmt.Errorf("sailor config has no name")
	}
	return cfg.withDefaults(), nil
}

// Save writes the node config atomically
func (c Config) Save(dataDir string) error {
	return storage.SaveJSON(ConfigPath(dataDir), c.withDefaults())
}

// Detect fills unset capacity fields from the host: logical CPU count
// and total memory.
func (c Config) Detect() Config {
	if c.CPUs <= 0 {
		if n, err := cpu.Counts(true); err == nil && n > 0 {
			c.CPUs = n
		}
	}
	if c.RAM <= 0 {
		if vm, err := mem.VirtualMemory(); err == nil {
			c.RAM = int64(vm.Total)
		}
	}
	return c
}

// CaptainAddr is the host:port the agent reports to
func (c Config) CaptainAddr() string {
	return fmt.Sprintf("%s:%d", c.CaptainHost, c.CaptainPort)
}

func (c Config) withDefaults() Config {
	if c.CaptainHost == "" {
		c.CaptainHost = "127.0.0.1"
	}
	if c.CaptainPort == 0 {
		c.CaptainPort = 8000
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	return c
}
