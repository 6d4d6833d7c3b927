package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Backend names.
const (
	BackendFileSystem = "file_system"
	BackendSwift      = "swift"
)

type (
	// A Config holds the server settings.
	Config struct {
		ListenAddr     string `yaml:"listen_addr"`
		StoragePath    string `yaml:"storage_path"`
		DatabasePath   string `yaml:"database_path"`
		StaticPath     string `yaml:"static_path"`
		Backend        string `yaml:"backend"`
		MaxChunkSize   string `yaml:"max_chunk_size"`
		StaleAfter     string `yaml:"stale_after"`
		Schedule       string `yaml:"schedule"`
		VerifyChecksum bool   `yaml:"verify_checksum"`
		Debug          bool   `yaml:"debug"`
		Swift          Swift  `yaml:"swift"`
	}

	// Swift holds the OpenStack Swift backend settings.
	Swift struct {
		AuthURL   string `yaml:"auth_url"`
		UserName  string `yaml:"username"`
		APIKey    string `yaml:"api_key"`
		Tenant    string `yaml:"tenant"`
		Domain    string `yaml:"domain"`
		Region    string `yaml:"region"`
		Container string `yaml:"container"`
	}
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ListenAddr:   "0.0.0.0:8081",
		StoragePath:  "assets",
		DatabasePath: "resumable.db",
		Backend:      BackendFileSystem,
		MaxChunkSize: "64MiB",
		StaleAfter:   "24h",
		Schedule:     "@every 10m",
		Swift: Swift{
			Domain:    "Default",
			Region:    "RegionOne",
			Container: "resumable",
		},
	}
}

// Load reads the optional YAML file at path over the defaults, then applies the ENV overrides.
// An empty path falls back to CONFIG_PATH.
func Load(path string) (*Config, error) {
	c := Default()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "could not read config")
		}

		if err = yaml.Unmarshal(payload, c); err != nil {
			return nil, errors.Wrap(err, "could not parse config")
		}
	}

	// ENV override
	envString(&c.ListenAddr, "LISTEN_ADDR")
	envString(&c.StoragePath, "STORAGE_PATH")
	envString(&c.StaticPath, "STATIC_PATH")
	envString(&c.Backend, "STORAGE_BACKEND")
	envString(&c.MaxChunkSize, "MAX_CHUNK_SIZE")
	envString(&c.StaleAfter, "STALE_AFTER")
	envString(&c.Schedule, "SCHEDULE")
	envBool(&c.VerifyChecksum, "VERIFY_CHECKSUM")
	envBool(&c.Debug, "DEBUG")
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.DatabasePath = filepath.Join(v, filepath.Base(c.DatabasePath))
	}

	envString(&c.Swift.AuthURL, "SWIFT_AUTH_URL")
	envString(&c.Swift.UserName, "SWIFT_USERNAME")
	envString(&c.Swift.APIKey, "SWIFT_API_KEY")
	envString(&c.Swift.Tenant, "SWIFT_TENANT")
	envString(&c.Swift.Domain, "SWIFT_DOMAIN")
	envString(&c.Swift.Region, "SWIFT_REGION")
	envString(&c.Swift.Container, "SWIFT_CONTAINER")

	return c, c.Validate()
}

// Validate checks the settings.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFileSystem:
	case BackendSwift:
		if c.Swift.AuthURL == "" || c.Swift.Container == "" {
			return errors.New("swift backend requires auth_url and container")
		}
	default:
		return errors.Errorf("unsupported backend %q", c.Backend)
	}

	if _, err := c.ChunkSizeLimit(); err != nil {
		return err
	}
	_, err := c.StaleDuration()
	return err
}

// ChunkSizeLimit returns MaxChunkSize in bytes, 0 means unlimited.
func (c *Config) ChunkSizeLimit() (int64, error) {
	if c.MaxChunkSize == "" || c.MaxChunkSize == "0" {
		return 0, nil
	}

	size, err := units.RAMInBytes(c.MaxChunkSize)
	return size, errors.Wrap(err, "max_chunk_size")
}

// StaleDuration returns StaleAfter as a duration.
func (c *Config) StaleDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.StaleAfter)
	return d, errors.Wrap(err, "stale_after")
}

// StagingPath returns the local directory where uploads are staged.
// It lives inside the storage path so the file system backend can rename staged files.
func (c *Config) StagingPath() string {
	return filepath.Join(c.StoragePath, ".staging")
}

func envString(v *string, name string) {
	if s := os.Getenv(name); s != "" {
		*v = s
	}
}

func envBool(v *bool, name string) {
	if s := os.Getenv(name); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			*v = b
		}
	}
}
