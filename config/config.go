package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
	Users    []User         `yaml:"users"`
	Database DatabaseConfig `yaml:"database"`
	PDF      PDFConfig      `yaml:"pdf"`
	Importer ImporterConfig `yaml:"importer"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Render   RenderConfig   `yaml:"render"`
	Search   SearchConfig   `yaml:"search"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type PDFConfig struct {
	RootDir   string `yaml:"root_dir"`
	UploadDir string `yaml:"upload_dir"`
}

type ImporterConfig struct {
	MaxFileSizeMB   int `yaml:"max_file_size_mb"`
	QueueSize       int `yaml:"queue_size"`
	JobTimeoutSec   int `yaml:"job_timeout_s"`
	MaxJobsRetained int `yaml:"max_jobs_retained"`
}

type ScannerConfig struct {
	QueueSize       int `yaml:"queue_size"`
	MaxJobsRetained int `yaml:"max_jobs_retained"`
}

type RenderConfig struct {
	Semaphore   int     `yaml:"semaphore"`
	TimeoutSec  float64 `yaml:"timeout_s"`
	CacheSize   int     `yaml:"cache_size"`
	CacheTTLSec int     `yaml:"cache_ttl_s"`
	MaxScale    float64 `yaml:"max_scale"`
}

type SearchConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
	CacheSize       int `yaml:"cache_size"`
	CacheTTLSec     int `yaml:"cache_ttl_s"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8791
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Auth.TokenExpireHours == 0 {
		cfg.Auth.TokenExpireHours = 24
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/ipc.sqlite"
	}
	if cfg.PDF.RootDir == "" {
		cfg.PDF.RootDir = "data/pdf"
	}
	if cfg.PDF.UploadDir == "" {
		cfg.PDF.UploadDir = "data/upload"
	}
	if cfg.Importer.MaxFileSizeMB == 0 {
		cfg.Importer.MaxFileSizeMB = 100
	}
	if cfg.Importer.QueueSize == 0 {
		cfg.Importer.QueueSize = 8
	}
	if cfg.Importer.JobTimeoutSec == 0 {
		cfg.Importer.JobTimeoutSec = 600
	}
	if cfg.Importer.MaxJobsRetained == 0 {
		cfg.Importer.MaxJobsRetained = 1000
	}
	if cfg.Scanner.QueueSize == 0 {
		cfg.Scanner.QueueSize = 64
	}
	if cfg.Scanner.MaxJobsRetained == 0 {
		cfg.Scanner.MaxJobsRetained = 200
	}
	if cfg.Render.Semaphore == 0 {
		cfg.Render.Semaphore = 4
	}
	if cfg.Render.TimeoutSec == 0 {
		cfg.Render.TimeoutSec = 30
	}
	if cfg.Render.CacheSize == 0 {
		cfg.Render.CacheSize = 100
	}
	if cfg.Render.CacheTTLSec == 0 {
		cfg.Render.CacheTTLSec = 3600
	}
	if cfg.Render.MaxScale == 0 {
		cfg.Render.MaxScale = 4.0
	}
	if cfg.Search.DefaultPageSize == 0 {
		cfg.Search.DefaultPageSize = 20
	}
	if cfg.Search.MaxPageSize == 0 {
		cfg.Search.MaxPageSize = 100
	}
	if cfg.Search.CacheSize == 0 {
		cfg.Search.CacheSize = 500
	}
	if cfg.Search.CacheTTLSec == 0 {
		cfg.Search.CacheTTLSec = 60
	}

	// Environment overrides, so secrets stay out of config files.
	if v := os.Getenv("IPC_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("IPC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	return &cfg, nil
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
