package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/photocore/phashcore/internal/phash"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Hash    HashConfig    `yaml:"hash"`
	Cache   CacheConfig   `yaml:"cache"`
	Auth    AuthConfig    `yaml:"auth"`
	Scan    ScanConfig    `yaml:"scan"`
}

type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	MaxUploadSize int64  `yaml:"max_upload_size"` // байты
}

type StorageConfig struct {
	MediaPaths []string `yaml:"media_paths"`
	DBPath     string   `yaml:"db_path"`
	LogsPath   string   `yaml:"logs_path"`
}

// HashConfig задает формат хеша. Изменение size, low_size или addressing
// делает новые хеши несравнимыми с уже сохраненными.
type HashConfig struct {
	Size       int    `yaml:"size"`
	LowSize    int    `yaml:"low_size"`
	Addressing string `yaml:"addressing"` // legacy | row_major
	Transform  string `yaml:"transform"`  // direct | separable
	Parallel   bool   `yaml:"parallel"`
}

type CacheConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	MaxItems int           `yaml:"max_items"`
}

type AuthConfig struct {
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

type ScanConfig struct {
	Extensions []string `yaml:"extensions"`
	Workers    int      `yaml:"workers"`
	QueueSize  int      `yaml:"queue_size"`
	Watch      bool     `yaml:"watch"`
}

// Load читает конфигурацию из YAML-файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Установка значений по умолчанию
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Default возвращает конфигурацию без файла
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxUploadSize == 0 {
		c.Server.MaxUploadSize = 10 << 20
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "./data/phash.db"
	}
	if c.Storage.LogsPath == "" {
		c.Storage.LogsPath = "./logs"
	}
	if c.Hash.Size == 0 {
		c.Hash.Size = phash.DefaultSize
	}
	if c.Hash.LowSize == 0 {
		c.Hash.LowSize = phash.DefaultLowSize
	}
	if c.Hash.Addressing == "" {
		c.Hash.Addressing = string(phash.AddressingLegacy)
	}
	if c.Hash.Transform == "" {
		c.Hash.Transform = string(phash.TransformSeparableMode)
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 10 * time.Minute
	}
	if c.Cache.MaxItems == 0 {
		c.Cache.MaxItems = 5000
	}
	if c.Auth.AdminUsername == "" {
		c.Auth.AdminUsername = "admin"
	}
	if len(c.Scan.Extensions) == 0 {
		c.Scan.Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff"}
	}
	if c.Scan.QueueSize == 0 {
		c.Scan.QueueSize = 1000
	}
}

// Validate проверяет параметры хеша
func (c *Config) Validate() error {
	return c.HashOptions().Validate()
}

// HashOptions переводит секцию hash в параметры хешера
func (c *Config) HashOptions() phash.Options {
	return phash.Options{
		Size:       c.Hash.Size,
		LowSize:    c.Hash.LowSize,
		Addressing: phash.Addressing(c.Hash.Addressing),
		Transform:  phash.TransformMode(c.Hash.Transform),
		Parallel:   c.Hash.Parallel,
	}
}

// IsImage проверяет, входит ли расширение в список сканируемых
func (c *Config) IsImage(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range c.Scan.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}
