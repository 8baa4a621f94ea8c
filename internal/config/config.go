package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	SyncDB    SyncDBConfig    `yaml:"sync_db"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	Sources   SourcesConfig   `yaml:"sources"`
	Request   RequestConfig   `yaml:"request"`
	Workers   WorkersConfig   `yaml:"workers"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type WarehouseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	ParseTime          bool          `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

type SyncDBConfig struct {
	// Directory holding the per-deployment sync database file.
	Directory string `yaml:"directory"`
	Filename  string `yaml:"filename"`
}

type SnapshotsConfig struct {
	// OutputDirectory is where the extract worker writes CSV snapshots.
	// InputDirectory is where the load worker reads them; usually the same tree.
	OutputDirectory string `yaml:"output_directory"`
	InputDirectory  string `yaml:"input_directory"`
}

type RedisConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	ExtractQueue string `yaml:"extract_queue"`
	LoadQueue    string `yaml:"load_queue"`
	DLQSuffix    string `yaml:"dlq_suffix"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type SourcesConfig struct {
	Canvas    CanvasConfig    `yaml:"canvas"`
	Google    GoogleConfig    `yaml:"google"`
	Schoology SchoologyConfig `yaml:"schoology"`
}

type CanvasConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token"`
	AccountID   string `yaml:"account_id"`
}

type GoogleConfig struct {
	Enabled          bool   `yaml:"enabled"`
	BaseURL          string `yaml:"base_url"`
	ServiceAccount   string `yaml:"service_account"`
	ImpersonatedUser string `yaml:"impersonated_user"`
}

type SchoologyConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Key     string `yaml:"key"`
	Secret  string `yaml:"secret"`
}

type RequestConfig struct {
	RetryCount          int           `yaml:"retry_count"`
	RetryTimeoutSeconds int           `yaml:"retry_timeout_seconds"`
	Timeout             time.Duration `yaml:"timeout"`
	PageSize            int           `yaml:"page_size"`
}

type WorkersConfig struct {
	Extract ExtractWorkerConfig `yaml:"extract"`
	Load    LoadWorkerConfig    `yaml:"load"`
}

type ExtractWorkerConfig struct {
	Count      int           `yaml:"count"`
	Interval   time.Duration `yaml:"interval"`
	RunOnStart bool          `yaml:"run_on_start"`
}

type LoadWorkerConfig struct {
	Count int `yaml:"count"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	config.applyEnvOverrides()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Request.RetryCount == 0 {
		c.Request.RetryCount = 4
	}
	if c.Request.RetryTimeoutSeconds == 0 {
		c.Request.RetryTimeoutSeconds = 60
	}
	if c.Request.Timeout == 0 {
		c.Request.Timeout = 60 * time.Second
	}
	if c.Request.PageSize == 0 {
		c.Request.PageSize = 100
	}
	if c.SyncDB.Filename == "" {
		c.SyncDB.Filename = "sync.sqlite"
	}
	if c.Redis.ExtractQueue == "" {
		c.Redis.ExtractQueue = "lms:extract:jobs"
	}
	if c.Redis.LoadQueue == "" {
		c.Redis.LoadQueue = "lms:load:jobs"
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
	if c.Snapshots.InputDirectory == "" {
		c.Snapshots.InputDirectory = c.Snapshots.OutputDirectory
	}
	if c.Workers.Extract.Count == 0 {
		c.Workers.Extract.Count = 1
	}
	if c.Workers.Load.Count == 0 {
		c.Workers.Load.Count = 1
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REQUEST_RETRY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Request.RetryCount = n
		}
	}
	if v := os.Getenv("REQUEST_RETRY_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Request.RetryTimeoutSeconds = n
		}
	}
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) WarehouseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Warehouse.User, c.Warehouse.Password, c.Warehouse.Host, c.Warehouse.Port,
		c.Warehouse.Name, c.Warehouse.Charset, c.Warehouse.ParseTime, c.Warehouse.Loc)
}

func (c *Config) SyncDBPath() string {
	return c.SyncDB.Directory + string(os.PathSeparator) + c.SyncDB.Filename
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
