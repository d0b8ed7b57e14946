package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultLateThreshold is the grace period after a session start within
// which a scan still counts as present.
const DefaultLateThreshold = 15 * time.Minute

type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Directory  DirectoryConfig  `yaml:"directory"`
	Workers    WorkersConfig    `yaml:"workers"`
	Sync       SyncConfig       `yaml:"sync"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Logging    LoggingConfig    `yaml:"logging"`
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
	MaxUploadSize   int64         `yaml:"max_upload_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
	AutoMigrate        bool          `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	PoolSize    int    `yaml:"pool_size"`
	SyncQueue   string `yaml:"sync_queue"`
	ImportQueue string `yaml:"import_queue"`
	DLQSuffix   string `yaml:"dlq_suffix"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// DirectoryConfig points at the host school system that owns students and
// class schedules.
type DirectoryConfig struct {
	BaseURL           string        `yaml:"base_url"`
	AuthEndpoint      string        `yaml:"auth_endpoint"`
	StudentsEndpoint  string        `yaml:"students_endpoint"`
	SchedulesEndpoint string        `yaml:"schedules_endpoint"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	Timeout           time.Duration `yaml:"timeout"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
}

type WorkersConfig struct {
	Sync   SyncWorkerConfig   `yaml:"sync"`
	Import ImportWorkerConfig `yaml:"import"`
	Repair RepairWorkerConfig `yaml:"repair"`
}

type SyncWorkerConfig struct {
	Count            int `yaml:"count"`
	EventConcurrency int `yaml:"event_concurrency"`
}

type ImportWorkerConfig struct {
	Count     int `yaml:"count"`
	BatchSize int `yaml:"batch_size"`
}

// RepairWorkerConfig controls the periodic pass that re-derives attendance
// for audit rows left pending or failed. Rows younger than MinAge may still
// be in flight; rows older than MaxAge are left for an operator.
type RepairWorkerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MinAge     time.Duration `yaml:"min_age"`
	MaxAge     time.Duration `yaml:"max_age"`
	RunOnStart bool          `yaml:"run_on_start"`
}

type SyncConfig struct {
	Timezone     string        `yaml:"timezone"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	MaxBatchSize int           `yaml:"max_batch_size"`
}

type AttendanceConfig struct {
	LateThreshold time.Duration `yaml:"late_threshold"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML config, applies env overrides and defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	// Seeded before decoding so an explicit zero grace period survives.
	config := Config{Attendance: AttendanceConfig{LateThreshold: DefaultLateThreshold}}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		c.Storage.S3.SecretKey = v
	}
	if v := os.Getenv("DIRECTORY_PASSWORD"); v != "" {
		c.Directory.Password = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxUploadSize == 0 {
		c.Server.MaxUploadSize = 10 << 20
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.Loc == "" {
		c.Database.Loc = "UTC"
	}
	if c.Redis.SyncQueue == "" {
		c.Redis.SyncQueue = "biometric:sync"
	}
	if c.Redis.ImportQueue == "" {
		c.Redis.ImportQueue = "biometric:import"
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
	if c.Directory.Timeout == 0 {
		c.Directory.Timeout = 30 * time.Second
	}
	if c.Directory.RetryAttempts == 0 {
		c.Directory.RetryAttempts = 3
	}
	if c.Workers.Sync.Count == 0 {
		c.Workers.Sync.Count = 4
	}
	if c.Workers.Sync.EventConcurrency == 0 {
		c.Workers.Sync.EventConcurrency = 8
	}
	if c.Workers.Import.Count == 0 {
		c.Workers.Import.Count = 2
	}
	if c.Workers.Import.BatchSize == 0 {
		c.Workers.Import.BatchSize = 500
	}
	if c.Workers.Repair.Interval == 0 {
		c.Workers.Repair.Interval = 15 * time.Minute
	}
	if c.Workers.Repair.BatchSize == 0 {
		c.Workers.Repair.BatchSize = 200
	}
	if c.Workers.Repair.MinAge == 0 {
		c.Workers.Repair.MinAge = 5 * time.Minute
	}
	if c.Workers.Repair.MaxAge == 0 {
		c.Workers.Repair.MaxAge = 7 * 24 * time.Hour
	}
	if c.Sync.Timezone == "" {
		c.Sync.Timezone = "UTC"
	}
	if c.Sync.BatchTimeout == 0 {
		c.Sync.BatchTimeout = 60 * time.Second
	}
	if c.Sync.MaxBatchSize == 0 {
		c.Sync.MaxBatchSize = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Sync.Timezone); err != nil {
		return fmt.Errorf("invalid sync timezone %q: %w", c.Sync.Timezone, err)
	}
	if c.Attendance.LateThreshold < 0 {
		return fmt.Errorf("attendance late_threshold must not be negative, got %s", c.Attendance.LateThreshold)
	}
	if c.Workers.Sync.EventConcurrency < 1 {
		return fmt.Errorf("workers.sync.event_concurrency must be positive, got %d", c.Workers.Sync.EventConcurrency)
	}
	return nil
}

// Location returns the school timezone used to interpret zone-less scan timestamps.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=%s&clientFoundRows=true",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
