package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port    int      `yaml:"port"`
		Debug   bool     `yaml:"debug"`
		APIKeys []string `yaml:"apiKeys"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Scan struct {
		Include            []string `yaml:"include"`
		Exclude            []string `yaml:"exclude"`
		MaxParallel        int      `yaml:"maxParallel"`        // 0 = derive from core count
		MemoryLimitMB      int      `yaml:"memoryLimitMb"`      // 0 = unbounded
		StreamingThreshold int64    `yaml:"streamingThreshold"` // bytes; above this files are chunked
		MaxFileSize        int64    `yaml:"maxFileSize"`        // bytes; above this files are skipped
		ChunkSize          int      `yaml:"chunkSize"`          // bytes per streaming chunk
		FileTimeoutSec     int      `yaml:"fileTimeoutSec"`
		BatchTimeoutSec    int      `yaml:"batchTimeoutSec"`
		Aggressive         bool     `yaml:"aggressive"`
	} `yaml:"scan"`

	ML struct {
		Enabled             bool    `yaml:"enabled"`
		ModelPath           string  `yaml:"modelPath"`
		FeatureMode         string  `yaml:"featureMode"` // basic | enhanced
		ConfidenceThreshold float64 `yaml:"confidenceThreshold"`
		FeedbackPath        string  `yaml:"feedbackPath"`
		FlushSchedule       string  `yaml:"flushSchedule"`
	} `yaml:"ml"`

	Retention struct {
		ResultsDir        string `yaml:"resultsDir"`
		QuarantineDir     string `yaml:"quarantineDir"`
		ReportDir         string `yaml:"reportDir"`
		AuditLog          string `yaml:"auditLog"`
		// Pointer so an explicit 0 (everything is stale) is
		// distinguishable from an absent key.
		MaxAgeDays        *int   `yaml:"maxAgeDays"`
		MaxSizeMB         int    `yaml:"maxSizeMb"`
		MinResultsToKeep  int    `yaml:"minResultsToKeep"`
		CleanupSchedule   string `yaml:"cleanupSchedule"`
		IntegritySchedule string `yaml:"integritySchedule"`
		AutoRepair        bool   `yaml:"autoRepair"`
	} `yaml:"retention"`
}

// Load reads the yaml config from path and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Scan.StreamingThreshold == 0 {
		c.Scan.StreamingThreshold = 2 * 1024 * 1024
	}
	if c.Scan.MaxFileSize == 0 {
		c.Scan.MaxFileSize = 64 * 1024 * 1024
	}
	if c.Scan.ChunkSize == 0 {
		c.Scan.ChunkSize = 64 * 1024
	}
	if c.ML.FeatureMode == "" {
		c.ML.FeatureMode = "basic"
	}
	if c.ML.ConfidenceThreshold == 0 {
		c.ML.ConfidenceThreshold = 0.8
	}
	if c.Retention.ResultsDir == "" {
		c.Retention.ResultsDir = ".codewarden/results"
	}
	if c.Retention.QuarantineDir == "" {
		c.Retention.QuarantineDir = filepath.Join(c.Retention.ResultsDir, "quarantine")
	}
	if c.Retention.ReportDir == "" {
		c.Retention.ReportDir = filepath.Join(c.Retention.ResultsDir, "reports")
	}
	if c.Retention.AuditLog == "" {
		c.Retention.AuditLog = filepath.Join(c.Retention.ResultsDir, "audit.log")
	}
	if c.Retention.MaxAgeDays == nil {
		days := 30
		c.Retention.MaxAgeDays = &days
	}
	if c.Retention.MaxSizeMB == 0 {
		c.Retention.MaxSizeMB = 500
	}
	if c.ML.FeedbackPath == "" {
		c.ML.FeedbackPath = ".codewarden/feedback.jsonl"
	}
}

// Validate rejects configurations that must never reach a running scan.
func (c *Config) Validate() error {
	if c.Database.Driver != "mysql" && c.Database.Driver != "postgres" {
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if c.Scan.MaxParallel < 0 {
		return fmt.Errorf("config: scan.maxParallel must be >= 0")
	}
	if c.Scan.MemoryLimitMB < 0 {
		return fmt.Errorf("config: scan.memoryLimitMb must be >= 0")
	}
	if c.Scan.MaxFileSize < c.Scan.StreamingThreshold {
		return fmt.Errorf("config: scan.maxFileSize must be >= scan.streamingThreshold")
	}
	if c.ML.FeatureMode != "basic" && c.ML.FeatureMode != "enhanced" {
		return fmt.Errorf("config: ml.featureMode must be basic or enhanced")
	}
	if c.ML.ConfidenceThreshold <= 0 || c.ML.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: ml.confidenceThreshold must be in (0, 1]")
	}
	if *c.Retention.MaxAgeDays < 0 || c.Retention.MaxSizeMB < 0 || c.Retention.MinResultsToKeep < 0 {
		return fmt.Errorf("config: retention thresholds must be >= 0")
	}
	return nil
}

// MySQLDSN builds the DSN for the mysql driver.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds the DSN for lib/pq.
func (c *Config) PostgresDSN() string {
	ssl := c.Database.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		ssl,
	)
}

// FileTimeout returns the per-file analysis timeout, zero when disabled.
func (c *Config) FileTimeout() time.Duration {
	return time.Duration(c.Scan.FileTimeoutSec) * time.Second
}

// BatchTimeout returns the per-batch timeout, zero when disabled.
func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.Scan.BatchTimeoutSec) * time.Second
}
