package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config carries all runtime settings. Every value has a default so the
// service starts with no environment at all; any key can be overridden via
// an environment variable of the same name.
type Config struct {
	Port string

	DataDir      string
	DatabasePath string // structured store (SQLite file)
	AssetDBPath  string // blob/metadata store (bbolt file)
	UploadDir    string // stored image files
	ArchiveDir   string // dated backup archives
	LogDir       string // operational log files bundled into archives

	PythonBin      string
	ScriptsDir     string
	ExtractTimeout time.Duration

	MaxUploadSize int64
	IngestRate    float64 // ingest attempts refilled per second, per client
	IngestBurst   float64

	BackupSchedule  string // cron expression for the daily trigger
	BackupRetention int    // archives kept by the retention sweep
	TokenSecret     string // HMAC secret for archive download tokens

	StoreRetryAttempts int
	StoreRetryDelay    time.Duration

	TaskWorkers int
	TaskQueue   int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailTo       string

	LogFormat string
	LogLevel  string
}

// Load reads configuration from the environment, applies defaults, and
// creates the working directories.
func Load() (*Config, error) {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DATA_DIR", "data")
	viper.SetDefault("DATABASE_PATH", "")
	viper.SetDefault("ASSET_DB_PATH", "")
	viper.SetDefault("UPLOAD_DIR", "")
	viper.SetDefault("ARCHIVE_DIR", "")
	viper.SetDefault("LOG_DIR", "")
	viper.SetDefault("PYTHON_BIN", "python3")
	viper.SetDefault("SCRIPTS_DIR", "scripts")
	viper.SetDefault("EXTRACT_TIMEOUT", "30s")
	viper.SetDefault("MAX_UPLOAD_SIZE", 10<<20)
	viper.SetDefault("INGEST_RATE", 5.0)
	viper.SetDefault("INGEST_BURST", 10.0)
	viper.SetDefault("BACKUP_SCHEDULE", "0 2 * * *")
	viper.SetDefault("BACKUP_RETENTION", 7)
	viper.SetDefault("BACKUP_TOKEN_SECRET", "")
	viper.SetDefault("STORE_RETRY_ATTEMPTS", 5)
	viper.SetDefault("STORE_RETRY_DELAY", "2s")
	viper.SetDefault("TASK_WORKERS", 2)
	viper.SetDefault("TASK_QUEUE", 32)
	viper.SetDefault("SMTP_HOST", "")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("SMTP_USERNAME", "")
	viper.SetDefault("SMTP_PASSWORD", "")
	viper.SetDefault("SMTP_FROM", "")
	viper.SetDefault("SMTP_TO", "")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.AutomaticEnv()

	cfg := &Config{
		Port:               viper.GetString("PORT"),
		DataDir:            viper.GetString("DATA_DIR"),
		DatabasePath:       viper.GetString("DATABASE_PATH"),
		AssetDBPath:        viper.GetString("ASSET_DB_PATH"),
		UploadDir:          viper.GetString("UPLOAD_DIR"),
		ArchiveDir:         viper.GetString("ARCHIVE_DIR"),
		LogDir:             viper.GetString("LOG_DIR"),
		PythonBin:          viper.GetString("PYTHON_BIN"),
		ScriptsDir:         viper.GetString("SCRIPTS_DIR"),
		ExtractTimeout:     viper.GetDuration("EXTRACT_TIMEOUT"),
		MaxUploadSize:      viper.GetInt64("MAX_UPLOAD_SIZE"),
		IngestRate:         viper.GetFloat64("INGEST_RATE"),
		IngestBurst:        viper.GetFloat64("INGEST_BURST"),
		BackupSchedule:     viper.GetString("BACKUP_SCHEDULE"),
		BackupRetention:    viper.GetInt("BACKUP_RETENTION"),
		TokenSecret:        viper.GetString("BACKUP_TOKEN_SECRET"),
		StoreRetryAttempts: viper.GetInt("STORE_RETRY_ATTEMPTS"),
		StoreRetryDelay:    viper.GetDuration("STORE_RETRY_DELAY"),
		TaskWorkers:        viper.GetInt("TASK_WORKERS"),
		TaskQueue:          viper.GetInt("TASK_QUEUE"),
		SMTPHost:           viper.GetString("SMTP_HOST"),
		SMTPPort:           viper.GetInt("SMTP_PORT"),
		SMTPUsername:       viper.GetString("SMTP_USERNAME"),
		SMTPPassword:       viper.GetString("SMTP_PASSWORD"),
		MailFrom:           viper.GetString("SMTP_FROM"),
		MailTo:             viper.GetString("SMTP_TO"),
		LogFormat:          viper.GetString("LOG_FORMAT"),
		LogLevel:           viper.GetString("LOG_LEVEL"),
	}

	// Paths left empty resolve under the data directory, so overriding
	// DATA_DIR alone relocates the whole working set.
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "posevault.db")
	}
	if cfg.AssetDBPath == "" {
		cfg.AssetDBPath = filepath.Join(cfg.DataDir, "assets.db")
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(cfg.DataDir, "uploads")
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = filepath.Join(cfg.DataDir, "backups")
	}
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.DataDir, "logs")
	}

	if err := createDirs(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDirs(cfg *Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.UploadDir, cfg.ArchiveDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
