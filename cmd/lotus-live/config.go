package main

import (
	"time"

	"github.com/tinytelemetry/lotus-live/internal/journal"
	"github.com/tinytelemetry/lotus-live/internal/router"
)

const (
	defaultBindHost          = "127.0.0.1"
	defaultTCPPort           = 4100
	defaultAPIPort           = 3100
	defaultMuxBufferSize     = DefaultMuxBuffer
	defaultServiceAPIVersion = 1
	defaultServiceTimeout    = 10 * time.Second
	defaultSubmitTimeout     = 30 * time.Second
	defaultJournalRetention  = journal.DefaultRetention
	defaultDedupCacheSize    = router.DefaultDedupSize
	defaultReplayCacheSize   = router.DefaultReplaySize
	defaultBackupInterval    = 6 * time.Hour
	defaultBackupKeepLast    = 24
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	TestMode bool   `mapstructure:"test-mode" yaml:"test-mode"`
	Host     string `mapstructure:"host" yaml:"host"`

	SocketPath string `mapstructure:"socket-path" yaml:"socket-path"`

	APIEnabled bool   `mapstructure:"api-enabled" yaml:"api-enabled"`
	APIPort    int    `mapstructure:"api-port" yaml:"api-port"`
	APIAddr    string `mapstructure:"api-addr" yaml:"api-addr"`

	TCPEnabled    bool   `mapstructure:"tcp-enabled" yaml:"tcp-enabled"`
	TCPPort       int    `mapstructure:"tcp-port" yaml:"tcp-port"`
	TCPAddr       string `mapstructure:"tcp-addr" yaml:"tcp-addr"`
	MuxBufferSize int    `mapstructure:"mux-buffer-size" yaml:"mux-buffer-size"`
	ReplayFile    string `mapstructure:"replay-file" yaml:"replay-file,omitempty"`

	ServiceURL        string        `mapstructure:"service-url" yaml:"service-url"`
	ServiceAPIKey     string        `mapstructure:"service-api-key" yaml:"service-api-key,omitempty"`
	ServiceAPIVersion int           `mapstructure:"service-api-version" yaml:"service-api-version"`
	ServiceTimeout    time.Duration `mapstructure:"service-timeout" yaml:"service-timeout"`
	SubmitTimeout     time.Duration `mapstructure:"submit-timeout" yaml:"submit-timeout"`
	StrictConditions  bool          `mapstructure:"strict-conditions" yaml:"strict-conditions"`

	JournalEnabled   bool          `mapstructure:"journal-enabled" yaml:"journal-enabled"`
	JournalPath      string        `mapstructure:"journal-path" yaml:"journal-path"`
	JournalRetention time.Duration `mapstructure:"journal-retention" yaml:"journal-retention"`

	BackupEnabled        bool          `mapstructure:"backup-enabled" yaml:"backup-enabled"`
	BackupInterval       time.Duration `mapstructure:"backup-interval" yaml:"backup-interval"`
	BackupLocalDir       string        `mapstructure:"backup-local-dir" yaml:"backup-local-dir"`
	BackupKeepLast       int           `mapstructure:"backup-keep-last" yaml:"backup-keep-last"`
	BackupBucketURL      string        `mapstructure:"backup-bucket-url" yaml:"backup-bucket-url,omitempty"`
	BackupS3Endpoint     string        `mapstructure:"backup-s3-endpoint" yaml:"backup-s3-endpoint,omitempty"`
	BackupS3Region       string        `mapstructure:"backup-s3-region" yaml:"backup-s3-region,omitempty"`
	BackupS3AccessKey    string        `mapstructure:"backup-s3-access-key" yaml:"backup-s3-access-key,omitempty"`
	BackupS3SecretKey    string        `mapstructure:"backup-s3-secret-key" yaml:"backup-s3-secret-key,omitempty"`
	BackupS3SessionToken string        `mapstructure:"backup-s3-session-token" yaml:"backup-s3-session-token,omitempty"`
	BackupS3UseSSL       bool          `mapstructure:"backup-s3-use-ssl" yaml:"backup-s3-use-ssl"`

	DedupCacheSize  int `mapstructure:"dedup-cache-size" yaml:"dedup-cache-size"`
	ReplayCacheSize int `mapstructure:"replay-cache-size" yaml:"replay-cache-size"`

	LogLevel  string `mapstructure:"log-level" yaml:"log-level"`
	LogFormat string `mapstructure:"log-format" yaml:"log-format"`
	LogOutput string `mapstructure:"log-output" yaml:"log-output"`
	LogFile   string `mapstructure:"log-file" yaml:"log-file,omitempty"`

	ConfigPath string `mapstructure:"-" yaml:"-"` // not from config file
}
