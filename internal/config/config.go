package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig   `mapstructure:"server"`
	Database   DatabaseConfig `mapstructure:"database"`
	RabbitMQ   RabbitMQConfig `mapstructure:"rabbitmq"`
	Log        LogConfig      `mapstructure:"log"`
	Model      ModelConfig    `mapstructure:"model"`
	Intel      IntelConfig    `mapstructure:"intel"`
	Fusion     FusionConfig   `mapstructure:"fusion"`
	Pipeline   PipelineConfig `mapstructure:"pipeline"`
	Watcher    WatcherConfig  `mapstructure:"watcher"`
	Worker     WorkerConfig   `mapstructure:"worker"`
	InboundDir string         `mapstructure:"inbound_dir"`
	DataDir    string         `mapstructure:"data_dir"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // mysql, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
}

type RabbitMQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Queue    string `mapstructure:"queue"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// ModelConfig 分类模型配置
type ModelConfig struct {
	Path     string `mapstructure:"path"`     // 模型文件路径 (JSON bundle)
	Required bool   `mapstructure:"required"` // 模型加载失败时是否终止启动
}

// IntelServiceConfig 单个威胁情报服务配置
type IntelServiceConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"api_key"`
	Timeout    int    `mapstructure:"timeout"`     // seconds
	MaxRetries int    `mapstructure:"max_retries"` // 瞬时错误的最大重试次数
}

// IntelConfig 威胁情报聚合配置
type IntelConfig struct {
	VirusTotal    IntelServiceConfig `mapstructure:"virustotal"`
	MalwareBazaar IntelServiceConfig `mapstructure:"malwarebazaar"`
	CacheTTL      int                `mapstructure:"cache_ttl"` // seconds, 0 禁用缓存
}

// FusionConfig 信号融合配置
type FusionConfig struct {
	StaticWeight       float64 `mapstructure:"static_weight"`
	ClassifierWeight   float64 `mapstructure:"classifier_weight"`
	IntelWeight        float64 `mapstructure:"intel_weight"`
	BenignThreshold    float64 `mapstructure:"benign_threshold"`    // T1: score < T1 -> benign
	MaliciousThreshold float64 `mapstructure:"malicious_threshold"` // T2: score >= T2 -> malicious
}

// PipelineConfig 分析管线配置
type PipelineConfig struct {
	MaxUploadMB        int  `mapstructure:"max_upload_mb"`
	MaxDecompressedMB  int  `mapstructure:"max_decompressed_mb"` // 解压炸弹防御
	MaxEntryCount      int  `mapstructure:"max_entry_count"`
	RequestTimeout     int  `mapstructure:"request_timeout"`     // seconds, 整体请求截止时间
	RequireSignature   bool `mapstructure:"require_signature"`   // 无签名时硬失败还是降级为 finding
	ClassifierRequired bool `mapstructure:"classifier_required"` // 分类失败时终止请求还是降级输出

	// 外部注入的策略表（非硬编码）
	DangerousPermissions []string `mapstructure:"dangerous_permissions"`
	TrustedCerts         []string `mapstructure:"trusted_certs"`
	TrustedIcons         []string `mapstructure:"trusted_icons"`
}

type WatcherConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Pattern string `mapstructure:"pattern"` // 如 "*.apk"
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"` // Worker 数量
	QueueSize   int `mapstructure:"queue_size"`  // 任务队列大小
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	// 环境变量覆盖（支持嵌套配置）
	v.AutomaticEnv()

	// RabbitMQ
	v.BindEnv("rabbitmq.host", "RABBITMQ_HOST")
	v.BindEnv("rabbitmq.port", "RABBITMQ_PORT")
	v.BindEnv("rabbitmq.user", "RABBITMQ_USER")
	v.BindEnv("rabbitmq.password", "RABBITMQ_PASS")

	// Database
	v.BindEnv("database.host", "MYSQL_HOST")
	v.BindEnv("database.port", "MYSQL_PORT")
	v.BindEnv("database.user", "MYSQL_USER")
	v.BindEnv("database.password", "MYSQL_PASS")
	v.BindEnv("database.db_name", "MYSQL_DB")

	// 情报服务密钥不放进 yaml
	v.BindEnv("intel.virustotal.api_key", "VT_API_KEY")
	v.BindEnv("intel.malwarebazaar.api_key", "MB_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("intel.virustotal.url", "https://www.virustotal.com/api/v3/files/")
	v.SetDefault("intel.malwarebazaar.url", "https://mb-api.abuse.ch/api/v1/")
	v.SetDefault("intel.virustotal.timeout", 15)
	v.SetDefault("intel.malwarebazaar.timeout", 15)
	v.SetDefault("intel.virustotal.max_retries", 1)
	v.SetDefault("intel.malwarebazaar.max_retries", 1)
	v.SetDefault("intel.cache_ttl", 600)

	v.SetDefault("fusion.static_weight", 0.2)
	v.SetDefault("fusion.classifier_weight", 0.5)
	v.SetDefault("fusion.intel_weight", 0.3)
	v.SetDefault("fusion.benign_threshold", 30.0)
	v.SetDefault("fusion.malicious_threshold", 60.0)

	v.SetDefault("pipeline.max_upload_mb", 50)
	v.SetDefault("pipeline.max_decompressed_mb", 512)
	v.SetDefault("pipeline.max_entry_count", 10000)
	v.SetDefault("pipeline.request_timeout", 60)
	v.SetDefault("pipeline.dangerous_permissions", defaultDangerousPermissions)

	v.SetDefault("watcher.pattern", "*.apk")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.queue_size", 100)

	v.SetDefault("inbound_dir", "./inbound_apks")
	v.SetDefault("data_dir", "./data")
}

// defaultDangerousPermissions 默认敏感权限表，可被配置覆盖
var defaultDangerousPermissions = []string{
	"android.permission.READ_SMS",
	"android.permission.RECEIVE_SMS",
	"android.permission.SEND_SMS",
	"android.permission.READ_CONTACTS",
	"android.permission.WRITE_CONTACTS",
	"android.permission.READ_PHONE_STATE",
	"android.permission.CALL_PHONE",
	"android.permission.PROCESS_OUTGOING_CALLS",
	"android.permission.RECORD_AUDIO",
	"android.permission.ACCESS_FINE_LOCATION",
	"android.permission.READ_EXTERNAL_STORAGE",
	"android.permission.WRITE_EXTERNAL_STORAGE",
	"android.permission.SYSTEM_ALERT_WINDOW",
	"android.permission.REQUEST_INSTALL_PACKAGES",
}

// Validate 校验配置合法性。阈值和权重错误必须在启动时暴露，而不是在请求时。
func (c *Config) Validate() error {
	if c.Fusion.BenignThreshold >= c.Fusion.MaliciousThreshold {
		return fmt.Errorf("configuration invalid: benign_threshold (%.1f) must be less than malicious_threshold (%.1f)",
			c.Fusion.BenignThreshold, c.Fusion.MaliciousThreshold)
	}
	if c.Fusion.StaticWeight < 0 || c.Fusion.ClassifierWeight < 0 || c.Fusion.IntelWeight < 0 {
		return fmt.Errorf("configuration invalid: fusion weights must be non-negative")
	}
	if c.Fusion.StaticWeight+c.Fusion.ClassifierWeight+c.Fusion.IntelWeight <= 0 {
		return fmt.Errorf("configuration invalid: at least one fusion weight must be positive")
	}
	if c.Pipeline.MaxDecompressedMB <= 0 || c.Pipeline.MaxEntryCount <= 0 {
		return fmt.Errorf("configuration invalid: pipeline resource limits must be positive")
	}
	return nil
}
