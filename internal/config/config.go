// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Selection     SelectionConfig     `mapstructure:"selection"`
	Worker        WorkerConfig        `mapstructure:"worker"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port      string `mapstructure:"port"`
	Mode      string `mapstructure:"mode"`
	AccessKey string `mapstructure:"access_key"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
// IntakeTopic 是索引管道发布新文件记录的主题，EventTopic 是协调服务对外发布生命周期事件的主题。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	IntakeTopic string `mapstructure:"intake_topic"`
	EventTopic  string `mapstructure:"event_topic"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储（删除前归档）的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// SelectionConfig 存储原始文件评分引擎的配置。
type SelectionConfig struct {
	// PathWeight 是路径优先级信号的权重。
	PathWeight float64 `mapstructure:"path_weight"`
	// MetadataBonus 是存在拍摄时间/相机/尺寸元数据时的加分。
	MetadataBonus float64 `mapstructure:"metadata_bonus"`
	// DepthBonus 是每一级目录深度的加分，用于平局裁决。
	DepthBonus float64 `mapstructure:"depth_bonus"`
	// DefaultPriority 是未命中任何前缀规则时的中性优先级。
	DefaultPriority int `mapstructure:"default_priority"`
	// ConflictThreshold 是前两名分差低于该值时判定为冲突的阈值。
	ConflictThreshold float64 `mapstructure:"conflict_threshold"`
}

// WorkerConfig 存储分离式 worker 进程（cleaner 等）的配置。
type WorkerConfig struct {
	ServerURL        string `mapstructure:"server_url"`
	Kind             string `mapstructure:"kind"`
	InstanceID       string `mapstructure:"instance_id"`
	AccessKey        string `mapstructure:"access_key"`
	HeartbeatSeconds int    `mapstructure:"heartbeat_seconds"`
	DryRun           bool   `mapstructure:"dry_run"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}
