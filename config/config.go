package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	ArrivalBox ArrivalBoxConfig `yaml:"arrivalbox"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                    string `yaml:"host"`
	Port                    int    `yaml:"port"`
	ArrivalChangedTopicName string `yaml:"arrival_changed_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// UpstreamConfig описывает REST API прибытий, которое шлюз синхронизирует.
type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// Mode: "rest" | "fake". fake поднимает встроенную заглушку бэкенда
	// для локальной разработки.
	Mode string `yaml:"mode"`
}

type ArrivalBoxConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	ScanIntervalSeconds   int `yaml:"scan_interval_seconds"`
	ReloadIntervalSeconds int `yaml:"reload_interval_seconds"`
	MaxNotifications      int `yaml:"max_notifications"`
	BackfillConcurrency   int `yaml:"backfill_concurrency"`

	KnownLocations    []string `yaml:"known_locations"`
	KnownResponsibles []string `yaml:"known_responsibles"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
