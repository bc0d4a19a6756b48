package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMongo = "mongo"
	DriverBolt  = "bolt"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver" json:"driver"`
	URI      string `yaml:"uri" json:"uri"`
	Name     string `yaml:"name" json:"name"`
	BoltPath string `yaml:"boltPath" json:"boltPath"`
}

type ServerConfig struct {
	Port            int    `yaml:"port" json:"port"`
	StaticDir       string `yaml:"staticDir" json:"staticDir"`
	ReadTimeout     string `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    string `yaml:"writeTimeout" json:"writeTimeout"`
	ShutdownTimeout string `yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Channel  string `yaml:"channel" json:"channel"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers"`
	Topic   string   `yaml:"topic" json:"topic"`
}

type LoggingConfig struct {
	Env       string `yaml:"env" json:"env"`
	Service   string `yaml:"service" json:"service"`
	Version   string `yaml:"version" json:"version"`
	Backend   string `yaml:"backend" json:"backend"`
	AddSource bool   `yaml:"addSource" json:"addSource"`
	Debug     bool   `yaml:"debug" json:"debug"`
}

// Config is the whole application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka" json:"kafka"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// LoadConfig reads filePath (YAML, or JSON since it is a YAML subset),
// applies environment overrides and fills defaults. A missing file is not
// an error.
func LoadConfig(filePath string) (*Config, error) {
	var config Config

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", filePath, err)
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("decode config %s: %w", filePath, err)
			}
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.StaticDir, "STATIC_DIR")
	setString(&c.Database.Driver, "STORE_DRIVER")
	setString(&c.Database.URI, "MONGODB_URI")
	setString(&c.Database.Name, "MONGODB_DATABASE")
	setString(&c.Database.BoltPath, "BOLT_PATH")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Redis.Channel, "REDIS_CHANNEL")
	setString(&c.Kafka.Topic, "KAFKA_TOPIC")
	setString(&c.Logging.Env, "APP_ENV")
	setString(&c.Logging.Backend, "LOG_BACKEND")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = SplitAndTrim(v, ",")
	}
	if err := setInt(&c.Server.Port, "PORT"); err != nil {
		return err
	}
	if err := setInt(&c.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	if v := os.Getenv("LOG_DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOG_DEBUG: %w", err)
		}
		c.Logging.Debug = b
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "./public"
	}

	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMongo
	}
	switch c.Database.Driver {
	case DriverMongo:
		if c.Database.URI == "" {
			c.Database.URI = "mongodb://localhost:27017"
		}
	case DriverBolt:
		if c.Database.BoltPath == "" {
			c.Database.BoltPath = "whatsapp.db"
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverMongo, DriverBolt, c.Database.Driver)
	}
	if c.Database.Name == "" {
		c.Database.Name = "whatsapp"
	}

	if c.Redis.Channel == "" {
		c.Redis.Channel = "relay:events"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "whatsapp-events"
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "whatsapp-relay"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	return nil
}

// Addr returns the listen address of the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *ServerConfig) ReadTimeoutOr(def time.Duration) time.Duration {
	return ParseDurationOr(def, c.ReadTimeout)
}

func (c *ServerConfig) WriteTimeoutOr(def time.Duration) time.Duration {
	return ParseDurationOr(def, c.WriteTimeout)
}

func (c *ServerConfig) ShutdownTimeoutOr(def time.Duration) time.Duration {
	return ParseDurationOr(def, c.ShutdownTimeout)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
