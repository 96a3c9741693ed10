// Package config загружает конфигурацию astproxy из YAML файла,
// .env файла и переменных окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	amierr "github.com/arzzra/astproxy/pkg/ami/errors"
	"github.com/arzzra/astproxy/pkg/ami/eventbus"
	"github.com/arzzra/astproxy/pkg/ami/transport"
)

// Config конфигурация процесса
type Config struct {
	Asterisk AsteriskConfig `yaml:"asterisk"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

// AsteriskConfig подключение к интерфейсу менеджера
type AsteriskConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Socket      string        `yaml:"socket"`
	User        string        `yaml:"user"`
	Pass        string        `yaml:"pass"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Events      string        `yaml:"events"`
}

// MetricsConfig HTTP сервер метрик
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// RedisConfig пересылка событий в Redis
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// LogConfig параметры логирования
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultMetricsListen адрес сервера метрик по умолчанию
const DefaultMetricsListen = ":9105"

// Default конфигурация по умолчанию
func Default() Config {
	return Config{
		Asterisk: AsteriskConfig{
			Host:        transport.DefaultHost,
			Port:        transport.DefaultPort,
			DialTimeout: transport.DefaultDialTimeout,
			Events:      transport.DefaultEvents,
		},
		Metrics: MetricsConfig{Listen: DefaultMetricsListen},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: eventbus.DefaultRedisPrefix,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load читает файл path поверх значений по умолчанию и применяет переменные
// окружения. Пустой path означает "только значения по умолчанию и окружение".
// Ссылки ${VAR} в файле раскрываются до разбора.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, amierr.Configuration("read "+path, err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, amierr.Configuration("parse "+path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv загружает переменные из .env файла; отсутствие файла не ошибка
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv переопределяет значения переменными окружения
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("AMI_HOST", &c.Asterisk.Host)
	str("AMI_SOCKET", &c.Asterisk.Socket)
	str("AMI_USER", &c.Asterisk.User)
	str("AMI_PASS", &c.Asterisk.Pass)
	str("ASTPROXY_METRICS_LISTEN", &c.Metrics.Listen)
	str("ASTPROXY_LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("AMI_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return amierr.Configuration("AMI_PORT", err)
		}
		c.Asterisk.Port = port
	}

	if v, ok := lookup("ASTPROXY_REDIS_ADDR"); ok && v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	return nil
}

// Validate проверяет конфигурацию
func (c Config) Validate() error {
	if err := c.Transport().Validate(); err != nil {
		return err
	}
	if c.Asterisk.DialTimeout < 0 {
		return amierr.Configuration("dial_timeout must not be negative", nil)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return amierr.Configuration(fmt.Sprintf("unknown log format %q", c.Log.Format), nil)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return amierr.Configuration("redis.addr is required when redis is enabled", nil)
	}
	return nil
}

// Transport параметры соединения с АТС
func (c Config) Transport() transport.Config {
	return transport.Config{
		Host:        c.Asterisk.Host,
		Port:        c.Asterisk.Port,
		Socket:      c.Asterisk.Socket,
		Username:    c.Asterisk.User,
		Password:    c.Asterisk.Pass,
		DialTimeout: c.Asterisk.DialTimeout,
		Events:      c.Asterisk.Events,
	}.WithDefaults()
}
