package transport

import (
	"net"
	"strconv"
	"time"

	amierr "github.com/arzzra/astproxy/pkg/ami/errors"
)

// Значения по умолчанию для подключения к интерфейсу менеджера
const (
	DefaultHost        = "localhost"
	DefaultPort        = 5038
	DefaultDialTimeout = 5 * time.Second
	DefaultEvents      = "on"
)

// Config параметры подключения к АТС
type Config struct {
	Host        string
	Port        int
	Socket      string // путь к unix сокету, имеет приоритет над Host/Port
	Username    string
	Password    string
	DialTimeout time.Duration
	Events      string // значение поля Events в Login
}

// WithDefaults возвращает копию конфигурации с заполненными пустыми полями
func (c Config) WithDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.Events == "" {
		c.Events = DefaultEvents
	}
	return c
}

// Validate проверяет параметры подключения
func (c Config) Validate() error {
	if c.Username == "" {
		return amierr.Configuration("username is required", nil)
	}
	if c.Password == "" {
		return amierr.Configuration("password is required", nil)
	}
	if c.Socket == "" && (c.Port <= 0 || c.Port > 65535) {
		return amierr.Configuration("invalid port "+strconv.Itoa(c.Port), nil)
	}
	return nil
}

// Endpoint возвращает сеть и адрес для net.Dial
func (c Config) Endpoint() (network, address string) {
	if c.Socket != "" {
		return "unix", c.Socket
	}
	return "tcp", net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
