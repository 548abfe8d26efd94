package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/aryaprasad08/slouch/common/config"
)

// 代理 sink 类型
const (
	SinkAIO      = "aio"
	SinkPostgres = "postgres"
)

// ProxyConfig posture-proxy 配置
type ProxyConfig struct {
	Database config.DatabaseConfig

	HTTP struct {
		Addr         string
		WriteTimeout time.Duration // 转发到 sink 的超时
	}

	Sink string // aio / postgres

	AIO struct {
		BaseURL  string
		Username string
		Key      string
	}

	Log struct {
		Level  string
		Format string
	}
}

// LoadProxy 加载代理配置
func LoadProxy() (*ProxyConfig, error) {
	cfg := &ProxyConfig{}
	var errs []error

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.HTTP.WriteTimeout = getEnvDuration("SINK_WRITE_TIMEOUT", 5*time.Second, &errs)
	cfg.Sink = getEnv("PROXY_SINK", SinkAIO)

	cfg.AIO.BaseURL = getEnv("AIO_BASE_URL", "https://io.adafruit.com")
	cfg.AIO.Username = getEnv("ADAFRUIT_IO_USERNAME", "")
	cfg.AIO.Key = getEnv("ADAFRUIT_IO_KEY", "")

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = ""
	cfg.Database.Database = "posture"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10, &errs)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 2, &errs)
	cfg.Database.LoadFromEnv("DB")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate 校验代理配置
func (c *ProxyConfig) Validate() error {
	switch c.Sink {
	case SinkAIO:
		if c.AIO.Username == "" || c.AIO.Key == "" {
			return fmt.Errorf("sink %q requires ADAFRUIT_IO_USERNAME and ADAFRUIT_IO_KEY", c.Sink)
		}
	case SinkPostgres:
	default:
		return fmt.Errorf("unsupported proxy sink: %s", c.Sink)
	}
	return nil
}
