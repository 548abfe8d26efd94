package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aryaprasad08/slouch/common/config"
)

// 传输方式
const (
	TransportAIO   = "aio"
	TransportProxy = "proxy"
	TransportMQTT  = "mqtt"
	TransportRedis = "redis"
	TransportLog   = "log"
)

// 加速度来源
const (
	SensorSourceMQTT = "mqtt"
	SensorSourceSim  = "sim"
)

// Config 姿态监测（设备端）配置，启动时加载，之后不再修改
type Config struct {
	Redis config.RedisConfig
	MQTT  config.MQTTConfig // Adafruit IO MQTT 传输

	// 信号处理与状态机参数
	Posture struct {
		SampleInterval      time.Duration // SAMPLE_INTERVAL
		EMAAlpha            float64       // EMA_ALPHA
		EnterThreshold      float64       // SLOUCH_ENTER_THRESHOLD（度）
		ExitThreshold       float64       // SLOUCH_EXIT_THRESHOLD（度）
		TimeRequired        time.Duration // SLOUCH_TIME_REQUIRED
		CalibrationDuration time.Duration // 坐直校准时长
		DisplayInterval     time.Duration // 状态日志输出间隔
	}

	// 发送抑制参数
	Publish struct {
		Transport    string        // aio / proxy / mqtt / redis / log
		PushInterval time.Duration // AIO_PUSH_INTERVAL
		AngleDelta   float64       // ANGLE_DELTA_THRESHOLD
		Timeout      time.Duration // 单个 tick 内全部写入共用的时间预算，不得超过 SAMPLE_INTERVAL
	}

	// Adafruit IO 直连配置
	AIO struct {
		BaseURL  string
		Username string
		Key      string
	}

	// 代理配置（设备端不持有凭据）
	Proxy struct {
		URL string
	}

	// Redis Streams 配置
	Stream struct {
		Name   string
		MaxLen int64
	}

	// 加速度来源配置
	Sensor struct {
		Source    string            // mqtt / sim
		Broker    config.MQTTConfig // IMU 桥接 broker
		Topic     string
		MaxAge    time.Duration
		SimPeriod time.Duration
		SimPeak   float64
		SimFail   int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.Posture.SampleInterval = getEnvDuration("SAMPLE_INTERVAL", 50*time.Millisecond, &errs)
	cfg.Posture.EMAAlpha = getEnvFloat("EMA_ALPHA", 0.45, &errs)
	cfg.Posture.EnterThreshold = getEnvFloat("SLOUCH_ENTER_THRESHOLD", 4.0, &errs)
	cfg.Posture.ExitThreshold = getEnvFloat("SLOUCH_EXIT_THRESHOLD", 2.5, &errs)
	cfg.Posture.TimeRequired = getEnvDuration("SLOUCH_TIME_REQUIRED", 300*time.Millisecond, &errs)
	cfg.Posture.CalibrationDuration = getEnvDuration("CALIBRATION_SECONDS", 3*time.Second, &errs)
	cfg.Posture.DisplayInterval = getEnvDuration("DISPLAY_INTERVAL", 250*time.Millisecond, &errs)

	cfg.Publish.Transport = getEnv("TRANSPORT", TransportProxy)
	cfg.Publish.PushInterval = getEnvDuration("AIO_PUSH_INTERVAL", 2*time.Second, &errs)
	cfg.Publish.AngleDelta = getEnvFloat("ANGLE_DELTA_THRESHOLD", 0.2, &errs)
	// 未设置时取采样周期的 4/5，给采样和状态机留出余量
	cfg.Publish.Timeout = getEnvDuration("PUBLISH_TIMEOUT", cfg.Posture.SampleInterval*4/5, &errs)

	cfg.AIO.BaseURL = getEnv("AIO_BASE_URL", "https://io.adafruit.com")
	cfg.AIO.Username = getEnv("ADAFRUIT_IO_USERNAME", "")
	cfg.AIO.Key = getEnv("ADAFRUIT_IO_KEY", "")

	cfg.Proxy.URL = getEnv("PROXY_URL", "http://localhost:8080")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0
	cfg.Redis.LoadFromEnv("REDIS")
	cfg.Stream.Name = getEnv("STREAM_NAME", "posture:feeds:stream")
	cfg.Stream.MaxLen = int64(getEnvInt("STREAM_MAX_LEN", 10000, &errs))

	// Adafruit IO MQTT：用户名 + key 作为凭据
	cfg.MQTT.Broker = getEnv("AIO_MQTT_BROKER", "ssl://io.adafruit.com:8883")
	cfg.MQTT.ClientID = getEnv("AIO_MQTT_CLIENT_ID", "posture-monitor")
	cfg.MQTT.Username = cfg.AIO.Username
	cfg.MQTT.Password = cfg.AIO.Key
	cfg.MQTT.QoS = 0
	cfg.MQTT.ConnectTimeout = 5 * time.Second
	cfg.MQTT.LoadFromEnv("AIO_MQTT")

	cfg.Sensor.Source = getEnv("SENSOR_SOURCE", SensorSourceMQTT)
	cfg.Sensor.Broker.Broker = getEnv("IMU_MQTT_BROKER", "tcp://localhost:1883")
	cfg.Sensor.Broker.ClientID = getEnv("IMU_MQTT_CLIENT_ID", "posture-monitor-imu")
	cfg.Sensor.Broker.ConnectTimeout = 5 * time.Second
	cfg.Sensor.Broker.LoadFromEnv("IMU_MQTT")
	cfg.Sensor.Topic = getEnv("IMU_TOPIC", "imu/+/accel")
	cfg.Sensor.MaxAge = getEnvDuration("IMU_MAX_AGE", 500*time.Millisecond, &errs)
	cfg.Sensor.SimPeriod = getEnvDuration("SIM_PERIOD", time.Minute, &errs)
	cfg.Sensor.SimPeak = getEnvFloat("SIM_PEAK_DEGREES", 8.0, &errs)
	cfg.Sensor.SimFail = getEnvInt("SIM_FAIL_EVERY", 0, &errs)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate 校验让主循环失去意义的配置（返回 error），
// 并返回配置风险提示（调用方记录 warning 后照常运行）
func (c *Config) Validate() (hazards []string, err error) {
	var errs []error

	if c.Posture.EMAAlpha <= 0 || c.Posture.EMAAlpha > 1 {
		errs = append(errs, fmt.Errorf("EMA_ALPHA must be in (0,1], got %v", c.Posture.EMAAlpha))
	}
	if c.Posture.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("SAMPLE_INTERVAL must be positive, got %s", c.Posture.SampleInterval))
	}
	if c.Posture.TimeRequired < 0 {
		errs = append(errs, fmt.Errorf("SLOUCH_TIME_REQUIRED must not be negative, got %s", c.Posture.TimeRequired))
	}
	if c.Publish.PushInterval < 0 {
		errs = append(errs, fmt.Errorf("AIO_PUSH_INTERVAL must not be negative, got %s", c.Publish.PushInterval))
	}
	if c.Publish.AngleDelta < 0 {
		errs = append(errs, fmt.Errorf("ANGLE_DELTA_THRESHOLD must not be negative, got %v", c.Publish.AngleDelta))
	}
	if c.Publish.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("PUBLISH_TIMEOUT must be positive, got %s", c.Publish.Timeout))
	}
	if c.Posture.SampleInterval > 0 && c.Publish.Timeout > c.Posture.SampleInterval {
		errs = append(errs, fmt.Errorf("PUBLISH_TIMEOUT (%s) must not exceed SAMPLE_INTERVAL (%s)",
			c.Publish.Timeout, c.Posture.SampleInterval))
	}

	switch c.Publish.Transport {
	case TransportAIO, TransportMQTT:
		if c.AIO.Username == "" || c.AIO.Key == "" {
			errs = append(errs, fmt.Errorf("transport %q requires ADAFRUIT_IO_USERNAME and ADAFRUIT_IO_KEY", c.Publish.Transport))
		}
	case TransportProxy, TransportRedis, TransportLog:
	default:
		errs = append(errs, fmt.Errorf("unsupported transport: %s", c.Publish.Transport))
	}

	switch c.Sensor.Source {
	case SensorSourceMQTT, SensorSourceSim:
	default:
		errs = append(errs, fmt.Errorf("unsupported sensor source: %s", c.Sensor.Source))
	}

	// 滞回区间倒置不做拦截，只提示
	if c.Posture.ExitThreshold >= c.Posture.EnterThreshold {
		hazards = append(hazards, fmt.Sprintf(
			"SLOUCH_EXIT_THRESHOLD (%v) >= SLOUCH_ENTER_THRESHOLD (%v): posture state may oscillate rapidly",
			c.Posture.ExitThreshold, c.Posture.EnterThreshold))
	}

	return hazards, errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64, errs *[]error) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return f
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return i
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := config.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return d
}
