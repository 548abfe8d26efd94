package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logpkg "github.com/aryaprasad08/slouch/common/logger"
	mqttcommon "github.com/aryaprasad08/slouch/common/mqtt"
	rediscommon "github.com/aryaprasad08/slouch/common/redis"
	"github.com/aryaprasad08/slouch/internal/config"
	"github.com/aryaprasad08/slouch/internal/monitor"
	"github.com/aryaprasad08/slouch/internal/publish"
	"github.com/aryaprasad08/slouch/internal/sensor"
	"github.com/aryaprasad08/slouch/internal/transport"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "posture-monitor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	hazards, err := cfg.Validate()
	if err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}
	for _, h := range hazards {
		log.Warn("Configuration hazard", zap.String("hazard", h))
	}

	log.Info("Starting posture-monitor")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, cleanupSensor, err := newSensor(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize sensor", zap.Error(err))
	}
	defer cleanupSensor()

	tr, err := newTransport(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize transport", zap.Error(err))
	}

	svc := monitor.NewMonitorService(cfg, s, tr, log)

	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- svc.Start(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil {
			log.Error("Service error", zap.Error(err))
		}
		cancel()
	}

	if err := svc.Stop(ctx); err != nil {
		log.Error("Error stopping service", zap.Error(err))
	}

	log.Info("Service stopped")
}

// newSensor 按 SENSOR_SOURCE 组装倾角传感器
func newSensor(cfg *config.Config, log *zap.Logger) (sensor.Sensor, func(), error) {
	switch cfg.Sensor.Source {
	case config.SensorSourceSim:
		accel := sensor.NewSimulatedAccelerometer(cfg.Sensor.SimPeriod, cfg.Sensor.SimPeak, cfg.Sensor.SimFail)
		return sensor.NewTiltSensor(accel, cfg.Posture.CalibrationDuration, cfg.Posture.SampleInterval, log), func() {}, nil

	case config.SensorSourceMQTT:
		client, err := mqttcommon.NewClient(&cfg.Sensor.Broker, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to IMU broker: %w", err)
		}
		accel := sensor.NewMQTTAccelerometer(cfg.Sensor.Topic, cfg.Sensor.Broker.QoS, cfg.Sensor.MaxAge, log)
		if err := accel.Start(client); err != nil {
			client.Disconnect()
			return nil, nil, err
		}
		cleanup := func() {
			if err := accel.Stop(client); err != nil {
				log.Warn("Failed to unsubscribe IMU topic", zap.Error(err))
			}
			client.Disconnect()
		}
		return sensor.NewTiltSensor(accel, cfg.Posture.CalibrationDuration, cfg.Posture.SampleInterval, log), cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unsupported sensor source: %s", cfg.Sensor.Source)
	}
}

// newTransport 按 TRANSPORT 选择 feed 写入方式
func newTransport(ctx context.Context, cfg *config.Config, log *zap.Logger) (publish.Transport, error) {
	switch cfg.Publish.Transport {
	case config.TransportAIO:
		return transport.NewAIOClient(cfg.AIO.BaseURL, cfg.AIO.Username, cfg.AIO.Key, log), nil

	case config.TransportProxy:
		return transport.NewProxyClient(cfg.Proxy.URL, log), nil

	case config.TransportMQTT:
		client, err := mqttcommon.NewClient(&cfg.MQTT, log)
		if err != nil {
			if errors.Is(err, mqttcommon.ErrNotAuthorized) {
				return nil, fmt.Errorf("adafruit io rejected credentials: %w", publish.ErrUnauthorized)
			}
			return nil, err
		}
		return transport.NewMQTTPublisher(client, cfg.AIO.Username, cfg.MQTT.QoS, log)

	case config.TransportRedis:
		client := rediscommon.NewRedisClient(&cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rediscommon.Ping(pingCtx, client); err != nil {
			// Redis 暂不可用不影响启动，写入失败按网络错误在后续 tick 重试
			log.Warn("Redis not reachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		return transport.NewStreamPublisher(client, cfg.Stream.Name, cfg.Stream.MaxLen, log), nil

	case config.TransportLog:
		return transport.NewLogTransport(log), nil

	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.Publish.Transport)
	}
}
