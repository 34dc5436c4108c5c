// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"log"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Config 是服务的全量配置
// 通过本地 yaml 文件加载，路径由 CONFIG_PATH 环境变量指定
type Config struct {
	App struct {
		Port     int    `yaml:"port"`
		LogLevel string `yaml:"logLevel"`
		// LinePolicy 是一条 CEL 表达式，对每个提交的物料行进行校验
		// 为空时表示不做额外限制
		LinePolicy string `yaml:"linePolicy"`
		// SnapshotTTLSeconds 控制库存快照缓存的过期时间
		SnapshotTTLSeconds int `yaml:"snapshotTTLSeconds"`
	} `yaml:"app"`
	Infra struct {
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addrs string `yaml:"addrs"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers          string `yaml:"brokers"`
			ReservationTopic string `yaml:"reservationTopic"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Zookeeper struct {
			// 为空时引擎只依赖数据库的行级锁
			Addrs string `yaml:"addrs"`
		} `yaml:"zookeeper"`
	} `yaml:"infra"`
}

var currentConfig atomic.Pointer[Config]

// Init 加载配置文件并填充默认值，必须在 StartService 之前调用
func Init() {
	path := getEnv("CONFIG_PATH", "configs/config.yaml")

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("WARN: could not read config file %s, using defaults: %v", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Fatalf("FATAL: invalid config file %s: %v", path, err)
	}

	currentConfig.Store(cfg)
}

// GetCurrentConfig 返回当前生效的配置
func GetCurrentConfig() *Config {
	cfg := currentConfig.Load()
	if cfg == nil {
		cfg = defaultConfig()
		currentConfig.Store(cfg)
	}
	return cfg
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Port = 8080
	cfg.App.LogLevel = "info"
	cfg.App.SnapshotTTLSeconds = 5
	cfg.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/taller?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Infra.Redis.Addrs = "localhost:6379"
	cfg.Infra.Kafka.Brokers = "localhost:9092"
	cfg.Infra.Kafka.ReservationTopic = "reservation-committed-topic"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	return cfg
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
