// cmd/reservation-service/main.go
package main

import (
	"context"
	"log"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"taller/internal/pkg/bootstrap"
	"taller/internal/pkg/mq"
	"taller/internal/pkg/redis"
	"taller/internal/pkg/zookeeper"
	"taller/internal/service/reservation/application"
	"taller/internal/service/reservation/domain"
	"taller/internal/service/reservation/infrastructure"
	"taller/internal/service/reservation/interfaces"

	"go.opentelemetry.io/otel"
)

const serviceName = "reservation-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	// 1. 持久化存储
	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to mysql: %v", err)
	}
	if err := infrastructure.AutoMigrate(db); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	materialRepo := infrastructure.NewGormMaterialRepository(db)
	subjectRepo := infrastructure.NewGormSubjectRepository(db)
	reservationRepo := infrastructure.NewGormReservationRepository(db)
	txManager := infrastructure.NewGormTxManager(db)

	// 2. 快照缓存：redis 不可用时降级为直接读库
	var snapshots domain.SnapshotReader = infrastructure.NewRepositorySnapshotReader(materialRepo)
	var opts []application.Option
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs)
	if err != nil {
		log.Printf("WARN: redis unavailable, builder snapshots will read the store directly: %v", err)
	} else {
		cache := infrastructure.NewRedisSnapshotCache(redisClient, materialRepo,
			time.Duration(cfg.App.SnapshotTTLSeconds)*time.Second)
		snapshots = cache
		opts = append(opts, application.WithSnapshotInvalidator(cache))
	}

	// 3. 提交事件
	kafkaWriter := mq.NewKafkaWriter(strings.Split(cfg.Infra.Kafka.Brokers, ","), cfg.Infra.Kafka.ReservationTopic)
	opts = append(opts, application.WithEventProducer(infrastructure.NewKafkaEventProducer(kafkaWriter)))

	// 4. 可选的跨实例物料锁
	var zkConn *zookeeper.Conn
	if cfg.Infra.Zookeeper.Addrs != "" {
		zkConn, err = zookeeper.Connect(cfg.Infra.Zookeeper.Addrs)
		if err != nil {
			log.Fatalf("failed to connect to zookeeper: %v", err)
		}
		opts = append(opts, application.WithMaterialLocker(infrastructure.NewZkMaterialLocker(zkConn)))
	}

	// 5. 可选的行策略
	if cfg.App.LinePolicy != "" {
		policy, err := infrastructure.NewCELLinePolicy(cfg.App.LinePolicy)
		if err != nil {
			log.Fatalf("failed to compile line policy: %v", err)
		}
		opts = append(opts, application.WithLinePolicy(policy))
	}

	tracer := otel.Tracer(serviceName)
	service := application.NewReservationService(txManager, materialRepo, subjectRepo, snapshots, tracer, opts...)
	queryService := application.NewReservationQueryService(reservationRepo, materialRepo, tracer)

	handler := interfaces.NewReservationHandler(service, queryService)
	statusStream := interfaces.NewStatusStreamHandler(queryService, 5*time.Second)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
			appCtx.Mux.Handle("/ws/status", statusStream)
		},
		OnShutdown: func(ctx context.Context) {
			if err := kafkaWriter.Close(); err != nil {
				log.Printf("Error closing kafka writer: %v", err)
			}
			if redisClient != nil {
				if err := redisClient.Close(); err != nil {
					log.Printf("Error closing redis client: %v", err)
				}
			}
			if zkConn != nil {
				zkConn.Close()
			}
		},
	})
}
