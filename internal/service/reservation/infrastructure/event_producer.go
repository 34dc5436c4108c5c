// internal/service/reservation/infrastructure/event_producer.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"taller/internal/pkg/mq"
	"taller/internal/service/reservation/domain"
)

// KafkaEventProducer 在预约提交成功后把事件发到 Kafka
// 通知类的消费方（邮件、报表）都在本服务边界之外
type KafkaEventProducer struct {
	writer *kafka.Writer
}

func NewKafkaEventProducer(writer *kafka.Writer) *KafkaEventProducer {
	return &KafkaEventProducer{writer: writer}
}

func (p *KafkaEventProducer) PublishReservationCommitted(ctx context.Context, event *domain.ReservationCommitted) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// 以预约 ID 作为消息 key，同一预约的事件落在同一分区
	return mq.ProduceMessage(ctx, p.writer, []byte(event.ReservationID), eventBytes)
}
