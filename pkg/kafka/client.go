// Package kafka 提供了与 Kafka 消息队列交互的功能。
// intake 主题承接索引管道发布的文件记录，event 主题对外发布协调服务的生命周期事件。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"photokeeper-go/internal/config"
	"photokeeper-go/pkg/database"
	"photokeeper-go/pkg/log"
	"photokeeper-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process an intake task.
// This decouples the Kafka consumer from the concrete grouping implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IndexedFileTask) error
}

var eventProducer *kafka.Writer

// InitProducer 初始化事件流生产者。
func InitProducer(cfg config.KafkaConfig) {
	eventProducer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.EventTopic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 事件生产者初始化成功")
}

// PublishEvent 将一条协调服务生命周期事件发布到事件主题。
// 事件流面向外部审计/观察方，发布失败只记日志，不影响主流程。
func PublishEvent(eventType string, payload interface{}) {
	if eventProducer == nil {
		return
	}
	body, err := json.Marshal(map[string]interface{}{
		"type":      eventType,
		"timestamp": time.Now().UnixMilli(),
		"payload":   payload,
	})
	if err != nil {
		log.Errorf("序列化事件失败: %v", err)
		return
	}
	if err := eventProducer.WriteMessages(context.Background(), kafka.Message{Value: body}); err != nil {
		log.Errorf("发布事件到 Kafka 失败: type=%s, err=%v", eventType, err)
	}
}

// StartConsumer 启动一个 Kafka 消费者来处理索引管道发布的文件记录。
func StartConsumer(cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.IntakeTopic,
		GroupID:  "photokeeper-go-consumer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.IntakeTopic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break // 退出循环，可能需要重启策略
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.IndexedFileTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理文件记录: Path=%s, Hash=%s", task.Path, task.ContentHash)
		// 同步处理任务
		if err := processor.Process(context.Background(), task); err != nil {
			log.Errorf("处理文件记录失败: Path=%s, Error: %v", task.Path, err)
			// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
			attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.ContentHash)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr == nil {
				_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			}
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if attempts >= 3 {
				log.Errorf("文件记录多次处理失败(>=3)，提交 offset 终止重试: Path=%s", task.Path)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			// attempts < 3 时，不提交 offset 让 Kafka 自动重试
		} else {
			// 清理失败计数
			_ = database.RDB.Del(context.Background(), fmt.Sprintf("kafka:attempts:%s", task.ContentHash)).Err()
			// 任务处理成功后，手动提交 offset
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}
