package kafka

import (
	"context"
	"fmt"

	"github.com/Shopify/sarama"
	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/logger"
)

// ConsumerLag represents the lag for a consumer group on a topic
type ConsumerLag struct {
	Topic         string          `json:"topic"`
	ConsumerGroup string          `json:"consumer_group"`
	TotalLag      int64           `json:"total_lag"`
	PartitionLags map[int32]int64 `json:"partition_lags"`
}

// MonitoringService reports how far the payment consumer is behind the
// payment topic. Operators use it to tell whether confirmations are being
// applied or piling up.
type MonitoringService struct {
	config *config.Configuration
	logger *logger.Logger
}

func NewMonitoringService(cfg *config.Configuration, log *logger.Logger) *MonitoringService {
	return &MonitoringService{
		config: cfg,
		logger: log,
	}
}

// PaymentPipelineLag returns the lag of the configured consumer group on the
// payment confirmation topic.
func (m *MonitoringService) PaymentPipelineLag(ctx context.Context) (*ConsumerLag, error) {
	return m.GetConsumerLag(ctx, m.config.Payment.Topic, m.config.Kafka.ConsumerGroup)
}

// GetConsumerLag calculates the consumer lag for a given topic and consumer group
func (m *MonitoringService) GetConsumerLag(ctx context.Context, topic string, consumerGroup string) (*ConsumerLag, error) {
	saramaConfig := GetSaramaConfig(m.config)

	admin, err := sarama.NewClusterAdmin(m.config.Kafka.Brokers, saramaConfig)
	if err != nil {
		m.logger.Errorw("failed to create kafka admin client",
			"error", err,
			"brokers", m.config.Kafka.Brokers)
		return nil, fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer admin.Close()

	client, err := sarama.NewClient(m.config.Kafka.Brokers, saramaConfig)
	if err != nil {
		m.logger.Errorw("failed to create kafka client",
			"error", err,
			"brokers", m.config.Kafka.Brokers)
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	defer client.Close()

	partitions, err := client.Partitions(topic)
	if err != nil {
		m.logger.Errorw("failed to get partitions for topic",
			"error", err,
			"topic", topic)
		return nil, fmt.Errorf("failed to get partitions for topic %s: %w", topic, err)
	}

	// Committed offsets come from the cluster admin, high water marks from
	// the plain client.
	offsetFetchResponse, err := admin.ListConsumerGroupOffsets(consumerGroup, map[string][]int32{
		topic: partitions,
	})
	if err != nil {
		m.logger.Errorw("failed to list consumer group offsets",
			"error", err,
			"consumer_group", consumerGroup,
			"topic", topic)
		return nil, fmt.Errorf("failed to list consumer group offsets: %w", err)
	}

	consumerLag := &ConsumerLag{
		Topic:         topic,
		ConsumerGroup: consumerGroup,
		TotalLag:      0,
		PartitionLags: make(map[int32]int64),
	}

	for _, partition := range partitions {
		latestOffset, err := client.GetOffset(topic, partition, sarama.OffsetNewest)
		if err != nil {
			m.logger.Warnw("failed to get latest offset for partition",
				"error", err,
				"topic", topic,
				"partition", partition)
			continue
		}

		// No committed offset yet means the group has not consumed this
		// partition at all; every message counts as lag.
		consumerOffset := int64(-1)
		if block := offsetFetchResponse.GetBlock(topic, partition); block != nil {
			consumerOffset = block.Offset
		}

		partitionLag := latestOffset
		if consumerOffset >= 0 {
			partitionLag = latestOffset - consumerOffset
		}
		if partitionLag < 0 {
			partitionLag = 0
		}

		consumerLag.PartitionLags[partition] = partitionLag
		consumerLag.TotalLag += partitionLag
	}

	m.logger.Debugw("consumer lag calculated",
		"topic", topic,
		"consumer_group", consumerGroup,
		"total_lag", consumerLag.TotalLag,
		"partitions", len(partitions))

	return consumerLag, nil
}
