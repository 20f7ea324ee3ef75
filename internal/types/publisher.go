package types

// PublishDestination determines which bus carries payment confirmations.
// Kafka is the production path; memory keeps everything in-process for
// local development and tests.
type PublishDestination string

const (
	PublishToKafka  PublishDestination = "kafka"
	PublishToMemory PublishDestination = "memory"
)
