// Package producers publishes simulation records to Kafka.
package producers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/chrisdamba/dronesim/internal/models"
)

type SaramaProducer struct {
	producer    sarama.SyncProducer
	topicPrefix string
}

// messageKey is the part of a record used for partitioning.
type messageKey struct {
	OrderID int64  `json:"order_id"`
	DroneID *int64 `json:"drone_id"`
}

func NewSaramaConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Retry.Backoff = 100 * time.Millisecond
	saramaConfig.Producer.Return.Successes = true // Must be true for SyncProducer
	saramaConfig.Net.DialTimeout = 30 * time.Second
	saramaConfig.Net.ReadTimeout = 30 * time.Second
	saramaConfig.Net.WriteTimeout = 30 * time.Second
	return saramaConfig
}

func NewSaramaProducer(config *models.Config) (*SaramaProducer, error) {
	brokerList := strings.Split(config.KafkaBrokerList, ",")

	producer, err := sarama.NewSyncProducer(brokerList, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama producer: %w", err)
	}

	logrus.WithField("brokers", brokerList).Info("Sarama producer created")
	return NewSaramaProducerWithClient(producer, config.KafkaTopicPrefix), nil
}

// NewSaramaProducerWithClient wraps an existing producer. Topics are
// published as <prefix>.<topic> when prefix is set.
func NewSaramaProducerWithClient(producer sarama.SyncProducer, topicPrefix string) *SaramaProducer {
	return &SaramaProducer{producer: producer, topicPrefix: topicPrefix}
}

func (s *SaramaProducer) Topic(topic string) string {
	if s.topicPrefix == "" {
		return topic
	}
	return s.topicPrefix + "." + topic
}

// Key keeps every record of one order on one partition. Records without an
// order, such as charge completions, go by drone, else get a unique key.
func Key(msg []byte) string {
	var k messageKey
	if err := json.Unmarshal(msg, &k); err == nil {
		if k.OrderID > 0 {
			return "order-" + strconv.FormatInt(k.OrderID, 10)
		}
		if k.DroneID != nil {
			return "drone-" + strconv.FormatInt(*k.DroneID, 10)
		}
	}
	return xid.New().String()
}

func (s *SaramaProducer) WriteMessage(topic string, msg []byte) error {
	if s.producer == nil {
		return fmt.Errorf("sarama producer is not initialized")
	}

	_, _, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.Topic(topic),
		Key:   sarama.StringEncoder(Key(msg)),
		Value: sarama.ByteEncoder(msg),
	})
	if err != nil {
		logrus.WithError(err).WithField("topic", topic).Error("failed to send message")
		return fmt.Errorf("sending to %s: %w", topic, err)
	}
	return nil
}

func (s *SaramaProducer) Close() error {
	if s.producer == nil {
		return nil
	}
	err := s.producer.Close()
	s.producer = nil
	return err
}
