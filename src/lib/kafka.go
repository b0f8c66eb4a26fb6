package lib

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"parkbook/src/types"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

func GetKafkaProducerConfig(clientId string) kafka.ConfigMap {
	return kafka.ConfigMap{
		"bootstrap.servers": os.Getenv("KAFKA_BROKER"),
		"client.id":         clientId,
		"acks":              "all",
	}
}

func GetKafkaConsumerConfig(groupId string) kafka.ConfigMap {
	return kafka.ConfigMap{
		"bootstrap.servers": os.Getenv("KAFKA_BROKER"),
		"group.id":          groupId,
		"auto.offset.reset": "smallest",
		"retry.backoff.ms":  100,
	}
}

// KafkaConsumer subscribes to a topic and hands every message body to the
// handler on its own goroutine.
func KafkaConsumer(groupId, topic string, handler types.Handler) {
	cfg := GetKafkaConsumerConfig(groupId)
	master, err := kafka.NewConsumer(&cfg)
	if err != nil {
		log.Printf("[kafka] Error creating consumer for %s: %s\n", topic, err.Error())
		return
	}
	if err := master.SubscribeTopics([]string{topic}, nil); err != nil {
		log.Printf("[kafka] Error subscribing to %s: %s\n", topic, err.Error())
		return
	}
	go func() {
		log.Printf("[kafka] %s: waiting for messages...\n", topic)
		for {
			ev := master.Poll(100)
			switch e := ev.(type) {
			case *kafka.Message:
				go handler(string(e.Value))
			case kafka.Error:
				log.Printf("[kafka] Consumer error on %s: %v\n", topic, e)
				master.Close()
				return
			}
		}
	}()
}

func KafkaProduceMessage(clientId string, topic string, payload *types.JSONB) error {
	cfg := GetKafkaProducerConfig(clientId)
	p, err := kafka.NewProducer(&cfg)
	if err != nil {
		log.Printf("[kafka] Error creating producer: %s\n", err.Error())
		return err
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	err = p.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          value,
	}, nil)
	if err != nil {
		log.Printf("[kafka] Error producing to %s: %s\n", topic, err.Error())
		return err
	}
	return nil
}

func KafkaCreateTopics(topics ...string) ([]kafka.TopicResult, error) {
	a, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": os.Getenv("KAFKA_BROKER"),
	})
	if err != nil {
		log.Printf("[kafka] Error on AdminClient: %s\n", err.Error())
		return nil, err
	}
	topicsDef := []kafka.TopicSpecification{}
	for _, topic := range topics {
		topicsDef = append(topicsDef, kafka.TopicSpecification{
			Topic:         topic,
			NumPartitions: 10,
		})
	}
	result, err := a.CreateTopics(context.Background(), topicsDef)
	if err != nil {
		log.Printf("[kafka] Error creating topics: %s\n", err.Error())
		return nil, err
	}
	return result, nil
}

// KafkaPublisher adapts the producer to the record store's Publisher
// contract. Used for local development; production publishes through SQS.
type KafkaPublisher struct {
	ClientId string
}

func (k *KafkaPublisher) Publish(topic string, payload types.JSONB) error {
	return KafkaProduceMessage(k.ClientId, topic, &payload)
}
