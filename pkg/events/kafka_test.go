package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "trove-events"})
	require.ErrorContains(t, err, "broker")

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.ErrorContains(t, err, "topic")
}

func TestNewKafkaPublisher_ClientID(t *testing.T) {
	// Client construction is lazy, no broker needed.
	p, err := NewKafkaPublisher(KafkaConfig{
		Brokers:  []string{"localhost:9092"},
		Topic:    "trove-events",
		ClientID: "trove",
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}
