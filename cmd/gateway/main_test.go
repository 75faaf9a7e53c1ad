package main

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"

	"github.com/example/ucs-gateway/internal/common"
)

func TestEventsReaderConfigStartsAtLiveEnd(t *testing.T) {
	cfg := &common.Config{
		ServiceName:  "gateway",
		ServerID:     "gw-1",
		KafkaBrokers: []string{"broker:9092"},
		EventsTopic:  "ucs.events",
	}
	rc := eventsReaderConfig(cfg)
	assert.Equal(t, "gateway-gw-1", rc.GroupID)
	assert.Equal(t, "ucs.events", rc.Topic)
	assert.Equal(t, []string{"broker:9092"}, rc.Brokers)
	assert.Equal(t, kafka.LastOffset, rc.StartOffset)
}
