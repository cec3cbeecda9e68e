package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/commerce-intel/internal/intelligence"
)

type fakeWriter struct {
	msgs []kafka.Message
	fail bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("broker down")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func sampleAlerts() []intelligence.Alert {
	return []intelligence.Alert{
		{AccountID: 10, AccountName: "Harbor Deli", PriorityScore: 25, Type: intelligence.AlertPaceWarning, Message: "slowing"},
		{AccountID: 11, AccountName: "Bistro", PriorityScore: 10.29, Type: intelligence.AlertHealthCritical, Message: "revenue drop"},
	}
}

func TestPublishAlertsKeysByTenantAndAccount(t *testing.T) {
	fw := &fakeWriter{}
	pub := NewAlertPublisher(fw, nil)
	swept := time.Date(2024, time.June, 20, 2, 0, 0, 0, time.UTC)

	n, err := pub.PublishAlerts(context.Background(), 1, swept, sampleAlerts())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, fw.msgs, 2)
	require.Equal(t, "1:10", string(fw.msgs[0].Key))
	require.Equal(t, "1:11", string(fw.msgs[1].Key))

	var evt AlertEvent
	require.NoError(t, json.Unmarshal(fw.msgs[1].Value, &evt))
	require.Equal(t, int64(1), evt.TenantID)
	require.Equal(t, 2, evt.Rank)
	require.Equal(t, intelligence.AlertHealthCritical, evt.Type)
	require.True(t, evt.SweptAt.Equal(swept))
}

func TestPublishAlertsWithoutBrokerIsNoop(t *testing.T) {
	pub := NewAlertPublisher(nil, nil)
	require.False(t, pub.Enabled())
	n, err := pub.PublishAlerts(context.Background(), 1, time.Now(), sampleAlerts())
	require.NoError(t, err)
	require.Zero(t, n)

	require.Nil(t, NewKafkaWriter(" , ", "intel.alerts"))
	require.False(t, NewKafkaPublisher("", "intel.alerts", nil).Enabled())
	require.NoError(t, pub.Close())
	w := NewKafkaWriter("kafka-1:9092, kafka-2:9092", "intel.alerts")
	require.NotNil(t, w)
	require.Equal(t, "intel.alerts", w.Topic)
}

func TestPublishAlertsWrapsWriterError(t *testing.T) {
	pub := NewAlertPublisher(&fakeWriter{fail: true}, nil)
	_, err := pub.PublishAlerts(context.Background(), 1, time.Now(), sampleAlerts())
	require.ErrorContains(t, err, "broker down")
}
