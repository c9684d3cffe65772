//go:build integration

package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"rollcall/pkg/testutil/containers"
)

type KafkaSinkSuite struct {
	suite.Suite
	broker string
}

func TestKafkaSinkSuite(t *testing.T) {
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T()).Broker
}

func (s *KafkaSinkSuite) TestEventsArriveKeyedBySession() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "rollcall-events-" + time.Now().Format("150405.000000")
	sink, err := NewKafkaSink([]string{s.broker}, topic)
	s.Require().NoError(err)
	defer sink.Close()

	s.Require().NoError(sink.Ping(ctx))
	s.Require().NoError(sink.EnsureTopic(ctx))
	s.Require().NoError(sink.EnsureTopic(ctx), "existing topic is not an error")

	sent := []Event{
		{ID: "a", Type: EventAttendanceUpdate, SessionID: "s1", IdentityID: "i1", OccurredAt: time.Now().UTC()},
		{ID: "b", Type: EventAnomalyAlert, SessionID: "s1", IdentityID: "i2", OccurredAt: time.Now().UTC()},
	}
	s.Require().NoError(sink.Send(ctx, sent))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var got []Event
	for len(got) < len(sent) {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			s.Equal("s1", string(r.Key))
			var e Event
			s.Require().NoError(json.Unmarshal(r.Value, &e))
			got = append(got, e)
		})
	}
	s.Equal("a", got[0].ID)
	s.Equal(EventAnomalyAlert, got[1].Type)
}
