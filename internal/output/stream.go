package output

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/eirki/trek-api/internal/progress"
	"github.com/eirki/trek-api/internal/stream"
)

// Stream publishes reports on redis so api instances can push them to
// websocket subscribers.
type Stream struct {
	rdb *redis.Client
}

func NewStream(rdb *redis.Client) *Stream {
	return &Stream{rdb: rdb}
}

func (s *Stream) PostUpdate(ctx context.Context, report progress.Report) error {
	if s.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, stream.Channel(report.Trek.ID), payload).Err()
}

func (s *Stream) PostLegReminder(ctx context.Context, trekID, nextAdderName string) error {
	if s.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(map[string]string{
		"trek_id":         trekID,
		"event":           "leg_finished",
		"next_adder_name": nextAdderName,
	})
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, stream.Channel(trekID), payload).Err()
}
