package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-targeting/actuator"
	"github.com/nvr-ai/go-targeting/shaper"
	"github.com/sirupsen/logrus"
)

// TargetService formats coordinate exports and dispatches them to the actuator.
type TargetService struct {
	publisher actuator.Publisher
	log       logrus.FieldLogger
}

// NewTargetService returns a TargetService. A nil publisher disables dispatch.
func NewTargetService(publisher actuator.Publisher, log logrus.FieldLogger) *TargetService {
	if publisher == nil {
		publisher = actuator.NopPublisher{}
	}
	return &TargetService{publisher: publisher, log: log}
}

// Format validates the detections and numbers them as targets.
func (s *TargetService) Format(in []shaper.TargetInput) (shaper.TargetFile, error) {
	return shaper.FormatTargets(in)
}

// Dispatch formats the detections and publishes them.
//
// Returns:
//   - actuator.Dispatch: The published message.
//   - error: A *shaper.ValidationError for bad input, actuator.ErrNotConfigured
//     without an actuator, or the publish error.
func (s *TargetService) Dispatch(ctx context.Context, in []shaper.TargetInput) (actuator.Dispatch, error) {
	file, err := shaper.FormatTargets(in)
	if err != nil {
		return actuator.Dispatch{}, err
	}

	d := actuator.Dispatch{
		RequestID:  uuid.NewString(),
		SentAt:     time.Now().UTC(),
		TargetFile: file,
	}
	if err := s.publisher.Publish(ctx, d); err != nil {
		s.log.WithError(err).WithField("request_id", d.RequestID).Warn("target dispatch failed")
		return actuator.Dispatch{}, err
	}
	return d, nil
}
