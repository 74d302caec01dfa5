// Package actuator - Dispatch of laser target files to the controller over AWS IoT.
package actuator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/nvr-ai/go-targeting/config"
	"github.com/nvr-ai/go-targeting/shaper"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrNotConfigured is returned when no actuator endpoint is configured.
var ErrNotConfigured = errors.New("actuator not configured")

// Dispatch is the message published to the laser controller.
type Dispatch struct {
	RequestID string    `json:"request_id"`
	SentAt    time.Time `json:"sent_at"`
	shaper.TargetFile
}

// Publisher delivers target files to the laser controller.
type Publisher interface {
	Publish(ctx context.Context, d Dispatch) error
}

// NopPublisher rejects every dispatch with ErrNotConfigured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Dispatch) error {
	return ErrNotConfigured
}

// dataPlane is the part of the iotdataplane client used here.
type dataPlane interface {
	Publish(ctx context.Context, params *iotdataplane.PublishInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error)
}

// IoTPublisher publishes dispatches as MQTT messages through the AWS IoT data plane.
type IoTPublisher struct {
	client dataPlane
	topic  string
	log    logrus.FieldLogger
}

// NewIoTPublisher wraps an iotdataplane client.
func NewIoTPublisher(client *iotdataplane.Client, topic string, log logrus.FieldLogger) *IoTPublisher {
	return &IoTPublisher{client: client, topic: topic, log: log}
}

// New returns the publisher described by cfg. Without an endpoint it returns a
// NopPublisher so the server can run with dispatch disabled.
//
// Arguments:
//   - ctx: Used while loading AWS credentials.
//   - cfg: The IoT settings.
//   - log: The logger.
//
// Returns:
//   - Publisher: The publisher.
//   - error: An error if the AWS configuration cannot be loaded.
func New(ctx context.Context, cfg config.IoTConfig, log logrus.FieldLogger) (Publisher, error) {
	if cfg.Endpoint == "" {
		log.Info("iot endpoint not set, target dispatch disabled")
		return NopPublisher{}, nil
	}
	if cfg.Topic == "" {
		return nil, errors.New("iot topic is empty")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	endpoint := cfg.Endpoint
	if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "http://") {
		endpoint = "https://" + endpoint
	}
	client := iotdataplane.NewFromConfig(awsCfg, func(o *iotdataplane.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	log.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"topic":    cfg.Topic,
	}).Info("target dispatch enabled")
	return NewIoTPublisher(client, cfg.Topic, log), nil
}

// Publish sends the dispatch with QoS 1.
func (p *IoTPublisher) Publish(ctx context.Context, d Dispatch) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "marshal dispatch")
	}

	_, err = p.client.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(p.topic),
		Qos:     1,
		Payload: payload,
	})
	if err != nil {
		return errors.Wrapf(err, "publish to %s", p.topic)
	}

	p.log.WithFields(logrus.Fields{
		"request_id": d.RequestID,
		"targets":    d.TotalTargets,
	}).Info("targets dispatched")
	return nil
}
