package mqtt

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/reconcile"
)

// ReportsSuffix is appended to the base topic for save reports.
const ReportsSuffix = "reports"

// ReportPublisher sends save reports as JSON.
type ReportPublisher struct {
	client Client
	topic  string
	log    logger.Logger
}

// NewReportPublisher publishes to <baseTopic>/reports through client.
func NewReportPublisher(client Client, baseTopic string, log logger.Logger) *ReportPublisher {
	if log == nil {
		log = logger.Global().Module("mqtt")
	}
	topic := strings.TrimRight(baseTopic, "/")
	if topic == "" {
		topic = DefaultConfig().Topic
	}
	return &ReportPublisher{client: client, topic: topic + "/" + ReportsSuffix, log: log}
}

// Topic returns the report topic.
func (p *ReportPublisher) Topic() string { return p.topic }

// PublishReport marshals r and publishes it, connecting first if needed.
func (p *ReportPublisher) PublishReport(ctx context.Context, r *reconcile.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal_report").
			Build()
	}

	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return err
		}
	}
	if err := p.client.Publish(ctx, p.topic, payload); err != nil {
		return err
	}
	p.log.Debug("report published",
		logger.String("topic", p.topic),
		logger.String("batch_id", r.BatchID),
		logger.String("result", r.Result()))
	return nil
}
