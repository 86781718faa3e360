package progress

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"Replaya/internal/config"
	"Replaya/internal/replay"
)

// NATSPublisher pushes replay progress and status snapshots to NATS as
// JSON. It implements replay.ProgressSink.
type NATSPublisher struct {
	nc            *nats.Conn
	subjectPrefix string
}

// NewNATSPublisher connects to the configured NATS server.
func NewNATSPublisher(cfg config.NATSConfig) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	logrus.Infof("Connected to NATS server at %s", cfg.URL)

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "replaya"
	}
	return &NATSPublisher{nc: nc, subjectPrefix: prefix}, nil
}

// PublishProgress emits a snapshot on <prefix>.progress.
func (p *NATSPublisher) PublishProgress(snap replay.Snapshot) error {
	return p.publish(p.subjectPrefix+".progress", snap)
}

// PublishStatus emits a snapshot on <prefix>.status.
func (p *NATSPublisher) PublishStatus(snap replay.Snapshot) error {
	return p.publish(p.subjectPrefix+".status", snap)
}

func (p *NATSPublisher) publish(subject string, snap replay.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return p.nc.Publish(subject, data)
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		logrus.Info("NATS connection drained and closed")
	}
}
