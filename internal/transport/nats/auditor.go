// Package nats publishes DLP audit records to a NATS subject.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	domdlp "github.com/kailas-cloud/aegis/internal/domain/dlp"
)

// HeaderScanID carries the scan id so consumers can route without decoding.
const HeaderScanID = "Aegis-Scan-Id"

type publisher interface {
	PublishMsg(m *nats.Msg) error
}

// Auditor implements dlp.Auditor. Records carry finding metadata only.
type Auditor struct {
	pub     publisher
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// Connect dials the server and returns an auditor publishing to subject.
func Connect(url, subject string, logger *zap.Logger) (*Auditor, error) {
	if subject == "" {
		return nil, errors.New("nats: audit subject is required")
	}
	nc, err := nats.Connect(url,
		nats.Name("aegis-audit"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats_disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats_reconnected", zap.String("url", c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", url, err)
	}
	a := newAuditor(nc, subject, logger)
	a.conn = nc
	return a, nil
}

func newAuditor(pub publisher, subject string, logger *zap.Logger) *Auditor {
	return &Auditor{pub: pub, subject: subject, logger: logger}
}

// Record publishes rec as JSON. Publishing is fire-and-forget at the NATS level.
func (a *Auditor) Record(_ context.Context, rec domdlp.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("nats: marshal audit record: %w", err)
	}
	msg := &nats.Msg{
		Subject: a.subject,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(HeaderScanID, rec.ScanID)
	msg.Header.Set(nats.MsgIdHdr, rec.ScanID)

	if err := a.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats: publish %s: %w", a.subject, err)
	}
	return nil
}

// Close flushes pending records and closes the connection.
func (a *Auditor) Close() error {
	if a.conn == nil {
		return nil
	}
	if err := a.conn.Drain(); err != nil {
		a.conn.Close()
		return fmt.Errorf("nats: drain: %w", err)
	}
	return nil
}
