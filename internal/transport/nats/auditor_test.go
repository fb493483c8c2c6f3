package nats

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	domdlp "github.com/kailas-cloud/aegis/internal/domain/dlp"
)

type fakePublisher struct {
	msgs []*nats.Msg
	err  error
}

func (f *fakePublisher) PublishMsg(m *nats.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func testRecord() domdlp.AuditRecord {
	return domdlp.AuditRecord{
		ScanID:  "scan-1",
		Actor:   "analyst@soc",
		Context: "prompt",
		Blocked: true,
		Findings: []domdlp.AuditFinding{{
			DataType:   domdlp.CredentialAPIKey,
			Action:     domdlp.ActionBlock,
			Span:       domdlp.Span{Start: 4, End: 24},
			Confidence: 0.95,
		}},
		DurationMS: 1.5,
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestAuditor_Record(t *testing.T) {
	pub := &fakePublisher{}
	a := newAuditor(pub, "aegis.audit.dlp", zap.NewNop())

	if err := a.Record(context.Background(), testRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}

	msg := pub.msgs[0]
	if msg.Subject != "aegis.audit.dlp" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if msg.Header.Get(HeaderScanID) != "scan-1" || msg.Header.Get(nats.MsgIdHdr) != "scan-1" {
		t.Errorf("unexpected headers %v", msg.Header)
	}

	var got domdlp.AuditRecord
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ScanID != "scan-1" || !got.Blocked || len(got.Findings) != 1 {
		t.Errorf("unexpected record %+v", got)
	}
	if strings.Contains(string(msg.Data), "matched_text") {
		t.Error("audit payload must not carry matched text")
	}
}

func TestAuditor_PublishError(t *testing.T) {
	a := newAuditor(&fakePublisher{err: errors.New("connection closed")}, "aegis.audit.dlp", zap.NewNop())
	if err := a.Record(context.Background(), testRecord()); err == nil {
		t.Fatal("expected error")
	}
}

func TestConnect_RequiresSubject(t *testing.T) {
	if _, err := Connect("nats://localhost:4222", "", zap.NewNop()); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestAuditor_CloseWithoutConn(t *testing.T) {
	if err := newAuditor(&fakePublisher{}, "s", zap.NewNop()).Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
