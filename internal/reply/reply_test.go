package reply

import (
	"testing"

	"github.com/goferhq/gofer/internal/envelope"
)

func TestClassifyStatusEnvelope(t *testing.T) {
	env := envelope.NewStatus("S1", envelope.StatusStarted, nil)
	r := Classify(env)
	if r.Kind != KindStatus || r.Status != envelope.StatusStarted {
		t.Fatalf("unexpected classification: %+v", r)
	}
}

func TestClassifySucceededReply(t *testing.T) {
	env := envelope.NewReply("S2", nil)
	env.SetResultValue(42)
	r := Classify(env)
	if r.Kind != KindSucceeded || r.Retval != 42 {
		t.Fatalf("unexpected classification: %+v", r)
	}
}

func TestClassifyFailedReply(t *testing.T) {
	env := envelope.NewReply("S3", nil)
	env.SetResultException("boom")
	r := Classify(env)
	if r.Kind != KindFailed || r.Exval != "boom" {
		t.Fatalf("unexpected classification: %+v", r)
	}
}

type recordingListener struct {
	succeeded, failed, status []Reply
}

func (l *recordingListener) Succeeded(r Reply) { l.succeeded = append(l.succeeded, r) }
func (l *recordingListener) Failed(r Reply)    { l.failed = append(l.failed, r) }
func (l *recordingListener) Status(r Reply)    { l.status = append(l.status, r) }

func TestListenerFuncRoutesEveryKind(t *testing.T) {
	var got []Kind
	f := ListenerFunc(func(r Reply) { got = append(got, r.Kind) })

	notify(f, Reply{Kind: KindStatus})
	notify(f, Reply{Kind: KindSucceeded})
	notify(f, Reply{Kind: KindFailed})

	if len(got) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(got))
	}
}
