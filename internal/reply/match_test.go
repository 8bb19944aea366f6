package reply

import (
	"testing"

	"github.com/goferhq/gofer/internal/envelope"
)

func TestDeliverRoutesToRegisteredWaiter(t *testing.T) {
	m := NewMatchStore()
	ch := m.Register("S1")
	defer m.Cancel("S1")

	env := envelope.NewStatus("S1", envelope.StatusStarted, nil)
	if !m.Deliver(env) {
		t.Fatal("expected delivery to succeed for a registered sn")
	}

	select {
	case got := <-ch:
		if got.SN() != "S1" {
			t.Fatalf("unexpected envelope delivered: %+v", got)
		}
	default:
		t.Fatal("expected envelope to be queued on the waiter channel")
	}
}

func TestDeliverReportsFalseForUnregisteredSN(t *testing.T) {
	m := NewMatchStore()
	env := envelope.NewStatus("S2", envelope.StatusStarted, nil)
	if m.Deliver(env) {
		t.Fatal("expected no delivery for an sn with no waiter")
	}
}

func TestCancelStopsFurtherDelivery(t *testing.T) {
	m := NewMatchStore()
	m.Register("S3")
	m.Cancel("S3")

	env := envelope.NewStatus("S3", envelope.StatusStarted, nil)
	if m.Deliver(env) {
		t.Fatal("expected no delivery after Cancel")
	}
}
