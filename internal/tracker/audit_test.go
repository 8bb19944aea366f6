package tracker

import "testing"

type recordingMirror struct {
	started, cancelled, done []string
}

func (m *recordingMirror) RecordStart(sn string)  { m.started = append(m.started, sn) }
func (m *recordingMirror) RecordCancel(sn string) { m.cancelled = append(m.cancelled, sn) }
func (m *recordingMirror) RecordDone(sn string)   { m.done = append(m.done, sn) }

func TestTrackerMirrorsLifecycleToAudit(t *testing.T) {
	mirror := &recordingMirror{}
	tr := NewWithAudit(mirror)

	tr.Add("S1")
	tr.Cancel("S1")
	tr.Remove("S1")

	if len(mirror.started) != 1 || mirror.started[0] != "S1" {
		t.Fatalf("expected one RecordStart(S1), got %v", mirror.started)
	}
	if len(mirror.cancelled) != 1 || mirror.cancelled[0] != "S1" {
		t.Fatalf("expected one RecordCancel(S1), got %v", mirror.cancelled)
	}
	if len(mirror.done) != 1 || mirror.done[0] != "S1" {
		t.Fatalf("expected one RecordDone(S1), got %v", mirror.done)
	}
}

func TestTrackerDoesNotMirrorCancelOfUnknownSN(t *testing.T) {
	mirror := &recordingMirror{}
	tr := NewWithAudit(mirror)

	tr.Cancel("unknown")

	if len(mirror.cancelled) != 0 {
		t.Fatalf("expected no RecordCancel for an untracked sn, got %v", mirror.cancelled)
	}
}
