package envelope

import "time"

// NewStatus builds a status envelope (accepted/rejected/started/progress)
// carrying the caller's round-trip data, echoed on every status and reply.
func NewStatus(sn, status string, data interface{}) *Envelope {
	e := New()
	e.SetSN(sn)
	e.Set(KeyStatus, status)
	e.Set(KeyTimestamp, time.Now().UTC().Format(time.RFC3339Nano))
	if data != nil {
		e.Set(KeyData, data)
	}
	return e
}

// NewRejected builds a rejected-status envelope with the decoder/auth code
// and details that caused the rejection.
func NewRejected(sn, code, details string) *Envelope {
	e := NewStatus(sn, StatusRejected, nil)
	e.Set("code", code)
	e.Set("description", details)
	return e
}

// NewProgress builds a progress-status envelope.
func NewProgress(sn string, data interface{}, total, completed int, details string) *Envelope {
	e := NewStatus(sn, StatusProgress, data)
	e.Set("total", total)
	e.Set("completed", completed)
	e.Set("details", details)
	return e
}

// NewReply builds a final reply envelope carrying either a retval or an
// exval, plus the caller's round-trip data.
func NewReply(sn string, data interface{}) *Envelope {
	e := New()
	e.SetSN(sn)
	e.Set(KeyTimestamp, time.Now().UTC().Format(time.RFC3339Nano))
	if data != nil {
		e.Set(KeyData, data)
	}
	return e
}
