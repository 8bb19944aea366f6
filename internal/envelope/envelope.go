// Package envelope implements the canonical document used for requests,
// status updates, and replies flowing between callers and the agent core.
//
// An Envelope is a flexible key/value bag rather than a fixed struct: the
// wire format must round-trip unknown fields and must encode with keys
// sorted at every nesting level so that signature inputs are reproducible.
// encoding/json already sorts the keys of a map[string]interface{}
// recursively on Marshal, so backing the envelope with a map gives the
// canonical-encoding and round-trip invariants for free.
package envelope

import (
	"encoding/json"
	"fmt"
)

// Version is the schema version this core supports. Envelopes carrying
// any other value are rejected with InvalidVersion.
const Version = "1.0"

// Reserved top-level envelope keys.
const (
	KeySN        = "sn"
	KeyVersion   = "version"
	KeyRouting   = "routing"
	KeyReplyTo   = "replyto"
	KeyRequest   = "request"
	KeyResult    = "result"
	KeyStatus    = "status"
	KeyWindow    = "window"
	KeyTimestamp = "ts"
	KeyData      = "data"
	KeySignature = "signature"
)

// Status values observable on a reply queue.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusStarted  = "started"
	StatusProgress = "progress"
)

// Envelope is the in-memory, dot-accessible form of a wire document.
type Envelope struct {
	fields map[string]interface{}
}

// New creates an empty envelope with the core's version stamped in.
func New() *Envelope {
	return &Envelope{fields: map[string]interface{}{
		KeyVersion: Version,
	}}
}

// FromMap wraps an already-decoded map as an Envelope without copying.
func FromMap(m map[string]interface{}) *Envelope {
	if m == nil {
		m = make(map[string]interface{})
	}
	return &Envelope{fields: m}
}

// Decode parses raw bytes into an Envelope and validates sn/version. On a
// validation failure (missing sn, wrong version) the partially-built
// Envelope is still returned alongside the error so callers can inspect
// whatever routing/replyto the document did carry; only an unparsable body
// yields a nil Envelope, since there is no document to inspect at all.
func Decode(data []byte) (*Envelope, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &InvalidDocument{Code: "model.decode", Details: err.Error()}
	}
	e := FromMap(m)
	if err := e.validate(); err != nil {
		return e, err
	}
	return e, nil
}

// DecodeErrorCode extracts the rejection code a Decode error carries, for
// building a rejected status without a type switch at each call site.
func DecodeErrorCode(err error) string {
	switch e := err.(type) {
	case *InvalidDocument:
		return e.Code
	case *InvalidVersion:
		return e.Code
	default:
		return "model.decode"
	}
}

func (e *Envelope) validate() error {
	sn, _ := e.fields[KeySN].(string)
	if sn == "" {
		return &InvalidDocument{Code: "model.sn", Document: sn, Details: "sn is required"}
	}
	version, _ := e.fields[KeyVersion].(string)
	if version != Version {
		return &InvalidVersion{Code: "model.version", Document: sn, Details: fmt.Sprintf("invalid version %q, expected %q", version, Version)}
	}
	return nil
}

// Encode produces the canonical, sorted-key JSON representation.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e.fields)
}

// Map returns the underlying field map. Callers must not retain it across
// concurrent mutation of the envelope.
func (e *Envelope) Map() map[string]interface{} {
	return e.fields
}

// Clone produces a deep copy: nested maps and slices are copied at every
// level, including caller-supplied `data`; other values (strings, numbers,
// and any non-JSON types) are copied by assignment.
func (e *Envelope) Clone() *Envelope {
	out := make(map[string]interface{}, len(e.fields))
	for k, v := range e.fields {
		out[k] = cloneValue(v)
	}
	return &Envelope{fields: out}
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// Get/Set give dot-accessor style field access on top of the map.

func (e *Envelope) Get(key string) (interface{}, bool) {
	v, ok := e.fields[key]
	return v, ok
}

func (e *Envelope) GetString(key string) string {
	v, _ := e.fields[key].(string)
	return v
}

func (e *Envelope) Set(key string, value interface{}) *Envelope {
	e.fields[key] = value
	return e
}

func (e *Envelope) Delete(key string) {
	delete(e.fields, key)
}

func (e *Envelope) SN() string      { return e.GetString(KeySN) }
func (e *Envelope) ReplyTo() string { return e.GetString(KeyReplyTo) }

func (e *Envelope) SetSN(sn string) *Envelope {
	return e.Set(KeySN, sn)
}

func (e *Envelope) SetReplyTo(addr string) *Envelope {
	if addr == "" {
		return e
	}
	return e.Set(KeyReplyTo, addr)
}

// Routing returns the [origin, destination] pair, or two empty strings if
// absent or malformed.
func (e *Envelope) Routing() (origin, destination string) {
	v, ok := e.fields[KeyRouting].([]interface{})
	if !ok || len(v) < 2 {
		return "", ""
	}
	o, _ := v[0].(string)
	d, _ := v[1].(string)
	return o, d
}

func (e *Envelope) SetRouting(origin, destination string) *Envelope {
	return e.Set(KeyRouting, []interface{}{origin, destination})
}

// Request holds the {classname, method, args, kws} sub-document carried by
// request envelopes.
type Request struct {
	ClassName string                 `json:"classname"`
	Method    string                 `json:"method"`
	Args      []interface{}          `json:"args"`
	Kws       map[string]interface{} `json:"kws"`
}

func (e *Envelope) SetRequest(r Request) *Envelope {
	return e.Set(KeyRequest, map[string]interface{}{
		"classname": r.ClassName,
		"method":    r.Method,
		"args":      r.Args,
		"kws":       r.Kws,
	})
}

func (e *Envelope) GetRequest() (Request, bool) {
	raw, ok := e.fields[KeyRequest].(map[string]interface{})
	if !ok {
		return Request{}, false
	}
	var r Request
	r.ClassName, _ = raw["classname"].(string)
	r.Method, _ = raw["method"].(string)
	if args, ok := raw["args"].([]interface{}); ok {
		r.Args = args
	}
	if kws, ok := raw["kws"].(map[string]interface{}); ok {
		r.Kws = kws
	}
	return r, true
}

// Result holds the {retval} or {exval} sub-document carried by replies.
type Result struct {
	Retval interface{}
	Exval  string
	HasVal bool
}

func (e *Envelope) SetResultValue(retval interface{}) *Envelope {
	return e.Set(KeyResult, map[string]interface{}{"retval": retval})
}

func (e *Envelope) SetResultException(exval string) *Envelope {
	return e.Set(KeyResult, map[string]interface{}{"exval": exval})
}

func (e *Envelope) GetResult() (Result, bool) {
	raw, ok := e.fields[KeyResult].(map[string]interface{})
	if !ok {
		return Result{}, false
	}
	if rv, has := raw["retval"]; has {
		return Result{Retval: rv, HasVal: true}, true
	}
	if ev, has := raw["exval"]; has {
		s, _ := ev.(string)
		return Result{Exval: s}, true
	}
	return Result{}, true
}

// Succeeded reports whether a decoded Result represents success.
func (r Result) Succeeded() bool { return r.HasVal }

// Window holds the optional validity interval.
type Window struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
}

func (e *Envelope) SetWindow(w Window) *Envelope {
	m := map[string]interface{}{}
	if w.Begin != "" {
		m["begin"] = w.Begin
	}
	if w.End != "" {
		m["end"] = w.End
	}
	if len(m) == 0 {
		return e
	}
	return e.Set(KeyWindow, m)
}

func (e *Envelope) GetWindow() (Window, bool) {
	raw, ok := e.fields[KeyWindow].(map[string]interface{})
	if !ok {
		return Window{}, false
	}
	var w Window
	w.Begin, _ = raw["begin"].(string)
	w.End, _ = raw["end"].(string)
	return w, true
}

// InvalidDocument is the base validation error for malformed or
// unrecognised envelopes.
type InvalidDocument struct {
	Code     string
	Document string
	Details  string
}

func (e *InvalidDocument) Error() string {
	return fmt.Sprintf("%s: %s (document=%s)", e.Code, e.Details, e.Document)
}

// InvalidVersion is raised when an envelope's version does not match Version.
type InvalidVersion struct {
	Code     string
	Document string
	Details  string
}

func (e *InvalidVersion) Error() string {
	return fmt.Sprintf("model.version: %s (document=%s)", e.Details, e.Document)
}
