package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/goferhq/gofer/internal/envelope"
	"github.com/goferhq/gofer/internal/logging"
	"github.com/goferhq/gofer/internal/pool"
	"github.com/goferhq/gofer/internal/rmi"
	"github.com/goferhq/gofer/internal/tracker"
)

type queueStore struct {
	mu    sync.Mutex
	items []*envelope.Envelope
	ready chan struct{}
}

func newQueueStore() *queueStore {
	return &queueStore{ready: make(chan struct{}, 16)}
}

func (s *queueStore) push(e *envelope.Envelope) {
	s.mu.Lock()
	s.items = append(s.items, e)
	s.mu.Unlock()
	s.ready <- struct{}{}
}

func (s *queueStore) Get() (*envelope.Envelope, error) {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.items[0]
	s.items = s.items[1:]
	return e, nil
}

type noopCommitter struct{}

func (noopCommitter) Commit(sn string) error { return nil }

type captureSender struct {
	mu  sync.Mutex
	out map[string][]*envelope.Envelope
}

func newCaptureSender() *captureSender {
	return &captureSender{out: make(map[string][]*envelope.Envelope)}
}

func (s *captureSender) SendTo(replyto string, env *envelope.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out[replyto] = append(s.out[replyto], env)
	return nil
}

func reqTo(sn, queue string) *envelope.Envelope {
	e := envelope.New()
	e.SetSN(sn)
	e.SetReplyTo("R")
	e.Set("inbound", map[string]interface{}{"queue": queue})
	e.SetRequest(envelope.Request{ClassName: "Dog", Method: "bark", Args: []interface{}{"hi"}, Kws: map[string]interface{}{}})
	return e
}

func TestUnknownPluginRoutesToSink(t *testing.T) {
	store := newQueueStore()
	sender := newCaptureSender()
	log := logging.New("test", false)
	sinkFactory := NewSinkTaskFactory(noopCommitter{}, sender, log)

	s := New(store, log, sinkFactory)
	go s.Run()
	defer s.Stop()

	store.push(reqTo("S4", "Q-nonexistent"))

	deadline := time.After(2 * time.Second)
	for {
		sender.mu.Lock()
		n := len(sender.out["R"])
		sender.mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sink never replied")
		case <-time.After(10 * time.Millisecond):
		}
	}

	reply := sender.out["R"][1]
	res, ok := reply.GetResult()
	if !ok || res.Succeeded() {
		t.Fatalf("expected failed result from sink, got %+v", res)
	}
}

func TestKnownPluginRoutesToItsPool(t *testing.T) {
	store := newQueueStore()
	sender := newCaptureSender()
	log := logging.New("test", false)
	sinkFactory := NewSinkTaskFactory(noopCommitter{}, sender, log)
	s := New(store, log, sinkFactory)

	dog := rmi.NewClass("Dog")
	dog.Remote("bark", func(ctx *rmi.Context, args []interface{}, kws map[string]interface{}) (interface{}, error) {
		return "ruf hi", nil
	})
	catalog := rmi.NewCatalog().Register(dog)

	p := pool.New(1, 10, log)
	s.Register("Q", &Plugin{
		Name: "P",
		Pool: p,
		NewTask: func() *rmi.Task {
			return &rmi.Task{
				Catalog: catalog,
				Tracker: tracker.New(),
				Store:   noopCommitter{},
				Sender:  sender,
				Log:     log,
			}
		},
	})

	go s.Run()
	defer s.Stop()

	store.push(reqTo("S1", "Q"))

	deadline := time.After(2 * time.Second)
	for {
		sender.mu.Lock()
		n := len(sender.out["R"])
		sender.mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("plugin never replied")
		case <-time.After(10 * time.Millisecond):
		}
	}

	reply := sender.out["R"][1]
	res, ok := reply.GetResult()
	if !ok || !res.Succeeded() || res.Retval != "ruf hi" {
		t.Fatalf("unexpected reply: %+v", res)
	}
}
