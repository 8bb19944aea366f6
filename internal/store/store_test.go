package store

import (
	"testing"
	"time"

	"github.com/goferhq/gofer/internal/envelope"
	"github.com/goferhq/gofer/internal/logging"
)

func newEnv(sn string) *envelope.Envelope {
	e := envelope.New()
	e.SetSN(sn)
	return e
}

func TestPutGetCommit(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, logging.New("test", false))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Put(newEnv("S1")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SN() != "S1" {
		t.Errorf("expected S1, got %s", got.SN())
	}

	if err := s.Commit("S1"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.Commit("S1"); err != nil {
		t.Errorf("expected idempotent commit, got %v", err)
	}
}

func TestGetBlocksUntilPut(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, logging.New("test", false))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	done := make(chan *envelope.Envelope, 1)
	go func() {
		env, err := s.Get()
		if err != nil {
			t.Error(err)
			return
		}
		done <- env
	}()

	time.Sleep(50 * time.Millisecond)
	if err := s.Put(newEnv("S2")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	select {
	case env := <-done:
		if env.SN() != "S2" {
			t.Errorf("expected S2, got %s", env.SN())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Get did not unblock after Put")
	}
}

func TestReplayOnRestart(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir, logging.New("test", false))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.Put(newEnv("S3")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s1.Close()

	s2, err := Open(dir, logging.New("test", false))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	env, err := s2.Get()
	if err != nil {
		t.Fatalf("Get after restart: %v", err)
	}
	if env.SN() != "S3" {
		t.Errorf("expected replayed S3, got %s", env.SN())
	}
}
