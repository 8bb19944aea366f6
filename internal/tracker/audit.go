package tracker

import (
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/goferhq/gofer/internal/logging"
)

// Audit is an on-disk mirror of cancellation events, kept for
// post-mortem diagnosis of a crash mid-task. It is never consulted on
// the read path of IsCancelled: the in-memory Tracker is always the
// source of truth.
type Audit struct {
	db  *badger.DB
	log *logging.Logger
}

// OpenAudit opens (or creates) the audit database at dir.
func OpenAudit(dir string, log *logging.Logger) (*Audit, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Audit{db: db, log: log}, nil
}

// RecordStart records that sn entered execution.
func (a *Audit) RecordStart(sn string) {
	a.record(sn, "started")
}

// RecordCancel records that sn was cancelled.
func (a *Audit) RecordCancel(sn string) {
	a.record(sn, "cancelled")
}

// RecordDone records that sn's task completed and its tracker entry
// was removed.
func (a *Audit) RecordDone(sn string) {
	a.record(sn, "done")
}

func (a *Audit) record(sn, event string) {
	err := a.db.Update(func(txn *badger.Txn) error {
		// Fixed-width fractional seconds keep the keys in chronological
		// order; RFC3339Nano trims trailing zeros and would not.
		key := []byte(sn + ":" + time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00"))
		return txn.Set(key, []byte(event))
	})
	if err != nil {
		a.log.Error("audit: failed to record %s for sn=%s: %v", event, sn, err)
	}
}

// History returns every recorded event for sn, oldest first, for
// post-mortem inspection.
func (a *Audit) History(sn string) ([]string, error) {
	var events []string
	err := a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(sn + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				events = append(events, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return events, err
}

// Close releases the underlying database.
func (a *Audit) Close() error {
	return a.db.Close()
}
