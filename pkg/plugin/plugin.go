// Package plugin is the public surface agent plugins register their
// remote-callable classes against. It re-exports internal/rmi's
// catalog types directly so a plugin author never needs to import an
// internal package to participate in dispatch.
package plugin

import "github.com/goferhq/gofer/internal/rmi"

// Context is the per-call handle a method receives: its serial number,
// a live Progress reporter, and a cooperative Cancelled() predicate.
type Context = rmi.Context

// Progress lets a long-running method report {total, completed,
// details} back to the caller as the call proceeds.
type Progress = rmi.Progress

// Method is the signature every registered class method must satisfy.
type Method = rmi.Method

// Class is a named bundle of methods a request's classname resolves
// to. Build one with New, register methods with Remote/Local, then
// hand it to a Catalog.
type Class = rmi.Class

// Catalog maps classnames to Class entries; an agent process builds one
// per plugin and wires each into that plugin's scheduler entry.
type Catalog = rmi.Catalog

// New creates an empty Class named name.
func New(name string) *Class { return rmi.NewClass(name) }

// NewCatalog returns an empty Catalog.
func NewCatalog() *Catalog { return rmi.NewCatalog() }

// Errors a method's dispatch can fail with before the method itself
// ever runs.
type (
	ClassNotFound  = rmi.ClassNotFound
	MethodNotFound = rmi.MethodNotFound
	NotPermitted   = rmi.NotPermitted
)
