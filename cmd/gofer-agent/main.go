// Command gofer-agent runs the agent core: it loads configuration,
// connects to the broker, opens the durable pending store, and wires
// one consumer and one worker pool per configured plugin queue into
// the scheduler, then blocks until an OS signal asks it to stop.
//
// Plugin classes are compiled in, not dynamically loaded: an agent
// binary registers its catalogs in registerPlugins and a config entry
// binds a catalog's queue name to its pool sizing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goferhq/gofer/internal/auth"
	"github.com/goferhq/gofer/internal/broker"
	"github.com/goferhq/gofer/internal/config"
	"github.com/goferhq/gofer/internal/consumer"
	"github.com/goferhq/gofer/internal/logging"
	"github.com/goferhq/gofer/internal/pool"
	"github.com/goferhq/gofer/internal/rmi"
	"github.com/goferhq/gofer/internal/scheduler"
	"github.com/goferhq/gofer/internal/store"
	"github.com/goferhq/gofer/internal/tracker"
	"github.com/goferhq/gofer/pkg/plugin"
)

func main() {
	configPath := flag.String("config", "/etc/gofer/agent.yaml", "configuration file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gofer-agent: %v\n", err)
		os.Exit(1)
	}

	log := logging.New("gofer-agent", cfg.Debug)

	if err := run(cfg, log); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logging.Logger) error {
	b := broker.NewReliable(broker.NewAMQP(cfg.Messaging.URL, log), log)
	defer b.Close()

	pending, err := store.Open(cfg.Pending.Directory, log)
	if err != nil {
		return fmt.Errorf("open pending store: %w", err)
	}
	defer pending.Close()

	tr := tracker.New()
	if cfg.Tracker.AuditDirectory != "" {
		audit, err := tracker.OpenAudit(cfg.Tracker.AuditDirectory, log)
		if err != nil {
			return fmt.Errorf("open audit trail: %w", err)
		}
		defer audit.Close()
		tr = tracker.NewWithAudit(audit)
	}
	sender := rmi.NewBrokerSender(b)
	catalogs := registerPlugins(tr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sinkFactory := scheduler.NewSinkTaskFactory(pending, sender, log)
	sched := scheduler.New(pending, log, sinkFactory)

	var authr auth.Authenticator
	if cfg.Messaging.Authenticator != "" {
		authr = &auth.HMAC{KeyFor: func(string) []byte { return []byte(cfg.Messaging.Authenticator) }}
	}

	var pools []*pool.Pool
	for _, pc := range cfg.Plugins {
		kind := broker.ExchangeDirect
		if pc.ExchangeKind == string(broker.ExchangeTopic) {
			kind = broker.ExchangeTopic
		}
		if pc.Exchange != "" {
			if err := b.DeclareExchange(pc.Exchange, kind, true, false); err != nil {
				return fmt.Errorf("plugin %s: declare exchange: %w", pc.Name, err)
			}
		}
		routingKey := pc.RoutingKey
		if routingKey == "" {
			routingKey = pc.Queue
		}
		if err := b.DeclareQueue(pc.Queue, pc.Exchange, routingKey, true, false, false); err != nil {
			return fmt.Errorf("plugin %s: declare queue: %w", pc.Name, err)
		}

		cat, ok := catalogs[pc.Name]
		if !ok {
			return fmt.Errorf("plugin %s: no compiled-in catalog registered for this name", pc.Name)
		}

		p := pool.New(pc.Capacity, pc.Backlog, log)
		pools = append(pools, p)

		sched.Register(pc.Queue, &scheduler.Plugin{
			Name: pc.Name,
			Pool: p,
			NewTask: func() *rmi.Task {
				return &rmi.Task{
					Catalog: cat,
					Tracker: tr,
					Store:   pending,
					Sender:  sender,
					Log:     log,
				}
			},
		})

		c := &consumer.Consumer{
			Broker:        b,
			Queue:         pc.Queue,
			Authenticator: authr,
			Store:         pending,
			Log:           log,
		}
		go c.Run(ctx)
		log.Info("plugin %s listening on queue %s", pc.Name, pc.Queue)
	}

	go sched.Run()
	defer sched.Stop()

	log.Info("gofer-agent started (pid %d)", os.Getpid())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("received signal %s, shutting down", sig)
	case <-ctx.Done():
	}

	for _, p := range pools {
		orphans := p.Shutdown()
		for _, env := range orphans {
			if err := pending.Put(env); err != nil {
				log.Error("failed to re-persist orphaned request sn=%s: %v", env.SN(), err)
			}
		}
	}

	log.Info("gofer-agent stopped")
	return nil
}

// registerPlugins is the compiled-in plugin registry. A real deployment
// replaces this with its own set of classes; the demo Dog class here
// exercises the full pipeline end to end. Control is the out-of-band
// cancel handler the spec calls for: a remote method on a control
// plugin that marks a serial number cancelled in the shared tracker.
func registerPlugins(tr *tracker.Tracker) map[string]*plugin.Catalog {
	dog := plugin.New("Dog")
	dog.Remote("bark", func(ctx *plugin.Context, args []interface{}, kws map[string]interface{}) (interface{}, error) {
		word := "hi"
		if len(args) > 0 {
			if s, ok := args[0].(string); ok {
				word = s
			}
		}
		return "ruf " + word, nil
	})

	control := plugin.New("Control")
	control.Remote("cancel", func(ctx *plugin.Context, args []interface{}, kws map[string]interface{}) (interface{}, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("cancel requires the target sn as its first argument")
		}
		sn, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("cancel: sn must be a string")
		}
		tr.Cancel(sn)
		return nil, nil
	})

	return map[string]*plugin.Catalog{
		"dog":     plugin.NewCatalog().Register(dog),
		"control": plugin.NewCatalog().Register(control),
	}
}
