// Package sheriff implements the reconciliation engine: the root
// aggregate holding every deputy's command table, the sheriff_id
// allocator, observer-mode enforcement, and the inbound/outbound bus
// message handlers.
package sheriff

import (
	"log"
	"sync"
	"time"

	"github.com/procman-go/sheriff/internal/bus"
	"github.com/procman-go/sheriff/internal/clock"
	"github.com/procman-go/sheriff/internal/command"
	"github.com/procman-go/sheriff/internal/config"
	"github.com/procman-go/sheriff/internal/deputy"
	"github.com/procman-go/sheriff/internal/event"
	"github.com/procman-go/sheriff/internal/script"
	"github.com/procman-go/sheriff/internal/wire"
)

const (
	// infoStaleAfter is the freshness window for PMD_INFO reports
	// outside observer mode; older reports are dropped.
	infoStaleAfter = 30 * time.Second

	// maxSheriffID is the 30-bit positive-integer ceiling; the
	// allocator wraps back to 1 once it would exceed this.
	maxSheriffID = int32(1) << 30

	// maxProbes bounds the linear probe for a free sheriff_id.
	maxProbes = 1 << 16
)

// Sheriff is the root aggregate. All exported methods are safe for
// concurrent use; the expected caller is a single event loop goroutine,
// but the mutex also protects the console and test code calling in
// directly.
type Sheriff struct {
	mu sync.Mutex

	name       string
	isObserver bool

	deputies      map[string]*deputy.Deputy
	nextSheriffID int32

	scripts map[string]*config.Script

	events *event.Bus
	b      *bus.Bus
	clk    clock.Clock
	exec   *script.Executor

	infoSub   <-chan bus.Message
	ordersSub <-chan bus.Message
	stop      chan struct{}
}

// New creates a Sheriff identified by name, subscribes it to the bus's
// PMD_INFO/PMD_ORDERS channels, and starts its inbound message pump.
// Call Close to stop the pump.
func New(name string, observer bool, b *bus.Bus, events *event.Bus, clk clock.Clock) *Sheriff {
	s := &Sheriff{
		name:          name,
		isObserver:    observer,
		deputies:      make(map[string]*deputy.Deputy),
		nextSheriffID: 1,
		scripts:       make(map[string]*config.Script),
		events:        events,
		b:             b,
		clk:           clk,
		infoSub:       b.Subscribe(bus.ChannelInfo),
		ordersSub:     b.Subscribe(bus.ChannelOrders),
		stop:          make(chan struct{}),
	}
	s.exec = script.NewExecutor(scriptProviderAdapter{s}, lookupAdapter{s}, mutatorAdapter{s}, events, clk)
	go s.pump()
	return s
}

// Close stops the sheriff's bus message pump. It does not unsubscribe
// from the bus; internal/bus is subscribe-only.
func (s *Sheriff) Close() {
	close(s.stop)
}

// pump is the inbound half of the event loop: it drains PMD_INFO and
// PMD_ORDERS, processing messages strictly in arrival order per
// channel.
func (s *Sheriff) pump() {
	for {
		select {
		case <-s.stop:
			return
		case msg := <-s.infoSub:
			s.handleInfo(msg)
		case msg := <-s.ordersSub:
			s.handleOrders(msg)
		}
	}
}

// IsObserver reports whether the sheriff is in observer mode.
func (s *Sheriff) IsObserver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isObserver
}

// Name returns the sheriff's own instance name.
func (s *Sheriff) Name() string {
	return s.name
}

func (s *Sheriff) checkNotObserver() error {
	s.mu.Lock()
	observer := s.isObserver
	s.mu.Unlock()
	if observer {
		return ErrModeViolation
	}
	return nil
}

// handleInfo decodes and applies one PMD_INFO message: dropped
// silently if stale and not observing, otherwise merged into the owning
// deputy and fanned out.
func (s *Sheriff) handleInfo(msg bus.Message) {
	info, err := wire.DecodeInfo(msg.Payload)
	if err != nil {
		log.Printf("[SHERIFF] WARNING: dropping malformed PMD_INFO: %v", err)
		return
	}

	s.mu.Lock()
	observer := s.isObserver
	s.mu.Unlock()

	if !observer {
		ageMicros := s.clk.Now().UnixMicro() - int64(info.UTime)
		if ageMicros > 0 && time.Duration(ageMicros)*time.Microsecond > infoStaleAfter {
			return
		}
	}

	s.mu.Lock()
	d := s.getOrMakeDeputyLocked(info.Host)
	changes := d.ApplyInfo(info)
	s.mu.Unlock()

	s.events.Emit(event.Event{Kind: event.DeputyInfoReceived, Payload: info.Host})
	s.fanOut(changes)
}

// handleOrders decodes and mirrors one peer sheriff's PMD_ORDERS
// broadcast — only meaningful in observer mode.
func (s *Sheriff) handleOrders(msg bus.Message) {
	s.mu.Lock()
	observer := s.isObserver
	s.mu.Unlock()
	if !observer {
		return
	}

	orders, err := wire.DecodeOrders(msg.Payload)
	if err != nil {
		log.Printf("[SHERIFF] WARNING: dropping malformed PMD_ORDERS: %v", err)
		return
	}

	s.mu.Lock()
	d := s.getOrMakeDeputyLocked(orders.Host)
	changes := d.ApplyOrders(orders)
	s.mu.Unlock()

	s.fanOut(changes)
}

// getOrMakeDeputyLocked must be called with s.mu held.
func (s *Sheriff) getOrMakeDeputyLocked(name string) *deputy.Deputy {
	d, ok := s.deputies[name]
	if !ok {
		d = deputy.New(name)
		s.deputies[name] = d
	}
	return d
}

// fanOut emits the typed event for each status-change triple: old==nil
// is CommandAdded, new==nil is CommandRemoved, otherwise
// CommandStatusChanged. Must be called with s.mu NOT held — handlers
// (including the script executor's wait-predicate) may re-enter the
// sheriff's mutators synchronously.
func (s *Sheriff) fanOut(changes []deputy.StatusChange) {
	for _, c := range changes {
		s.emitStatusChange(c)
	}
}

func (s *Sheriff) emitStatusChange(c deputy.StatusChange) {
	switch {
	case c.OldStatus == nil:
		s.events.Emit(event.Event{Kind: event.CommandAdded, Payload: c.Command})
	case c.NewStatus == nil:
		s.events.Emit(event.Event{Kind: event.CommandRemoved, Payload: c.Command})
	default:
		s.events.Emit(event.Event{Kind: event.CommandStatusChanged, Payload: c})
	}
}

// BroadcastOrders publishes every deputy's MakeOrders snapshot onto
// PMD_ORDERS. It is an error to call while in observer mode — this is
// the entry point the periodic ticker uses; mutators call publishOrders
// directly.
func (s *Sheriff) BroadcastOrders() error {
	if err := s.checkNotObserver(); err != nil {
		return err
	}
	s.publishOrders()
	return nil
}

// publishOrders performs the actual publish without the observer-mode
// check — callers that already verified non-observer status (every
// mutator) use this directly to avoid a redundant check mid-mutation.
// It takes the sheriff lock only while snapshotting, so bus delivery
// happens outside the critical section.
func (s *Sheriff) publishOrders() {
	s.mu.Lock()
	snapshot := make([]wire.Orders, 0, len(s.deputies))
	for _, d := range s.deputies {
		snapshot = append(snapshot, d.MakeOrders(s.name))
	}
	s.mu.Unlock()

	for _, o := range snapshot {
		s.b.Publish(bus.Message{ID: bus.NewMessageID(), Channel: bus.ChannelOrders, Payload: wire.EncodeOrders(o)})
	}
}

// RunOrdersTicker broadcasts once per interval until the sheriff is
// closed; call in its own goroutine.
func (s *Sheriff) RunOrdersTicker(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			if err := s.BroadcastOrders(); err != nil {
				log.Printf("[SHERIFF] skipping periodic broadcast: %v", err)
			}
		}
	}
}

// allocateSheriffIDLocked linearly probes for a free id: starting at
// the persistent cursor, skip ids already in use by any deputy's
// command table, wrap past 2^30 back to 1, and give up after maxProbes
// attempts. Must be called with s.mu held.
func (s *Sheriff) allocateSheriffIDLocked() (int32, error) {
	id := s.nextSheriffID
	for i := 0; i < maxProbes; i++ {
		if !s.idInUseLocked(id) {
			s.nextSheriffID = advanceID(id)
			return id, nil
		}
		id = advanceID(id)
	}
	return 0, ErrResourceExhausted
}

func advanceID(id int32) int32 {
	id++
	if id > maxSheriffID {
		id = 1
	}
	return id
}

func (s *Sheriff) idInUseLocked(id int32) bool {
	for _, d := range s.deputies {
		if _, ok := d.Commands[id]; ok {
			return true
		}
	}
	return false
}

// scriptProviderAdapter, lookupAdapter and mutatorAdapter let *Sheriff
// satisfy the script package's three collaborator interfaces without
// exporting sheriff internals into method sets callers shouldn't use
// directly (e.g. script.Mutator's no-error StartCommand would be a
// confusing public signature for Sheriff itself, whose StartCommand
// needs to return a mode-violation error).
type scriptProviderAdapter struct{ s *Sheriff }

func (a scriptProviderAdapter) GetScript(name string) (*config.Script, bool) {
	return a.s.GetScript(name)
}

type lookupAdapter struct{ s *Sheriff }

func (a lookupAdapter) CommandsByNickname(n string) []*command.Command {
	return a.s.CommandsByNickname(n)
}
func (a lookupAdapter) CommandsByGroup(g string) []*command.Command { return a.s.CommandsByGroup(g) }
func (a lookupAdapter) AllCommands() []*command.Command             { return a.s.AllCommands() }

type mutatorAdapter struct{ s *Sheriff }

func (a mutatorAdapter) StartCommand(cmd *command.Command) {
	if err := a.s.StartCommand(cmd); err != nil {
		log.Printf("[SCRIPT] start command %d: %v", cmd.SheriffID, err)
	}
}

func (a mutatorAdapter) StopCommand(cmd *command.Command) {
	if err := a.s.StopCommand(cmd); err != nil {
		log.Printf("[SCRIPT] stop command %d: %v", cmd.SheriffID, err)
	}
}

func (a mutatorAdapter) RestartCommand(cmd *command.Command) {
	if err := a.s.RestartCommand(cmd); err != nil {
		log.Printf("[SCRIPT] restart command %d: %v", cmd.SheriffID, err)
	}
}

// Executor returns the sheriff's script executor, for the console and
// tests to drive ExecuteScript/AbortScript directly.
func (s *Sheriff) Executor() *script.Executor {
	return s.exec
}

// Events returns the sheriff's typed event bus, for callers (the
// one-shot CLI driver, tests) that need to observe ScriptFinished or
// other events directly rather than through a mutator's return value.
func (s *Sheriff) Events() *event.Bus {
	return s.events
}
