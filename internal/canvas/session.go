package canvas

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/opencanvas/canvas-core/internal/infrastructure/config"
	"github.com/opencanvas/canvas-core/internal/infrastructure/logging"
)

// State is the session's view of device connectivity.
type State int

const (
	// StateUnknown is the initial state before any contact.
	StateUnknown State = iota

	// StateProbing means a wake-probe sequence is in progress.
	StateProbing

	// StateAwake means the last exchange succeeded.
	StateAwake

	// StateUnreachable means the device could not be contacted. The
	// wire protocol does not distinguish a sleeping device from a dead
	// one, so both land here and the next access re-probes.
	StateUnreachable
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateProbing:
		return "probing"
	case StateAwake:
		return "awake"
	case StateUnreachable:
		return "unreachable"
	default:
		return "invalid"
	}
}

// Session wraps a Transport with the device connectivity state machine
// and the single-operation gate.
//
// The device accepts one connection at a time, so operations execute
// strictly one after another; a concurrent caller blocks until the
// current operation completes rather than erroring. Idempotent
// operations are retried on timeout up to the configured bound;
// non-idempotent operations get exactly one transport call per
// invocation.
//
// Thread Safety:
//   - Execute may be called from any number of goroutines; calls are
//     serialised internally.
//   - State accessors never block on the network.
type Session struct {
	transport Transport
	cfg       config.DeviceConfig
	cache     *StatusCache
	logger    *logging.Logger

	// opMu is the single-operation gate. It is held for the full
	// duration of every Execute call, including wake probes, and is
	// the only lock held across a network wait.
	opMu sync.Mutex

	stateMu     sync.RWMutex
	state       State
	lastContact time.Time
	lastErr     error
	onState     func(prev, next State)
}

// NewSession creates a session in StateUnknown. The first operation
// triggers a wake-probe sequence before executing.
func NewSession(transport Transport, cfg config.DeviceConfig, cache *StatusCache, logger *logging.Logger) *Session {
	return &Session{
		transport: transport,
		cfg:       cfg,
		cache:     cache,
		logger:    logger.With("component", "session", "device", cfg.Host),
		state:     StateUnknown,
	}
}

// State returns the current connectivity state without blocking.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// LastContact returns the time of the last successful exchange.
func (s *Session) LastContact() time.Time {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.lastContact
}

// LastError returns the error that caused the current state, if any.
func (s *Session) LastError() error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.lastErr
}

// SetOnStateChange registers a callback invoked after every state
// transition. Set once during wiring, before the session is used.
func (s *Session) SetOnStateChange(callback func(prev, next State)) {
	s.stateMu.Lock()
	s.onState = callback
	s.stateMu.Unlock()
}

// Execute runs one operation through the session gate.
//
// If the device is not known to be awake, a bounded wake-probe
// sequence runs first; if all probes fail the operation is not
// attempted and ErrUnreachable is returned. Successful responses
// opportunistically update the status cache when they carry status
// fields.
func (s *Session) Execute(ctx context.Context, op Operation) (*Response, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	return s.execute(ctx, op)
}

// execute runs one operation. Caller must hold opMu.
func (s *Session) execute(ctx context.Context, op Operation) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The whistle is itself the wake probe; probing before it would
	// double-count attempts.
	if s.State() != StateAwake && op.Kind != KindWake {
		if err := s.probe(ctx); err != nil {
			return nil, err
		}
	}

	return s.attempt(ctx, op)
}

// probe issues bounded wake probes until one succeeds.
func (s *Session) probe(ctx context.Context) error {
	s.setState(StateProbing, nil)

	probes := s.cfg.Wake.Probes
	wake := Operation{Kind: KindWake}

	var lastErr error
	for i := 0; i < probes; i++ {
		if i > 0 {
			if err := sleepCtx(ctx, s.cfg.Wake.GetWakeInterval()); err != nil {
				s.setState(StateUnreachable, lastErr)
				return err
			}
		}

		resp, err := s.transport.Send(ctx, wake)
		if err == nil && resp.StatusCode == http.StatusOK {
			s.recordContact()
			return nil
		}
		if err == nil {
			err = fmt.Errorf("%w: wake probe status %d", ErrOperationRejected, resp.StatusCode)
		}
		if errors.Is(err, context.Canceled) {
			s.setState(StateUnreachable, lastErr)
			return err
		}
		lastErr = err
		s.logger.Debug("wake probe failed", "attempt", i+1, "of", probes, "error", err)
	}

	s.setState(StateUnreachable, lastErr)
	return s.opError(KindWake, fmt.Errorf("%w: %d wake probes failed: %w", ErrUnreachable, probes, lastErr))
}

// attempt executes the operation, retrying on timeout only for
// idempotent kinds.
func (s *Session) attempt(ctx context.Context, op Operation) (*Response, error) {
	attempts := 1
	if op.Kind.Idempotent() {
		attempts = s.cfg.MaxRetries
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := s.transport.Send(ctx, op)
		if err == nil {
			if resp.StatusCode != http.StatusOK {
				// The device answered; it is awake, just unwilling.
				s.recordContact()
				return nil, s.opError(op.Kind, fmt.Errorf("%w: status %d", ErrOperationRejected, resp.StatusCode))
			}
			s.recordContact()
			s.absorb(op, resp)
			return resp, nil
		}

		lastErr = err
		if !errors.Is(err, ErrTimeout) {
			break
		}
		if i < attempts-1 {
			s.logger.Debug("retrying after timeout", "operation", op.Kind.String(), "attempt", i+1)
		}
	}

	return nil, s.classifyFailure(op, lastErr)
}

// classifyFailure maps a transport failure onto session semantics and
// adjusts connectivity state.
func (s *Session) classifyFailure(op Operation, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err

	case errors.Is(err, ErrTimeout), errors.Is(err, ErrConnectionRefused):
		s.setState(StateUnreachable, err)
		if op.Kind.Idempotent() {
			// The retry budget is spent; report unreachable rather
			// than a bare timeout so the caller knows re-probing is
			// the recovery path.
			return s.opError(op.Kind, fmt.Errorf("%w: %w", ErrUnreachable, err))
		}
		return s.opError(op.Kind, err)

	default:
		// Busy, malformed, oversized: the device (or payload) is at
		// fault but connectivity is not in question.
		return s.opError(op.Kind, err)
	}
}

// absorb updates the status cache when a response carries status
// fields. Explicit status reads always refresh; other operations
// refresh opportunistically when the device echoes status back.
func (s *Session) absorb(op Operation, resp *Response) {
	if resp.Object == nil || s.cache == nil {
		return
	}

	explicit := op.Kind == KindRefreshStatus || op.Kind == KindRefreshInfo
	if !explicit && !hasStatusFields(resp.Object) {
		return
	}

	s.cache.set(parseStatus(resp.Object))
}

func hasStatusFields(obj map[string]any) bool {
	for _, key := range []string{"battery", "battery_percent", "battery_level"} {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	return false
}

func (s *Session) recordContact() {
	s.stateMu.Lock()
	prev := s.state
	s.state = StateAwake
	s.lastContact = time.Now()
	s.lastErr = nil
	cb := s.onState
	s.stateMu.Unlock()

	if prev != StateAwake {
		s.logger.Info("device awake", "previous_state", prev.String())
		if cb != nil {
			cb(prev, StateAwake)
		}
	}
}

func (s *Session) setState(next State, cause error) {
	s.stateMu.Lock()
	prev := s.state
	s.state = next
	if cause != nil {
		s.lastErr = cause
	}
	cb := s.onState
	s.stateMu.Unlock()

	if prev != next {
		s.logger.Info("session state changed", "from", prev.String(), "to", next.String())
		if cb != nil {
			cb(prev, next)
		}
	}
}

// opError attaches diagnostic context to a failed operation.
func (s *Session) opError(kind Kind, err error) error {
	return &OpError{
		Kind: kind,
		Addr: s.cfg.Host,
		Time: time.Now(),
		Err:  err,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
