// Package verifyflow drives the client side of a scan: verify the code, count down,
// then navigate to the destination.
//
//	Loading -> Valid -> CountingDown -> Redirecting
//	Loading -> Invalid
package verifyflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"qrtrack/internal/logging"
)

type State int

const (
	Loading State = iota
	Valid
	Invalid
	CountingDown
	Redirecting
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case CountingDown:
		return "counting_down"
	case Redirecting:
		return "redirecting"
	default:
		return "unknown"
	}
}

const (
	DefaultCountdown = 5
	// DefaultInvalidMessage is shown when the server gives no reason.
	DefaultInvalidMessage = "This QR code is invalid or no longer active."
)

var (
	// ErrInvalidCode is returned by Run when the code did not verify.
	ErrInvalidCode = errors.New("invalid QR code")
	ErrAlreadyRun  = errors.New("verifyflow: Run called more than once")
)

// Snapshot is the observable state passed to change listeners.
type Snapshot struct {
	State       State
	Remaining   int
	Message     string
	Destination string
}

type Option func(*Flow)

// WithCountdown sets the countdown length in ticks. 0 redirects right after verify.
func WithCountdown(n int) Option {
	return func(f *Flow) {
		if n >= 0 {
			f.countdown = n
		}
	}
}

// WithTick sets the countdown step, one second by default.
func WithTick(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.tick = d
		}
	}
}

// WithOnChange registers a listener called after every state or countdown change.
func WithOnChange(fn func(Snapshot)) Option {
	return func(f *Flow) { f.onChange = fn }
}

type Flow struct {
	client    Client
	codeID    string
	countdown int
	tick      time.Duration
	onChange  func(Snapshot)

	mu          sync.Mutex
	state       State
	remaining   int
	message     string
	destination string

	goNow     chan struct{}
	goNowOnce sync.Once
	started   atomic.Bool
}

func New(client Client, codeID string, opts ...Option) *Flow {
	f := &Flow{
		client:    client,
		codeID:    codeID,
		countdown: DefaultCountdown,
		tick:      time.Second,
		state:     Loading,
		goNow:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remaining
}

func (f *Flow) Message() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.message
}

// GoNow skips the rest of the countdown. It is safe to call any number of times and
// has no effect once the flow is Invalid.
func (f *Flow) GoNow() {
	f.goNowOnce.Do(func() { close(f.goNow) })
}

func (f *Flow) update(fn func()) {
	f.mu.Lock()
	fn()
	snap := Snapshot{State: f.state, Remaining: f.remaining, Message: f.message, Destination: f.destination}
	f.mu.Unlock()

	if f.onChange != nil {
		f.onChange(snap)
	}
}

// Run verifies the code and, if it is valid, counts down and calls navigate exactly
// once with the destination. Cancelling ctx before the countdown ends stops every
// timer and navigate is never called. The scan is logged concurrently with the
// countdown; its failure does not affect the redirect. Run returns once the scan log
// call has finished or ctx is done.
func (f *Flow) Run(ctx context.Context, navigate func(string)) error {
	if !f.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	f.update(func() { f.state = Loading })

	v, err := f.client.Verify(ctx, f.codeID)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil || v == nil || !v.Valid || v.QRCode == nil {
		message := DefaultInvalidMessage
		if err == nil && v != nil && v.Message != "" {
			message = v.Message
		}
		if err != nil {
			logging.Debug().Err(err).Str("code_id", f.codeID).Msg("Verify call failed")
		}
		f.update(func() {
			f.state = Invalid
			f.message = message
		})
		return ErrInvalidCode
	}

	destination := v.QRCode.WebsiteURL
	f.update(func() {
		f.state = Valid
		f.destination = destination
	})

	logged := make(chan struct{})
	go func() {
		defer close(logged)
		if err := f.client.LogScan(ctx, f.codeID); err != nil && ctx.Err() == nil {
			logging.Warn().Err(err).Str("code_id", f.codeID).Msg("Failed to log scan")
		}
	}()

	if err := f.countDown(ctx); err != nil {
		return err
	}

	f.update(func() { f.state = Redirecting })
	navigate(destination)

	select {
	case <-logged:
	case <-ctx.Done():
	}
	return nil
}

func (f *Flow) countDown(ctx context.Context) error {
	f.update(func() {
		f.state = CountingDown
		f.remaining = f.countdown
	})
	if f.countdown == 0 {
		return nil
	}

	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.goNow:
			f.update(func() { f.remaining = 0 })
			return nil
		case <-ticker.C:
			done := false
			f.update(func() {
				f.remaining--
				done = f.remaining <= 0
			})
			if done {
				return nil
			}
		}
	}
}
