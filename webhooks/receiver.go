package webhooks

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-marketsync/core"
)

const defaultHandlerTimeout = 10 * time.Second

// Verifier checks the push signature against the raw body.
type Verifier interface {
	Verify(shopID int64, body []byte, signature string) bool
}

type Handler interface {
	Handle(ctx context.Context, event Envelope) error
}

type HandlerFunc func(ctx context.Context, event Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, event Envelope) error {
	return f(ctx, event)
}

// Ack is what the transport reports back to the caller. It never carries an
// error: the outcome is on the log entry.
type Ack struct {
	LogID  string
	Code   int
	Status core.WebhookStatus
}

type Receiver struct {
	Verifier Verifier
	Log      LogStore
	Timeout  time.Duration
	Observer *core.Observer
	Now      func() time.Time

	mu       sync.RWMutex
	handlers map[int]Handler
}

func NewReceiver(verifier Verifier, log LogStore) *Receiver {
	return &Receiver{
		Verifier: verifier,
		Log:      log,
		Timeout:  defaultHandlerTimeout,
		Observer: core.NewObserver(nil, nil),
		Now: func() time.Time {
			return time.Now().UTC()
		},
		handlers: map[int]Handler{},
	}
}

func (r *Receiver) Register(code int, handler Handler) error {
	if r == nil {
		return fmt.Errorf("webhooks: receiver is nil")
	}
	if code <= 0 || handler == nil {
		return fmt.Errorf("webhooks: push code and handler are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = map[int]Handler{}
	}
	if _, exists := r.handlers[code]; exists {
		return fmt.Errorf("webhooks: handler for code %d already registered", code)
	}
	r.handlers[code] = handler
	return nil
}

func (r *Receiver) handler(code int) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[code]
	return handler, ok
}

// Receive logs, verifies, dedupes and dispatches one push. It always
// returns an acknowledgement.
func (r *Receiver) Receive(ctx context.Context, body []byte, signature string) (ack Ack) {
	startedAt := time.Now()
	var outcome error
	fields := map[string]any{}
	defer func() {
		fields["status"] = string(ack.Status)
		fields["code"] = ack.Code
		r.Observer.Observe(ctx, startedAt, "webhook", outcome, fields)
	}()

	env, parseErr := ParseEnvelope(body, strings.TrimSpace(signature))
	fields["shop_id"] = env.ShopID
	ack.Code = env.Code

	verified := parseErr == nil && r.Verifier != nil && r.Verifier.Verify(env.ShopID, env.Raw, env.Signature)
	entry, logErr := r.Log.Append(ctx, core.WebhookLogEntry{
		Code:       env.Code,
		ShopID:     env.ShopID,
		Payload:    string(body),
		Signature:  env.Signature,
		Verified:   verified,
		Status:     core.WebhookStatusReceived,
		Digest:     env.Digest,
		ReceivedAt: r.now(),
	})
	if logErr != nil {
		r.Observer.Error(ctx, "webhook log append failed", map[string]any{
			"shop_id": env.ShopID,
			"code":    env.Code,
			"error":   logErr.Error(),
		})
	}
	ack.LogID = entry.ID

	complete := func(status core.WebhookStatus, err error) Ack {
		ack.Status = status
		message := ""
		if err != nil {
			message = err.Error()
		}
		if entry.ID != "" {
			if completeErr := r.Log.Complete(context.WithoutCancel(ctx), entry.ID, status, message, r.now()); completeErr != nil {
				r.Observer.Error(ctx, "webhook log completion failed", map[string]any{
					"log_id": entry.ID,
					"error":  completeErr.Error(),
				})
			}
		}
		return ack
	}

	if parseErr != nil {
		outcome = parseErr
		return complete(core.WebhookStatusFailed, parseErr)
	}
	if !verified {
		r.Observer.Warn(ctx, "webhook signature not verified", map[string]any{
			"shop_id": env.ShopID,
			"code":    env.Code,
		})
		return complete(core.WebhookStatusUnverified, nil)
	}

	duplicate, err := r.Log.ProcessedDigest(ctx, env.Digest)
	if err != nil {
		r.Observer.Warn(ctx, "webhook replay check failed", map[string]any{"error": err.Error()})
	} else if duplicate {
		return complete(core.WebhookStatusDuplicate, nil)
	}

	handler, ok := r.handler(env.Code)
	if !ok {
		return complete(core.WebhookStatusIgnored, nil)
	}
	if err := r.dispatch(ctx, handler, env); err != nil {
		outcome = err
		return complete(core.WebhookStatusFailed, err)
	}
	return complete(core.WebhookStatusSuccess, nil)
}

func (r *Receiver) dispatch(ctx context.Context, handler Handler, env Envelope) (err error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultHandlerTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = core.NewError(core.ErrorInternal, fmt.Sprintf("webhooks: handler for code %d panicked: %v", env.Code, recovered), map[string]any{
				"stack": string(debug.Stack()),
			})
		}
	}()
	return handler.Handle(ctx, env)
}

func (r *Receiver) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
