package runtime

import (
	"fmt"
	"sync"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/sockflow/internal/runtime/logging"
)

// Lifecycle points a hook can attach to. beforeMessage and afterMessage run
// per message; afterMessage runs exactly once for every message on every
// terminal path, including rejections and build failures.
const (
	HookBeforeStart   = "beforeStart"
	HookAfterStart    = "afterStart"
	HookBeforeMessage = "beforeMessage"
	HookAfterMessage  = "afterMessage"
	HookOnError       = "onError"
)

// LifecycleHook observes service start.
type LifecycleHook func(s *Service)

// MessageHook observes one message entering or leaving the pipeline.
type MessageHook func(mc *MessageContext)

// ErrorHook observes a dispatch error before the error handler runs. It
// receives the original error, not the stage-wrapped form used for
// classification.
type ErrorHook func(mc *MessageContext, err error)

// hookSet stores hook callbacks by lifecycle point. Hooks are observers:
// their panics are contained and logged, never surfaced into dispatch.
type hookSet struct {
	mu     sync.RWMutex
	logger loggingpkg.ServiceLogger

	beforeStart   []LifecycleHook
	afterStart    []LifecycleHook
	beforeMessage []MessageHook
	afterMessage  []MessageHook
	onError       []ErrorHook
}

func newHookSet(logger loggingpkg.ServiceLogger) *hookSet {
	return &hookSet{logger: logger}
}

// register attaches callback to the named lifecycle point. The callback's
// shape must match the point; mismatches and unknown names are rejected at
// registration.
func (hs *hookSet) register(name string, callback any) error {
	if callback == nil {
		return errspkg.ErrCallbackRequired
	}

	hs.mu.Lock()
	defer hs.mu.Unlock()

	switch name {
	case HookBeforeStart:
		hook, err := asLifecycleHook(callback)
		if err != nil {
			return err
		}
		hs.beforeStart = append(hs.beforeStart, hook)
	case HookAfterStart:
		hook, err := asLifecycleHook(callback)
		if err != nil {
			return err
		}
		hs.afterStart = append(hs.afterStart, hook)
	case HookBeforeMessage:
		hook, err := asMessageHook(callback)
		if err != nil {
			return err
		}
		hs.beforeMessage = append(hs.beforeMessage, hook)
	case HookAfterMessage:
		hook, err := asMessageHook(callback)
		if err != nil {
			return err
		}
		hs.afterMessage = append(hs.afterMessage, hook)
	case HookOnError:
		hook, err := asErrorHook(callback)
		if err != nil {
			return err
		}
		hs.onError = append(hs.onError, hook)
	default:
		return &errspkg.UnknownHookError{Name: name}
	}
	return nil
}

func asLifecycleHook(callback any) (LifecycleHook, error) {
	switch fn := callback.(type) {
	case LifecycleHook:
		return fn, nil
	case func(*Service):
		return fn, nil
	default:
		return nil, fmt.Errorf("%w: %T", errspkg.ErrInvalidHookShape, callback)
	}
}

func asMessageHook(callback any) (MessageHook, error) {
	switch fn := callback.(type) {
	case MessageHook:
		return fn, nil
	case func(*MessageContext):
		return fn, nil
	default:
		return nil, fmt.Errorf("%w: %T", errspkg.ErrInvalidHookShape, callback)
	}
}

func asErrorHook(callback any) (ErrorHook, error) {
	switch fn := callback.(type) {
	case ErrorHook:
		return fn, nil
	case func(*MessageContext, error):
		return fn, nil
	default:
		return nil, fmt.Errorf("%w: %T", errspkg.ErrInvalidHookShape, callback)
	}
}

func (hs *hookSet) runBeforeStart(s *Service) {
	hs.mu.RLock()
	hooks := hs.beforeStart
	hs.mu.RUnlock()
	for _, hook := range hooks {
		hs.safeRun(HookBeforeStart, func() { hook(s) })
	}
}

func (hs *hookSet) runAfterStart(s *Service) {
	hs.mu.RLock()
	hooks := hs.afterStart
	hs.mu.RUnlock()
	for _, hook := range hooks {
		hs.safeRun(HookAfterStart, func() { hook(s) })
	}
}

func (hs *hookSet) runBeforeMessage(mc *MessageContext) {
	hs.mu.RLock()
	hooks := hs.beforeMessage
	hs.mu.RUnlock()
	for _, hook := range hooks {
		hs.safeRun(HookBeforeMessage, func() { hook(mc) })
	}
}

func (hs *hookSet) runAfterMessage(mc *MessageContext) {
	hs.mu.RLock()
	hooks := hs.afterMessage
	hs.mu.RUnlock()
	for _, hook := range hooks {
		hs.safeRun(HookAfterMessage, func() { hook(mc) })
	}
}

func (hs *hookSet) runOnError(mc *MessageContext, err error) {
	hs.mu.RLock()
	hooks := hs.onError
	hs.mu.RUnlock()
	for _, hook := range hooks {
		hs.safeRun(HookOnError, func() { hook(mc, err) })
	}
}

// safeRun contains a hook panic so one misbehaving observer cannot take
// down the pipeline or suppress later hooks.
func (hs *hookSet) safeRun(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if hs.logger != nil {
				hs.logger.Error("hook panicked", fmt.Errorf("%v", r), loggingpkg.LogFields{
					"hook": name,
				})
			}
		}
	}()
	fn()
}
