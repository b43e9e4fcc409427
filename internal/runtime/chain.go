package runtime

import (
	"fmt"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
)

// Next resumes the middleware chain. Each middleware receives its own
// continuation and must call it at most once; calling it again is a
// protocol violation that fails the whole message.
type Next func() error

// Middleware wraps one stage of the dispatch pipeline. Implementations may
// run code before and after next, skip next entirely to drop the message
// from their position onward, or call mc.Stop to end the pipeline for
// everyone downstream.
type Middleware func(mc *MessageContext, next Next) error

// chain runs a middleware slice over one message. cursor tracks the highest
// position entered so far; a continuation re-entering a position below it
// has been called twice.
type chain struct {
	mc        *MessageContext
	steps     []Middleware
	cursor    int
	violation *errspkg.DoubleContinuationError
}

func (c *chain) invoke(i int) error {
	if i < c.cursor {
		c.violation = &errspkg.DoubleContinuationError{Index: i}
		return c.violation
	}
	c.cursor = i + 1
	if i >= len(c.steps) || c.mc.IsStopped() {
		return nil
	}
	return c.steps[i](c.mc, func() error {
		return c.invoke(i + 1)
	})
}

// runChain executes steps over mc. proceed reports whether dispatch should
// continue past this chain: true unless the message was stopped. A returned
// error (middleware failure, panic, or double continuation) preempts
// proceed. A swallowed double continuation still surfaces here; the
// violation is recorded out of band so middleware cannot hide it by
// discarding the continuation's return value.
func runChain(mc *MessageContext, steps []Middleware) (proceed bool, err error) {
	c := &chain{mc: mc, steps: steps}
	err = func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("middleware panic: %v", r)
			}
		}()
		return c.invoke(0)
	}()
	if c.violation != nil {
		err = c.violation
	}
	if err != nil {
		return false, err
	}
	return !mc.IsStopped(), nil
}
