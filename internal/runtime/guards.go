package runtime

import (
	"fmt"

	loggingpkg "github.com/drblury/sockflow/internal/runtime/logging"
)

// ScratchKeyGuardDenialReason is where the dispatcher records the denial
// reason of the guard that rejected a message. afterMessage hooks can read
// it for auditing.
const ScratchKeyGuardDenialReason = "guard_denial_reason"

// Verdict is a guard's decision about one message.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Allow passes the message on to the next guard.
func Allow() Verdict {
	return Verdict{Allowed: true}
}

// Deny rejects the message with an optional reason for observability.
func Deny(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Guard decides whether a message may reach a route's handler. Guards run
// in registration order and the first denial wins. A panicking guard denies
// the message rather than erroring it.
type Guard func(mc *MessageContext) Verdict

// BoolGuard adapts a plain predicate into a Guard without a denial reason.
func BoolGuard(fn func(mc *MessageContext) bool) Guard {
	return func(mc *MessageContext) Verdict {
		if fn(mc) {
			return Allow()
		}
		return Deny("")
	}
}

// evalGuards runs guards in order and returns the first denial, or an
// allowing verdict when every guard passes.
func evalGuards(mc *MessageContext, guards []Guard) Verdict {
	for i, guard := range guards {
		verdict := evalGuard(mc, i, guard)
		if !verdict.Allowed {
			return verdict
		}
	}
	return Allow()
}

// evalGuard runs one guard, converting a panic into a denial.
func evalGuard(mc *MessageContext, index int, guard Guard) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			if mc.Logger != nil {
				mc.Logger.Error("guard panicked", fmt.Errorf("%v", r), loggingpkg.LogFields{
					"guard": index,
				})
			}
			verdict = Deny(fmt.Sprintf("guard %d panicked", index))
		}
	}()
	return guard(mc)
}
