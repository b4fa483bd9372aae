package host

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"

	"github.com/hostguard-dev/hostguard/domain/entities"
	hgerrors "github.com/hostguard-dev/hostguard/domain/errors"
)

// errBudgetExhausted is the sentinel raised from the function listener
// when a guest spends its instruction budget. It unwinds the guest
// stack as a wazero trap and is recovered in Executor.Invoke.
var errBudgetExhausted = errors.New("instruction budget exhausted")

// ResourceLimiter enforces the per-invocation resource ceilings of a
// single plugin instance. The instruction budget is charged one unit
// per guest function entry; a guest that never calls out of a hot loop
// is caught by the wall-clock teardown instead.
type ResourceLimiter struct {
	limits    entities.ResourceLimits
	remaining atomic.Int64
}

// NewResourceLimiter returns a limiter primed with a full budget.
func NewResourceLimiter(limits entities.ResourceLimits) *ResourceLimiter {
	l := &ResourceLimiter{limits: limits}
	l.Reset()
	return l
}

// Reset refills the instruction budget. Called at the start of every
// invocation so one call cannot starve the next.
func (l *ResourceLimiter) Reset() {
	l.remaining.Store(int64(l.limits.Fuel))
}

// Remaining reports the unspent budget of the current invocation.
func (l *ResourceLimiter) Remaining() int64 {
	return l.remaining.Load()
}

// Timeout is the wall-clock ceiling for a single invocation.
func (l *ResourceLimiter) Timeout() time.Duration {
	return l.limits.ExecutionTimeout
}

// MemoryPages is the linear memory ceiling in 64KiB WebAssembly pages.
func (l *ResourceLimiter) MemoryPages() uint32 {
	return l.limits.MemoryPages()
}

// NewFunctionListener implements experimental.FunctionListenerFactory.
// Every guest function shares the same listener so the budget is
// global to the invocation, not per function.
func (l *ResourceLimiter) NewFunctionListener(api.FunctionDefinition) experimental.FunctionListener {
	return budgetListener{limiter: l}
}

type budgetListener struct {
	limiter *ResourceLimiter
}

func (b budgetListener) Before(_ context.Context, _ api.Module, _ api.FunctionDefinition, _ []uint64, _ experimental.StackIterator) {
	if b.limiter.remaining.Add(-1) < 0 {
		panic(errBudgetExhausted)
	}
}

func (b budgetListener) After(context.Context, api.Module, api.FunctionDefinition, []uint64) {}

func (b budgetListener) Abort(context.Context, api.Module, api.FunctionDefinition, error) {}

// classifyTrap maps a guest trap to the typed exhaustion error the
// caller can inspect, or returns nil when the trap is unrelated to
// resource limits.
func classifyTrap(ctx context.Context, err error) error {
	if errors.Is(err, errBudgetExhausted) {
		return &hgerrors.ResourceExhaustedError{Kind: hgerrors.ResourceFuel, Detail: "instruction budget spent"}
	}
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &hgerrors.ResourceExhaustedError{Kind: hgerrors.ResourceTimeout, Detail: "execution deadline exceeded"}
	}
	return nil
}

// classifyMemoryTrap recognizes the runtime's rejection of a module
// whose memory declaration breaches the configured page ceiling. The
// message is wazero's ("min N pages ... over limit of M pages"); there
// is no typed error to unwrap.
func classifyMemoryTrap(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "pages") && strings.Contains(msg, "over limit of") {
		return &hgerrors.ResourceExhaustedError{Kind: hgerrors.ResourceMemory, Detail: msg}
	}
	return nil
}
