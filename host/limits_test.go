package host

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostguard-dev/hostguard/domain/entities"
	hgerrors "github.com/hostguard-dev/hostguard/domain/errors"
)

func testLimits(fuel uint64) entities.ResourceLimits {
	limits := entities.DefaultResourceLimits()
	limits.Fuel = fuel
	limits.ExecutionTimeout = 2 * time.Second
	return limits
}

func TestResourceLimiter_ResetRefillsBudget(t *testing.T) {
	l := NewResourceLimiter(testLimits(3))
	assert.Equal(t, int64(3), l.Remaining())

	l.remaining.Add(-2)
	assert.Equal(t, int64(1), l.Remaining())

	l.Reset()
	assert.Equal(t, int64(3), l.Remaining())
}

func TestResourceLimiter_TimeoutAndPages(t *testing.T) {
	limits := testLimits(1)
	limits.MemoryBytes = 2 * 1024 * 1024

	l := NewResourceLimiter(limits)
	assert.Equal(t, 2*time.Second, l.Timeout())
	assert.Equal(t, uint32(32), l.MemoryPages())
}

func TestBudgetListener_PanicsPastBudget(t *testing.T) {
	l := NewResourceLimiter(testLimits(2))
	listener := l.NewFunctionListener(nil)

	// Two entries fit the budget.
	listener.Before(context.Background(), nil, nil, nil, nil)
	listener.Before(context.Background(), nil, nil, nil, nil)

	require.PanicsWithError(t, errBudgetExhausted.Error(), func() {
		listener.Before(context.Background(), nil, nil, nil, nil)
	})
}

func TestBudgetListener_SharedAcrossFunctions(t *testing.T) {
	l := NewResourceLimiter(testLimits(1))

	first := l.NewFunctionListener(nil)
	second := l.NewFunctionListener(nil)

	first.Before(context.Background(), nil, nil, nil, nil)
	assert.Panics(t, func() {
		second.Before(context.Background(), nil, nil, nil, nil)
	})
}

func TestClassifyTrap(t *testing.T) {
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		kind hgerrors.ResourceKind
	}{
		{"budget sentinel", context.Background(), errBudgetExhausted, hgerrors.ResourceFuel},
		{"wrapped budget sentinel", context.Background(), fmt.Errorf("trap: %w", errBudgetExhausted), hgerrors.ResourceFuel},
		{"deadline exceeded", expired, errors.New("module closed"), hgerrors.ResourceTimeout},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyTrap(tc.ctx, tc.err)
			var exhausted *hgerrors.ResourceExhaustedError
			require.ErrorAs(t, err, &exhausted)
			assert.Equal(t, tc.kind, exhausted.Kind)
		})
	}
}

func TestClassifyTrap_UnrelatedError(t *testing.T) {
	assert.NoError(t, classifyTrap(context.Background(), errors.New("divide by zero")))
}

func TestClassifyMemoryTrap(t *testing.T) {
	err := classifyMemoryTrap(errors.New("memory[] min 512 pages (32 Mi) over limit of 256 pages (16 Mi)"))
	var exhausted *hgerrors.ResourceExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, hgerrors.ResourceMemory, exhausted.Kind)

	assert.NoError(t, classifyMemoryTrap(nil))
	assert.NoError(t, classifyMemoryTrap(errors.New("unreachable")))
}
