package entities

import "time"

// Host-wide defaults and hard maxima for per-plugin resource limits.
// A manifest may lower a limit or raise it up to the hard maximum;
// anything beyond the maximum is clamped, never trusted.
const (
	DefaultFuel uint64 = 1_000_000_000
	MaxFuel     uint64 = 10_000_000_000

	DefaultMemoryMB uint32 = 16
	MaxMemoryMB     uint32 = 256

	DefaultHTTPPerMinute = 10
	MaxHTTPPerMinute     = 600

	DefaultLogPerMinute = 100
	MaxLogPerMinute     = 6000

	DefaultExecutionTimeout = 30 * time.Second
	MaxExecutionTimeout     = 5 * time.Minute

	DefaultTableElements uint32 = 10_000
	MaxTableElements     uint32 = 100_000
)

// ResourceRequests holds the optional per-plugin limit overrides from a
// manifest. Nil fields fall back to host-wide defaults.
type ResourceRequests struct {
	MaxFuel                 *uint64 `json:"max_fuel,omitempty" yaml:"max_fuel,omitempty"`
	MaxMemoryMB             *uint32 `json:"max_memory_mb,omitempty" yaml:"max_memory_mb,omitempty"`
	MaxHTTPRequestsPerMin   *int    `json:"max_http_requests_per_minute,omitempty" yaml:"max_http_requests_per_minute,omitempty"`
	MaxLogMessagesPerMinute *int    `json:"max_log_messages_per_minute,omitempty" yaml:"max_log_messages_per_minute,omitempty"`
	MaxExecutionSeconds     *int    `json:"max_execution_seconds,omitempty" yaml:"max_execution_seconds,omitempty"`
	MaxTableElements        *uint32 `json:"max_table_elements,omitempty" yaml:"max_table_elements,omitempty"`
}

// ResourceLimits is the resolved, clamped limit set a sandbox enforces.
type ResourceLimits struct {
	Fuel             uint64
	MemoryBytes      uint64
	HTTPPerMinute    int
	LogPerMinute     int
	ExecutionTimeout time.Duration
	TableElements    uint32
}

// DefaultResourceLimits returns the host-wide default limit set.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		Fuel:             DefaultFuel,
		MemoryBytes:      uint64(DefaultMemoryMB) * 1024 * 1024,
		HTTPPerMinute:    DefaultHTTPPerMinute,
		LogPerMinute:     DefaultLogPerMinute,
		ExecutionTimeout: DefaultExecutionTimeout,
		TableElements:    DefaultTableElements,
	}
}

// Resolve applies the manifest's overrides on top of the defaults and
// clamps every field to its hard maximum. Zero and negative requests
// are ignored.
func (r ResourceRequests) Resolve() ResourceLimits {
	limits := DefaultResourceLimits()

	if r.MaxFuel != nil && *r.MaxFuel > 0 {
		limits.Fuel = min(*r.MaxFuel, MaxFuel)
	}
	if r.MaxMemoryMB != nil && *r.MaxMemoryMB > 0 {
		limits.MemoryBytes = uint64(min(*r.MaxMemoryMB, MaxMemoryMB)) * 1024 * 1024
	}
	if r.MaxHTTPRequestsPerMin != nil && *r.MaxHTTPRequestsPerMin > 0 {
		limits.HTTPPerMinute = min(*r.MaxHTTPRequestsPerMin, MaxHTTPPerMinute)
	}
	if r.MaxLogMessagesPerMinute != nil && *r.MaxLogMessagesPerMinute > 0 {
		limits.LogPerMinute = min(*r.MaxLogMessagesPerMinute, MaxLogPerMinute)
	}
	if r.MaxExecutionSeconds != nil && *r.MaxExecutionSeconds > 0 {
		timeout := time.Duration(*r.MaxExecutionSeconds) * time.Second
		limits.ExecutionTimeout = min(timeout, MaxExecutionTimeout)
	}
	if r.MaxTableElements != nil && *r.MaxTableElements > 0 {
		limits.TableElements = min(*r.MaxTableElements, MaxTableElements)
	}

	return limits
}

// MemoryPages returns the limit expressed in 64 KiB WASM pages.
func (l ResourceLimits) MemoryPages() uint32 {
	pages := l.MemoryBytes / 65536
	if pages == 0 {
		pages = 1
	}
	return uint32(pages)
}
