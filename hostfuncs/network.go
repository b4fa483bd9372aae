package hostfuncs

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hostguard-dev/hostguard/domain/entities"
	domainerrors "github.com/hostguard-dev/hostguard/domain/errors"
	"github.com/hostguard-dev/hostguard/sandbox"
)

// Network guard ceilings. The request body and response caps are fixed
// host policy, not manifest-tunable.
const (
	MaxRequestBodySize  = 1 * 1024 * 1024
	MaxResponseBodySize = 4 * 1024 * 1024
	NetworkCallTimeout  = 30 * time.Second
)

// FetchRequest is the guest wire form of an outbound HTTP request.
type FetchRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

// FetchResponse is the guest wire form of the result.
type FetchResponse struct {
	StatusCode    int                 `json:"status_code,omitempty"`
	Headers       map[string][]string `json:"headers,omitempty"`
	Body          []byte              `json:"body,omitempty"`
	BodyTruncated bool                `json:"body_truncated,omitempty"`
	Error         *ErrorResponse      `json:"error,omitempty"`
}

// Resolver resolves a hostname once; the guard pins the first returned
// address for the single request.
type Resolver func(ctx context.Context, host string) ([]net.IP, error)

// NetworkGuard validates outbound HTTP requests against the sandbox
// before any network I/O happens. The validation pipeline is strictly
// ordered; the first failing step aborts the request.
type NetworkGuard struct {
	sb            *sandbox.Sandbox
	resolver      Resolver
	transport     http.RoundTripper
	timeout       time.Duration
	maxBody       int64
	maxResponse   int64
	checkReserved bool
}

// NetworkGuardOption configures a NetworkGuard.
type NetworkGuardOption func(*NetworkGuard)

// WithResolver overrides DNS resolution. For tests.
func WithResolver(r Resolver) NetworkGuardOption {
	return func(g *NetworkGuard) {
		g.resolver = r
	}
}

// WithTransport replaces the pinned transport entirely. For tests; the
// production transport dials the pinned address directly.
func WithTransport(rt http.RoundTripper) NetworkGuardOption {
	return func(g *NetworkGuard) {
		g.transport = rt
	}
}

// WithRequestTimeout overrides the per-call timeout.
func WithRequestTimeout(d time.Duration) NetworkGuardOption {
	return func(g *NetworkGuard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithReservedAddressCheck disables the private/reserved range check.
// Only for tests that must target loopback listeners.
func WithReservedAddressCheck(enabled bool) NetworkGuardOption {
	return func(g *NetworkGuard) {
		g.checkReserved = enabled
	}
}

// NewNetworkGuard builds the guard for one plugin sandbox.
func NewNetworkGuard(sb *sandbox.Sandbox, opts ...NetworkGuardOption) *NetworkGuard {
	g := &NetworkGuard{
		sb:            sb,
		timeout:       NetworkCallTimeout,
		maxBody:       MaxRequestBodySize,
		maxResponse:   MaxResponseBodySize,
		checkReserved: true,
		resolver: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, len(addrs))
			for i, a := range addrs {
				ips[i] = a.IP
			}
			return ips, nil
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handler returns the wire-form handler for registry registration.
func (g *NetworkGuard) Handler() ByteHandler {
	return NewJSONHandler(g.Fetch)
}

// Fetch runs the full validation pipeline and, on success, the request
// itself. Denials come back as structured errors, never traps.
func (g *NetworkGuard) Fetch(ctx context.Context, req FetchRequest) FetchResponse {
	summary := strings.ToUpper(orDefault(req.Method, "GET")) + " " + req.URL

	guardErr, pinned := g.validate(ctx, req)
	if guardErr != nil {
		SetAuditOutcome(ctx, entities.AuditDenied, string(guardErr.Reason), summary)
		return FetchResponse{Error: denied(guardErr)}
	}

	resp := g.execute(ctx, req, pinned)
	if resp.Error != nil {
		SetAuditOutcome(ctx, entities.AuditError, resp.Error.Code, summary)
	} else {
		SetAuditOutcome(ctx, entities.AuditAllowed, "", fmt.Sprintf("%s -> %d (%d bytes)", summary, resp.StatusCode, len(resp.Body)))
	}
	return resp
}

// validate runs pipeline steps 1-6: parse, scheme, allowlist, resolve
// and pin, rate limit, body size. Returns the pinned address on
// success. No network I/O beyond the single DNS lookup happens here.
func (g *NetworkGuard) validate(ctx context.Context, req FetchRequest) (*domainerrors.NetworkError, net.IP) {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return &domainerrors.NetworkError{Reason: domainerrors.ReasonInvalidURL, Detail: "malformed URL"}, nil
	}

	// Scheme before host: no-authority schemes like file: parse with an
	// empty host and must still classify by their scheme.
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return &domainerrors.NetworkError{Reason: domainerrors.ReasonDisallowedScheme, Detail: "scheme " + scheme + " not permitted"}, nil
	}

	if parsed.Host == "" {
		return &domainerrors.NetworkError{Reason: domainerrors.ReasonInvalidURL, Detail: "malformed URL"}, nil
	}

	host := parsed.Hostname()
	allowlist := g.sb.Allowlist()
	if allowlist.Empty() {
		return &domainerrors.NetworkError{Reason: domainerrors.ReasonNetworkDenied, Host: host, Detail: "plugin has no network permission"}, nil
	}
	if !allowlist.Allows(host) {
		return &domainerrors.NetworkError{Reason: domainerrors.ReasonHostNotAllowed, Host: host, Detail: "host not in allowlist"}, nil
	}

	// Resolve once and pin the address for this single request so a
	// rebinding DNS answer cannot re-target it after validation.
	pinned, netErr := g.resolvePinned(ctx, host)
	if netErr != nil {
		return netErr, nil
	}

	if !g.sb.HTTPCounter().TryIncrement() {
		return &domainerrors.NetworkError{Reason: domainerrors.ReasonRateLimited, Host: host, Detail: "request rate limit reached"}, nil
	}

	if int64(len(req.Body)) > g.maxBody {
		g.sb.HTTPCounter().Release()
		return &domainerrors.NetworkError{Reason: domainerrors.ReasonBodyTooLarge, Host: host, Detail: fmt.Sprintf("body %d bytes exceeds %d", len(req.Body), g.maxBody)}, nil
	}

	return nil, pinned
}

func (g *NetworkGuard) resolvePinned(ctx context.Context, host string) (net.IP, *domainerrors.NetworkError) {
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := g.resolver(ctx, host)
		if err != nil || len(ips) == 0 {
			return nil, &domainerrors.NetworkError{Reason: domainerrors.ReasonInvalidURL, Host: host, Detail: "host did not resolve"}
		}
		ip = ips[0]
	}

	if g.checkReserved {
		if reason, ok := CheckPublicAddress(ip); !ok {
			return nil, &domainerrors.NetworkError{Reason: domainerrors.ReasonPrivateAddress, Host: host, Detail: reason + ": " + ip.String()}
		}
	}
	return ip, nil
}

// execute performs the validated request over a transport pinned to
// the resolved address, with redirects disabled: a redirect could
// re-target a private address after validation.
func (g *NetworkGuard) execute(ctx context.Context, req FetchRequest, pinned net.IP) FetchResponse {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(orDefault(req.Method, "GET")), req.URL, body)
	if err != nil {
		g.sb.HTTPCounter().Release()
		return FetchResponse{Error: ptr(NewValidationError(err.Error()))}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	client := &http.Client{
		Transport: g.pinnedTransport(httpReq.URL, pinned),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		// An invocation torn down mid-flight gives its rate slot back.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
			errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
			g.sb.HTTPCounter().Release()
			return FetchResponse{Error: ptr(ErrorResponse{Error: "DENIED", Code: "timeout", Message: err.Error()})}
		}
		return FetchResponse{Error: ptr(NewInternalError(err.Error()))}
	}
	defer func() { _ = resp.Body.Close() }()

	// Cap the response read; anything beyond the cap is silently dropped.
	data, err := io.ReadAll(io.LimitReader(resp.Body, g.maxResponse+1))
	if err != nil {
		return FetchResponse{StatusCode: resp.StatusCode, Error: ptr(NewInternalError("read response: " + err.Error()))}
	}
	truncated := false
	if int64(len(data)) > g.maxResponse {
		data = data[:g.maxResponse]
		truncated = true
	}

	return FetchResponse{
		StatusCode:    resp.StatusCode,
		Headers:       resp.Header,
		Body:          data,
		BodyTruncated: truncated,
	}
}

// pinnedTransport dials the resolved address directly while preserving
// the original hostname for TLS SNI and certificate verification.
func (g *NetworkGuard) pinnedTransport(u *url.URL, pinned net.IP) http.RoundTripper {
	if g.transport != nil {
		return g.transport
	}

	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	target := net.JoinHostPort(pinned.String(), port)

	transport := &http.Transport{
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, network, target)
		},
	}
	if u.Scheme == "https" {
		transport.TLSClientConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: u.Hostname(),
		}
	}
	return transport
}

func denied(err *domainerrors.NetworkError) *ErrorResponse {
	return ptr(NewDeniedError(string(err.Reason), err.Error()))
}

func ptr[T any](v T) *T { return &v }

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
