// Package errors provides the typed error taxonomy of the mediation
// layer. Every guard failure is a local, synchronously returned value;
// none of these ever propagate as a process-level fault.
package errors

import "fmt"

// NetworkReason identifies which step of the network guard pipeline
// rejected a request.
type NetworkReason string

const (
	ReasonInvalidURL       NetworkReason = "invalid_url"
	ReasonDisallowedScheme NetworkReason = "disallowed_scheme"
	ReasonNetworkDenied    NetworkReason = "network_denied"
	ReasonHostNotAllowed   NetworkReason = "host_not_allowed"
	ReasonPrivateAddress   NetworkReason = "private_address_denied"
	ReasonRateLimited      NetworkReason = "rate_limited"
	ReasonBodyTooLarge     NetworkReason = "body_too_large"
)

// NetworkError is a network guard denial.
type NetworkError struct {
	Reason NetworkReason
	Host   string
	Detail string
}

func (e *NetworkError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("network request denied (%s): %s: %s", e.Reason, e.Host, e.Detail)
	}
	return fmt.Sprintf("network request denied (%s): %s", e.Reason, e.Detail)
}

// FSReason identifies which filesystem guard check rejected an access.
type FSReason string

const (
	ReasonCannotResolve  FSReason = "cannot_resolve"
	ReasonOutsideSandbox FSReason = "outside_sandbox"
	ReasonSymlinkEscape  FSReason = "symlink_escape"
	ReasonFileTooLarge   FSReason = "file_too_large"
	ReasonFSDenied       FSReason = "fs_denied"
)

// FileSystemError is a filesystem guard denial.
type FileSystemError struct {
	Reason FSReason
	Path   string
	Err    error
}

func (e *FileSystemError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("file access denied (%s): %s: %v", e.Reason, e.Path, e.Err)
	}
	return fmt.Sprintf("file access denied (%s): %s", e.Reason, e.Path)
}

func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// ResourceKind distinguishes, in the audit trail, which specific limit
// terminated a guest invocation. Callers see all three uniformly as
// resource exhaustion.
type ResourceKind string

const (
	ResourceFuel    ResourceKind = "instruction_budget"
	ResourceMemory  ResourceKind = "memory"
	ResourceTimeout ResourceKind = "timeout"
)

// ResourceExhaustedError reports a terminated guest invocation.
type ResourceExhaustedError struct {
	Kind   ResourceKind
	Detail string
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("resource exhausted (%s): %s", e.Kind, e.Detail)
}

// LifecycleReason identifies an install or approval failure.
type LifecycleReason string

const (
	ReasonManifestInvalid       LifecycleReason = "manifest_invalid"
	ReasonSignatureInvalid      LifecycleReason = "signature_invalid"
	ReasonPackageTooLarge       LifecycleReason = "package_too_large"
	ReasonPermissionNotApproved LifecycleReason = "permission_not_approved"
)

// LifecycleError is an install-time or approval-time rejection.
type LifecycleError struct {
	Reason LifecycleReason
	Detail string
	Err    error
}

func (e *LifecycleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}
