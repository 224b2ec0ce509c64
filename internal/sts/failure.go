//go:generate go run golang.org/x/tools/cmd/stringer -type=Kind -linecomment=true

package sts

import (
	"fmt"
)

// Kind classifies the reason a policy request failed. Its string form is the message sent to the
// client.
type Kind int

const (
	// HostMissing means no domain was supplied.
	HostMissing Kind = iota // HOST MISSING
	// HostInvalid means the domain is not a fully-qualified domain name.
	HostInvalid // HOST INVALID
	// TXTMissing means the TXT lookup failed or did not return exactly one record.
	TXTMissing // EMPTY OR MISSING TXT RECORD
	// TXTMalformed means the TXT record has no content.
	TXTMalformed // MALFORMED TXT RR
	// TXTInvalid means the TXT record lacks a confirmed version or an id.
	TXTInvalid // INVALID TXT RR
	// ClientClosed means the client went away before the policy was fetched.
	ClientClosed // CLIENT CONNECTION CLOSED
	// HTTPFailed means the policy document could not be fetched.
	HTTPFailed // HTTP LOOKUP FAILED
)

// Failure is the terminal result of a policy request that did not produce a policy.
type Failure struct {
	Kind Kind
	// Err is the underlying cause, if any. It is logged but never sent to the client.
	Err error
}

// Error renders the failure kind along with its cause.
func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("sts: %s", f.Kind)
	}

	return fmt.Sprintf("sts: %s: err=%v", f.Kind, f.Err)
}

// Unwrap exposes the underlying cause.
func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(kind Kind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}
