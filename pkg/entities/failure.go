package entities

import (
	"errors"
	"fmt"
)

type FailureKind string

const (
	// FailureKindValidation covers bad input: oversized or unsupported images
	FailureKindValidation FailureKind = "validation"

	// FailureKindNetwork covers transport problems on any fetch or upload
	FailureKindNetwork FailureKind = "network"

	// FailureKindRemoteRejected means the provider reported the job failed
	FailureKindRemoteRejected FailureKind = "remote_rejected"

	// FailureKindQuotaExceeded means the provider refused for rate or budget reasons
	FailureKindQuotaExceeded FailureKind = "quota_exceeded"

	// FailureKindTimeout means the client-side polling bound elapsed
	FailureKindTimeout FailureKind = "timeout"
)

// Failure is an error with a kind the message handler can map to a
// human-readable reply. No failure triggers an automatic retry.
type Failure struct {
	Kind   FailureKind
	Reason string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

func NewFailure(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{
		Kind:   kind,
		Reason: fmt.Sprintf(format, args...),
	}
}

// AsFailure unwraps err into a Failure if there is one in the chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
