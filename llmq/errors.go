package llmq

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies why a commitment was rejected.
type ErrorKind int

const (
	// malformed sizes, versions, types or null-state
	StructuralError ErrorKind = iota + 1
	// not enough signers or valid members
	ThresholdError
	// invalid key or signature
	CryptoError
	// quorum block unknown or not on the active chain. Never the peer's fault.
	ContextError
)

func (k ErrorKind) String() string {
	switch k {
	case StructuralError:
		return "structural"
	case ThresholdError:
		return "threshold"
	case CryptoError:
		return "crypto"
	case ContextError:
		return "context"
	default:
		return "unknown"
	}
}

// VerifyError is returned by FinalCommitment.Verify.
type VerifyError struct {
	Kind   ErrorKind
	Reason string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("invalid final commitment (%v): %s", e.Kind, e.Reason)
}

func verifyErrorf(kind ErrorKind, format string, args ...interface{}) error {
	return &VerifyError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a (possibly wrapped) VerifyError, or 0.
func KindOf(err error) ErrorKind {
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return 0
}

// reject codes of blocks and commitment transactions
const (
	RejectPayload         = "bad-qc-payload"
	RejectVersion         = "bad-qc-version"
	RejectType            = "bad-qc-type"
	RejectInvalidSizes    = "bad-qc-invalid-sizes"
	RejectHeight          = "bad-qc-height"
	RejectQuorumHash      = "bad-qc-quorum-hash"
	RejectInvalid         = "bad-qc-invalid"
	RejectDuplicate       = "bad-qc-dup"
	RejectNotAllowed      = "bad-qc-not-allowed"
	RejectMissing         = "bad-qc-missing"
	RejectNullQuorumHash  = "bad-qc-null-quorumhash"
	RejectBlockQuorumHash = "bad-qc-block"
)

// ValidationError rejects a block or a commitment transaction. DoS is the
// misbehavior score for whoever sent it.
type ValidationError struct {
	Code string
	DoS  int

	cause error
}

func reject(code string, cause error) *ValidationError {
	return &ValidationError{Code: code, DoS: 100, cause: cause}
}

func (e *ValidationError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return e.Code
}

func (e *ValidationError) Unwrap() error {
	return e.cause
}

// RejectCode returns the machine readable code of err, or "" when err is not
// a ValidationError.
func RejectCode(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// MisbehaviorError is returned for a bad QFCOMMITMENT message. Score 0 means
// the message is dropped without penalizing the peer.
type MisbehaviorError struct {
	Score  int
	Reason string
}

func (e *MisbehaviorError) Error() string {
	return fmt.Sprintf("misbehavior(%d): %s", e.Score, e.Reason)
}

func misbehaving(score int, format string, args ...interface{}) *MisbehaviorError {
	return &MisbehaviorError{Score: score, Reason: fmt.Sprintf(format, args...)}
}
