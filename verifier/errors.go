package verifier

import "fmt"

// Kind classifies failures by how callers should react.
type Kind int

const (
	// KindInput: missing or malformed request; fix the input, never retry as-is.
	KindInput Kind = iota
	// KindConfig: verifying key or signer keypair not loaded; operator action required.
	KindConfig
	// KindReplay: nullifier already consumed for this scope; permanent for that identity+scope.
	KindReplay
	// KindCrypto: proof undecodable, bound to stale state, or cryptographically invalid.
	KindCrypto
	// KindInternal: unexpected failure (storage I/O); may be transient, safe to retry.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "InputError"
	case KindConfig:
		return "ConfigError"
	case KindReplay:
		return "ReplayError"
	case KindCrypto:
		return "CryptoVerificationError"
	default:
		return "InternalError"
	}
}

// Error carries a stable machine-readable code alongside the message.
type Error struct {
	Kind  Kind
	Code  string
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.Code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Code, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

func errInput(code, format string, args ...any) *Error {
	return &Error{Kind: KindInput, Code: code, msg: fmt.Sprintf(format, args...)}
}

func errConfig(code, format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Code: code, msg: fmt.Sprintf(format, args...)}
}

func errReplay(code, format string, args ...any) *Error {
	return &Error{Kind: KindReplay, Code: code, msg: fmt.Sprintf(format, args...)}
}

func errCrypto(cause error, code, format string, args ...any) *Error {
	return &Error{Kind: KindCrypto, Code: code, msg: fmt.Sprintf(format, args...), cause: cause}
}

func errInternal(cause error, code, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Code: code, msg: fmt.Sprintf(format, args...), cause: cause}
}

// Stable error codes surfaced to callers.
const (
	CodeNotReady          = "NOT_READY"
	CodeMissingProof      = "MISSING_PROOF"
	CodeMissingSignals    = "MISSING_PUBLIC_SIGNALS"
	CodeBadSignalCount    = "BAD_PUBLIC_SIGNAL_COUNT"
	CodeBadFieldElement   = "BAD_FIELD_ELEMENT"
	CodeBadCommitment     = "BAD_COMMITMENT"
	CodeDuplicateCitizen  = "DUPLICATE_COMMITMENT"
	CodeTreeFull          = "TREE_FULL"
	CodeReplayedNullifier = "NULLIFIER_ALREADY_USED"
	CodeRootMismatch      = "ROOT_MISMATCH"
	CodeScopeMismatch     = "SCOPE_MISMATCH"
	CodeProofUndecodable  = "PROOF_UNDECODABLE"
	CodeProofInvalid      = "PROOF_INVALID"
	CodeStoreFailure      = "STORE_FAILURE"
	CodeCitizenNotFound   = "CITIZEN_NOT_FOUND"
	CodeLeafOutOfRange    = "LEAF_INDEX_OUT_OF_RANGE"
)
