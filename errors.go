package gasrelay

import (
	"errors"
	"fmt"
)

// Kind classifies relay errors so callers can branch on the failure category
// without matching message text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuth is a missing or invalid API key, or a disallowed client IP.
	KindAuth
	// KindDecode is a malformed transaction hex or unrecoverable sender.
	KindDecode
	// KindValidation is a gas ceiling violation.
	KindValidation
	// KindNoTenantWallet means funding was required but the tenant has no
	// bound wallet.
	KindNoTenantWallet
	// KindFeeEstimate is a soft failure of the contract fee estimate.
	KindFeeEstimate
	// KindFundingFailed means the on-chain funding transaction reverted or
	// could not be submitted.
	KindFundingFailed
	// KindFundingTimeout means the sender balance did not reach the needed
	// amount within the wait budget.
	KindFundingTimeout
	// KindForwardFailed means the node rejected the raw transaction.
	KindForwardFailed
	// KindOnChainFailed means the user transaction mined but reverted.
	KindOnChainFailed
	// KindChainRPC is a lower-level RPC I/O failure.
	KindChainRPC
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindDecode:
		return "decode"
	case KindValidation:
		return "validation"
	case KindNoTenantWallet:
		return "no_tenant_wallet"
	case KindFeeEstimate:
		return "fee_estimate"
	case KindFundingFailed:
		return "funding_failed"
	case KindFundingTimeout:
		return "funding_timeout"
	case KindForwardFailed:
		return "forward_failed"
	case KindOnChainFailed:
		return "on_chain_failed"
	case KindChainRPC:
		return "chain_rpc"
	default:
		return "unknown"
	}
}

// Error is a tagged relay error. Err may be nil.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a tagged error.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a kind and context message.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, or KindUnknown for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
