package gateway

// Reason is the machine-readable outcome code carried by every gateway
// result. Callers branch on these, never on free-form strings.
type Reason string

// Reason codes. Anything ambiguous fails closed into a rejection.
const (
	ReasonOK Reason = "ok"

	// Input / identity rejections.
	ReasonMissingIdentity         Reason = "missing_identity"
	ReasonUnknownProfile          Reason = "unknown_profile"
	ReasonIdentityMismatch        Reason = "identity_mismatch"
	ReasonSessionIdentityMismatch Reason = "session_identity_mismatch"

	// Budget rejections.
	ReasonRateLimited Reason = "rate_limited"

	// Token rejections.
	ReasonTokenMissing          Reason = "token_missing"
	ReasonTokenUsernameMismatch Reason = "token_username_mismatch"
	ReasonTokenAlreadyUsed      Reason = "token_already_used"

	// Boundary failures: a domain exception converted into a decidable
	// outcome instead of an unhandled fault.
	ReasonRPCException Reason = "rpc_exception"
)

// Result is the structured outcome of a gateway call.
type Result struct {
	OK           bool   `json:"ok"`
	Reason       Reason `json:"reason,omitempty"`
	Detail       string `json:"detail,omitempty"`
	RetrySeconds int    `json:"retry_seconds,omitempty"`
}

func ok() Result {
	return Result{OK: true, Reason: ReasonOK}
}

func reject(reason Reason, detail string) Result {
	return Result{OK: false, Reason: reason, Detail: detail}
}
