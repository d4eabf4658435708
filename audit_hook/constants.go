package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountCreated = "account.created"

	// Metered action outcomes
	ActionCreditsRefunded = "credits.refunded"
	ActionRefundFailed    = "credits.refund_failed"

	// Payment actions
	ActionPaymentApplied    = "payment.applied"
	ActionPaymentDuplicate  = "payment.duplicate"
	ActionPaymentUnresolved = "payment.unresolved"
	ActionSignatureRejected = "webhook.signature_rejected"

	// Admin actions
	ActionGrantApplied = "grant.applied"
	ActionGrantDenied  = "grant.denied"
)

// Resource constants for audit events.
const (
	ResourceAccount     = "account"
	ResourceReservation = "reservation"
	ResourcePayment     = "payment"
	ResourceWebhook     = "webhook"
	ResourceGrant       = "grant"
)

// Category constants for audit events.
const (
	CategoryAccount  = "account"
	CategoryUsage    = "usage"
	CategoryPayment  = "payment"
	CategorySecurity = "security"
	CategoryAdmin    = "admin"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
