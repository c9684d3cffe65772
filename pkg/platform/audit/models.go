package audit

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategorySecurity covers lockouts, unlocks and detected impersonation.
	// These feed into SIEM systems and alerting pipelines.
	CategorySecurity EventCategory = "security"

	// CategoryCompliance covers enrollment changes and reviewer actions.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine activity such as code issuance.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	// One-time code events
	EventOTPIssued         AuditEvent = "otp_issued"
	EventOTPBatchIssued    AuditEvent = "otp_batch_issued"
	EventOTPResent         AuditEvent = "otp_resent"
	EventOTPResendRejected AuditEvent = "otp_resend_rejected"

	// Verification events
	EventVerificationSucceeded AuditEvent = "verification_succeeded"
	EventVerificationFailed    AuditEvent = "verification_failed"
	EventVerificationRejected  AuditEvent = "verification_rejected_locked"

	// Strike tracker events
	EventIdentityLocked   AuditEvent = "identity_locked"
	EventIdentityUnlocked AuditEvent = "identity_unlocked"
	EventAnomalyLogged    AuditEvent = "anomaly_logged"
	EventAnomalyReviewed  AuditEvent = "anomaly_reviewed"

	// Enrollment events
	EventEnrollmentCreated  AuditEvent = "enrollment_created"
	EventEnrollmentRejected AuditEvent = "enrollment_rejected"
	EventEnrollmentRemoved  AuditEvent = "enrollment_removed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventVerificationFailed:   CategorySecurity,
	EventVerificationRejected: CategorySecurity,
	EventIdentityLocked:       CategorySecurity,
	EventIdentityUnlocked:     CategorySecurity,
	EventAnomalyLogged:        CategorySecurity,
	EventOTPResendRejected:    CategorySecurity,

	EventAnomalyReviewed:    CategoryCompliance,
	EventEnrollmentCreated:  CategoryCompliance,
	EventEnrollmentRejected: CategoryCompliance,
	EventEnrollmentRemoved:  CategoryCompliance,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
