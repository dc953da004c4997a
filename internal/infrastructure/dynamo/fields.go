package dynamo

// Attribute names shared by update expressions.
const (
	fieldEnable            = "enable"
	fieldUpdatedAt         = "updated_at"
	fieldPasswordHash      = "password_hash"
	fieldEmailConfirmed    = "email_confirmed"
	fieldPhoneConfirmed    = "phone_confirmed"
	fieldRefreshToken      = "refresh_token"
	fieldRefreshExpiresAt  = "refresh_expires_at"
	fieldStatus            = "status"
	fieldAttemptsRemaining = "attempts_remaining"
)
