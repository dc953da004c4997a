package domain

import "time"

// Channel is a delivery channel for one-time codes.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// ParseChannel accepts "email", "sms" or "whatsapp".
func ParseChannel(s string) (Channel, bool) {
	switch c := Channel(s); c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return c, true
	}
	return "", false
}

// ChallengeStatus is the lifecycle state of a verification challenge.
type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "pending"
	ChallengeVerified ChallengeStatus = "verified"
	ChallengeExpired  ChallengeStatus = "expired"
	ChallengeFailed   ChallengeStatus = "failed"
)

// Challenge is one outstanding attempt to prove control of an email or phone.
// PK: target. Writing a new challenge for a target supersedes the previous one.
// ExpiresAt doubles as the DynamoDB TTL attribute (Unix seconds).
type Challenge struct {
	ChallengeID       string          `json:"id" dynamodbav:"challenge_id"`
	Target            string          `json:"target" dynamodbav:"target"`
	Channel           Channel         `json:"channel" dynamodbav:"channel"`
	CodeHash          string          `json:"-" dynamodbav:"code_hash,omitempty"` // empty when the code is held by a remote service
	Status            ChallengeStatus `json:"status" dynamodbav:"status"`
	AttemptsRemaining int             `json:"attempts_remaining" dynamodbav:"attempts_remaining"`
	IssuedAt          int64           `json:"issued_at" dynamodbav:"issued_at"`
	ExpiresAt         int64           `json:"expires_at" dynamodbav:"expires_at"`
}

// Expired reports whether the challenge deadline has passed at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.Unix() >= c.ExpiresAt
}

// VerifiedIdentity is returned by a successful code verification.
type VerifiedIdentity struct {
	Target        string
	Channel       Channel
	ChallengeID   string
	VerifiedAt    time.Time
	RemoteSession string // opaque session handed back by a remote OTP service, if any
}
