package domain

import "time"

// FlowState is a state of the authentication flow state machine.
type FlowState string

const (
	StateChoosingMethod          FlowState = "choosing_method"
	StateChoosingView            FlowState = "choosing_view"
	StateAccountTypeChoice       FlowState = "account_type_choice"
	StateAwaitingCredentialInput FlowState = "awaiting_credential_input"
	StateChallengeSent           FlowState = "challenge_sent"
	StateVerifying               FlowState = "verifying"
	StateAuthenticated           FlowState = "authenticated"
	StateFailed                  FlowState = "failed"
)

// Method is the credential family the user picked.
type Method string

const (
	MethodEmail Method = "email"
	MethodPhone Method = "phone"
)

// View is the sub-view on the email path.
type View string

const (
	ViewSignIn         View = "sign_in"
	ViewSignUp         View = "sign_up"
	ViewForgotPassword View = "forgot_password"
)

// Valid reports whether v is a known view.
func (v View) Valid() bool {
	return v == ViewSignIn || v == ViewSignUp || v == ViewForgotPassword
}

// MessageKind identifies a user-facing flow message.
type MessageKind string

const (
	MsgInvalidCredentials     MessageKind = "invalid_credentials"
	MsgEmailNotConfirmed      MessageKind = "email_not_confirmed"
	MsgAccountNotFound        MessageKind = "account_not_found"
	MsgAccountAlreadyExists   MessageKind = "account_already_exists"
	MsgInvalidOrExpiredCode   MessageKind = "invalid_or_expired_code"
	MsgAttemptsExhausted      MessageKind = "attempts_exhausted"
	MsgUnsupportedDomain      MessageKind = "unsupported_email_domain"
	MsgValidation             MessageKind = "validation"
	MsgChannelDelivery        MessageKind = "channel_delivery"
	MsgOrgDetailsRequired     MessageKind = "organization_details_required"
	MsgCooldownActive         MessageKind = "cooldown_active"
	MsgUnknown                MessageKind = "unknown"
	MsgCodeSent               MessageKind = "code_sent"
	MsgAuthenticated          MessageKind = "authenticated"
	MsgPasswordResetCompleted MessageKind = "password_reset"
)

// Suggestion is the next action a message points the user to.
type Suggestion string

const (
	SuggestSwitchToSignUp  Suggestion = "switch_to_sign_up"
	SuggestSwitchToSignIn  Suggestion = "switch_to_sign_in"
	SuggestResetPassword   Suggestion = "reset_password"
	SuggestCheckInbox      Suggestion = "check_inbox"
	SuggestRetry           Suggestion = "retry"
	SuggestResend          Suggestion = "resend"
	SuggestCompleteProfile Suggestion = "complete_profile"
	SuggestEnterCode       Suggestion = "enter_code"
	SuggestNone            Suggestion = ""
)

// FlowMessage is the error or success message currently shown for a flow.
type FlowMessage struct {
	Kind       MessageKind `json:"kind"`
	Text       string      `json:"text"`
	Suggestion Suggestion  `json:"suggestion,omitempty"`
	IsError    bool        `json:"is_error"`
	Field      string      `json:"field,omitempty"`
}

// ViewSwitch is an automatic view change scheduled to apply at At.
type ViewSwitch struct {
	View View      `json:"view"`
	At   time.Time `json:"at"`
}

// Flow is the transient state of one authentication attempt.
// A plaintext password is never stored here; sign-up keeps only its bcrypt
// hash until the account is created.
type Flow struct {
	FlowID           string               `json:"id"`
	State            FlowState            `json:"state"`
	Method           Method               `json:"method"`
	View             View                 `json:"view"`
	Selection        AccountTypeSelection `json:"selection"`
	SelectionMade    bool                 `json:"selection_made"`
	Email            string               `json:"email,omitempty"`
	Phone            string               `json:"phone,omitempty"`
	Channel          Channel              `json:"channel,omitempty"`          // auto or overridden phone channel
	ChannelOverride  Channel              `json:"channel_override,omitempty"` // empty means auto-detect
	ChallengeID      string               `json:"challenge_id,omitempty"`
	ChallengeTarget  string               `json:"challenge_target,omitempty"`
	ChallengeSentAt  time.Time            `json:"challenge_sent_at,omitempty"`
	EffectiveChannel Channel              `json:"effective_channel,omitempty"`
	CodeVerified     bool                 `json:"code_verified"`
	ResendAvailable  time.Time            `json:"resend_available_at,omitempty"`
	ResendIn         int                  `json:"resend_in"` // seconds, recomputed on every read
	InFlight         string               `json:"in_flight,omitempty"`
	InFlightSince    time.Time            `json:"in_flight_since,omitempty"`
	Generation       int                  `json:"generation"`
	Message          *FlowMessage         `json:"message,omitempty"`
	PendingSwitch    *ViewSwitch          `json:"pending_switch,omitempty"`
	AccountID        string               `json:"account_id,omitempty"`
	PasswordHash     string               `json:"password_hash,omitempty"`
	CreatedAt        time.Time            `json:"created"`
	UpdatedAt        time.Time            `json:"updated"`
}

// Credential is what the user submits in awaiting_credential_input.
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}
