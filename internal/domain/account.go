package domain

import "time"

// AccountType is the kind of account chosen at sign-up.
type AccountType string

const (
	AccountTypeDoctor       AccountType = "doctor"
	AccountTypeOrganization AccountType = "organization"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	return t == AccountTypeDoctor || t == AccountTypeOrganization
}

// Organization holds the fields an organization sign-up must provide.
type Organization struct {
	Name    string `json:"org_name" dynamodbav:"org_name"`
	Type    string `json:"org_type" dynamodbav:"org_type"`
	Country string `json:"org_country" dynamodbav:"org_country"`
}

// AccountTypeSelection is the doctor/organization choice made during sign-up.
type AccountTypeSelection struct {
	Type         AccountType  `json:"type"`
	Organization Organization `json:"organization"`
}

// Complete reports whether the selection can be used to finish sign-up.
// Organizations need all three organization fields.
func (s AccountTypeSelection) Complete() bool {
	switch s.Type {
	case AccountTypeDoctor:
		return true
	case AccountTypeOrganization:
		return s.Organization.Name != "" && s.Organization.Type != "" && s.Organization.Country != ""
	}
	return false
}

// Account is the persisted identity.
type Account struct {
	AccountID      string      `json:"id" dynamodbav:"account_id"`
	Email          string      `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Phone          string      `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	PasswordHash   string      `json:"-" dynamodbav:"password_hash"`
	AccountType    AccountType `json:"account_type" dynamodbav:"account_type"`
	EmailConfirmed bool        `json:"email_confirmed" dynamodbav:"email_confirmed"`
	PhoneConfirmed bool        `json:"phone_confirmed" dynamodbav:"phone_confirmed"`
	AuthProvider   string      `json:"auth_provider,omitempty" dynamodbav:"auth_provider"` // "local" | "google" | "dev"
	GoogleSub      string      `json:"-" dynamodbav:"google_sub,omitempty"`
	Enable         bool        `json:"enable" dynamodbav:"enable"`
	CreatedAt      time.Time   `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time   `json:"updated" dynamodbav:"updated_at"`
}

// NewAccount is the input for account creation.
type NewAccount struct {
	Email          string
	Phone          string
	Password       string // optional for OTP-only accounts
	PasswordHash   string // bcrypt, used when Password is empty
	Username       string
	FullName       string
	Selection      AccountTypeSelection
	EmailConfirmed bool
	PhoneConfirmed bool
	AuthProvider   string
	GoogleSub      string
}

// ExternalIdentity is a verified identity asserted by an OAuth provider.
type ExternalIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}
