package domain

import "time"

type Session struct {
	SessionID        string    `json:"id" dynamodbav:"session_id"`
	AccountID        string    `json:"account_id" dynamodbav:"account_id"`
	Enable           bool      `json:"enable" dynamodbav:"enable"`
	RefreshToken     string    `json:"-" dynamodbav:"refresh_token"`
	RefreshExpiresAt int64     `json:"-" dynamodbav:"refresh_expires_at"`
	CreatedAt        time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt        time.Time `json:"updated" dynamodbav:"updated_at"`
	Account          *Account  `json:"account,omitempty" dynamodbav:"-"`
}

// AuthResult is what a successful sign-in hands back to the caller.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	Session      *Session
}
