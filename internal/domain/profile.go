package domain

import "time"

// Profile is the minimal profile row inserted right after an account is created.
type Profile struct {
	UserID     string      `json:"user_id" dynamodbav:"user_id"`
	Username   string      `json:"username" dynamodbav:"username"`
	FullName   string      `json:"full_name" dynamodbav:"full_name"`
	Type       AccountType `json:"type" dynamodbav:"type"`
	Specialty  string      `json:"specialty" dynamodbav:"specialty"`
	IsPublic   bool        `json:"is_public" dynamodbav:"is_public"`
	OrgName    string      `json:"org_name,omitempty" dynamodbav:"org_name,omitempty"`
	OrgType    string      `json:"org_type,omitempty" dynamodbav:"org_type,omitempty"`
	OrgCountry string      `json:"org_country,omitempty" dynamodbav:"org_country,omitempty"`
	CreatedAt  time.Time   `json:"created" dynamodbav:"created_at"`
}
