// Package domains decides whether an email domain may be used to register.
package domains

import (
	"context"
	"log/slog"
	"strings"
)

// Policy is the authoritative server-side domain check. It may only turn an
// allowed verdict into a disallowed one.
type Policy interface {
	Blocked(ctx context.Context, domain string) (bool, error)
}

// Reason explains a Verdict.
type Reason string

const (
	ReasonAllowed    Reason = "allowed"
	ReasonPrivileged Reason = "privileged"
	ReasonMalformed  Reason = "malformed"
	ReasonNotListed  Reason = "not_listed"
	ReasonBlocked    Reason = "blocked_by_policy"
)

// Verdict is the combined local and policy result for one email.
type Verdict struct {
	Domain  string `json:"domain"`
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

// Validator holds the general allow-list and the privileged domains that are
// accepted regardless of the allow-list contents.
type Validator struct {
	allowed    map[string]struct{}
	privileged map[string]struct{}
	policy     Policy
}

// NewValidator builds a Validator. policy may be nil.
func NewValidator(allowed, privileged []string, policy Policy) *Validator {
	return &Validator{
		allowed:    toSet(allowed),
		privileged: toSet(privileged),
		policy:     policy,
	}
}

// DomainOf returns the lower-cased text after the last "@", or "" when there is none.
func DomainOf(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[i+1:]))
}

// IsAllowed is the local, advisory check. It never consults the policy.
func (v *Validator) IsAllowed(email string) bool {
	return v.local(email).Allowed
}

func (v *Validator) local(email string) Verdict {
	d := DomainOf(email)
	if d == "" {
		return Verdict{Domain: d, Reason: ReasonMalformed}
	}
	if _, ok := v.privileged[d]; ok {
		return Verdict{Domain: d, Allowed: true, Reason: ReasonPrivileged}
	}
	if _, ok := v.allowed[d]; ok {
		return Verdict{Domain: d, Allowed: true, Reason: ReasonAllowed}
	}
	return Verdict{Domain: d, Reason: ReasonNotListed}
}

// Check runs the local check and, when it passes, the authoritative policy.
// A policy failure leaves the local verdict in place.
func (v *Validator) Check(ctx context.Context, email string) Verdict {
	verdict := v.local(email)
	if !verdict.Allowed || v.policy == nil {
		return verdict
	}
	blocked, err := v.policy.Blocked(ctx, verdict.Domain)
	if err != nil {
		slog.Warn("domain policy lookup failed", "domain", verdict.Domain, "err", err)
		return verdict
	}
	if blocked {
		return Verdict{Domain: verdict.Domain, Reason: ReasonBlocked}
	}
	return verdict
}

func toSet(list []string) map[string]struct{} {
	m := make(map[string]struct{}, len(list))
	for _, d := range list {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			m[d] = struct{}{}
		}
	}
	return m
}
