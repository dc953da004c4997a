package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/medconnect-auth/internal/domain"
)

// domainOverride is one row of the email_domains table.
type domainOverride struct {
	Domain  string `dynamodbav:"domain"`
	Blocked bool   `dynamodbav:"blocked"`
}

// EmailDomainRepo reads per-domain overrides from the email_domains table.
// A row {domain, blocked: true} disables a domain that the static lists allow.
type EmailDomainRepo struct {
	t table
}

func NewEmailDomainRepo(client *dynamodb.Client, tableName string) *EmailDomainRepo {
	return &EmailDomainRepo{t: table{client: client, name: tableName, key: "domain", entity: "email domain"}}
}

// Blocked reports whether an override row blocks d. No row means not blocked.
func (r *EmailDomainRepo) Blocked(ctx context.Context, d string) (bool, error) {
	var row domainOverride
	err := r.t.get(ctx, d, false, &row)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row.Blocked, nil
}
