package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/medconnect-auth/internal/domain"
)

const (
	emailIndex = "email-index"
	phoneIndex = "phone-index"
)

// AccountRepo stores accounts keyed by account_id, with lookups by email and phone.
type AccountRepo struct {
	t table
}

func NewAccountRepo(client *dynamodb.Client, tableName string) *AccountRepo {
	return &AccountRepo{t: table{client: client, name: tableName, key: "account_id", entity: "account"}}
}

// Create inserts a new account. It fails with ErrConflict if the id is taken.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	return r.t.put(ctx, a, "attribute_not_exists(account_id)")
}

func (r *AccountRepo) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	var a domain.Account
	if err := r.t.get(ctx, accountID, false, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var a domain.Account
	if err := r.t.findOne(ctx, emailIndex, "email", email, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) GetByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	var a domain.Account
	if err := r.t.findOne(ctx, phoneIndex, "phone", phone, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) Update(ctx context.Context, accountID string, updates map[string]interface{}) error {
	return r.t.update(ctx, accountID, updates, true, nil)
}
