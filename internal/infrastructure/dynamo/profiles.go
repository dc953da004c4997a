package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/medconnect-auth/internal/domain"
)

// ProfileRepo writes the initial profile row for new accounts.
type ProfileRepo struct {
	t table
}

func NewProfileRepo(client *dynamodb.Client, tableName string) *ProfileRepo {
	return &ProfileRepo{t: table{client: client, name: tableName, key: "user_id", entity: "profile"}}
}

func (r *ProfileRepo) Put(ctx context.Context, p *domain.Profile) error {
	return r.t.put(ctx, p, "")
}

func (r *ProfileRepo) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	var p domain.Profile
	if err := r.t.get(ctx, userID, false, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
