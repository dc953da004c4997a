package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/medconnect-auth/internal/domain"
)

// ChallengeRepo stores at most one verification challenge per target.
// Items expire via DynamoDB TTL on expires_at.
type ChallengeRepo struct {
	t table
}

func NewChallengeRepo(client *dynamodb.Client, tableName string) *ChallengeRepo {
	return &ChallengeRepo{t: table{client: client, name: tableName, key: "target", entity: "challenge"}}
}

// Put writes c, replacing any earlier challenge for the same target.
func (r *ChallengeRepo) Put(ctx context.Context, c *domain.Challenge) error {
	return r.t.put(ctx, c, "")
}

func (r *ChallengeRepo) Get(ctx context.Context, target string) (*domain.Challenge, error) {
	var c domain.Challenge
	if err := r.t.get(ctx, target, true, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Update applies updates only while the stored challenge is still challengeID.
// A superseded challenge yields ErrConflict.
func (r *ChallengeRepo) Update(ctx context.Context, target, challengeID string, updates map[string]interface{}) error {
	return r.t.update(ctx, target, updates, false, &condition{
		expr:   "#cid = :cid",
		names:  map[string]string{"#cid": "challenge_id"},
		values: map[string]types.AttributeValue{":cid": &types.AttributeValueMemberS{Value: challengeID}},
	})
}
