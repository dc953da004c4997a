package dynamo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/medconnect-auth/internal/config"
)

// tableSpec describes a table with a string partition key, optional
// hash-only GSIs (index name -> attribute) and an optional TTL attribute.
type tableSpec struct {
	name    string
	key     string
	indexes map[string]string
	ttlAttr string
}

func tableSpecs(tables config.DynamoTables) []tableSpec {
	return []tableSpec{
		{name: tables.Accounts, key: "account_id", indexes: map[string]string{emailIndex: "email", phoneIndex: "phone"}},
		{name: tables.Sessions, key: "session_id", indexes: map[string]string{accountIndex: "account_id", refreshTokenIndex: "refresh_token"}},
		{name: tables.Profiles, key: "user_id"},
		{name: tables.Challenges, key: "target", ttlAttr: "expires_at"},
		{name: tables.EmailDomains, key: "domain"},
	}
}

// createInput builds the CreateTable request. Index order is sorted by name.
func (s tableSpec) createInput() *dynamodb.CreateTableInput {
	in := &dynamodb.CreateTableInput{
		TableName:   aws.String(s.name),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(s.key), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(s.key), KeyType: types.KeyTypeHash},
		},
	}
	for _, name := range sortedKeys(s.indexes) {
		attr := s.indexes[name]
		in.AttributeDefinitions = append(in.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(attr), AttributeType: types.ScalarAttributeTypeS,
		})
		in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName:  aws.String(name),
			KeySchema:  []types.KeySchemaElement{{AttributeName: aws.String(attr), KeyType: types.KeyTypeHash}},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}
	return in
}

// Bootstrap creates the auth tables and their indexes if they don't exist yet,
// and enables TTL where a table expires its items. Failures are logged.
func Bootstrap(ctx context.Context, client *dynamodb.Client, tables config.DynamoTables) {
	for _, spec := range tableSpecs(tables) {
		_, err := client.CreateTable(ctx, spec.createInput())
		var inUse *types.ResourceInUseException
		switch {
		case err == nil:
			slog.Info("created table", "table", spec.name)
		case !errors.As(err, &inUse):
			slog.Warn("could not create table", "table", spec.name, "err", err)
			continue
		}
		if spec.ttlAttr == "" {
			continue
		}
		_, err = client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
			TableName: aws.String(spec.name),
			TimeToLiveSpecification: &types.TimeToLiveSpecification{
				Enabled:       aws.Bool(true),
				AttributeName: aws.String(spec.ttlAttr),
			},
		})
		if err != nil {
			slog.Warn("could not enable TTL", "table", spec.name, "err", err)
		}
	}
}
