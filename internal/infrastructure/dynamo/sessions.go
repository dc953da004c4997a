package dynamo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/medconnect-auth/internal/domain"
)

const (
	accountIndex      = "account_id-index"
	refreshTokenIndex = "refresh_token-index"
)

// SessionRepo stores sessions keyed by session_id.
type SessionRepo struct {
	t table
}

func NewSessionRepo(client *dynamodb.Client, tableName string) *SessionRepo {
	return &SessionRepo{t: table{client: client, name: tableName, key: "session_id", entity: "session"}}
}

func (r *SessionRepo) Put(ctx context.Context, s *domain.Session) error {
	return r.t.put(ctx, s, "")
}

func (r *SessionRepo) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s domain.Session
	if err := r.t.get(ctx, sessionID, false, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DisableByAccount turns off every session of an account. It keeps going past
// individual failures and returns the first one.
func (r *SessionRepo) DisableByAccount(ctx context.Context, accountID string) error {
	items, err := r.t.queryIndex(ctx, accountIndex, "account_id", accountID, 0)
	if err != nil {
		return err
	}
	var firstErr error
	for _, item := range items {
		var s domain.Session
		if err := attributevalue.UnmarshalMap(item, &s); err != nil || s.SessionID == "" || !s.Enable {
			continue
		}
		if err := r.Update(ctx, s.SessionID, map[string]interface{}{fieldEnable: false}); err != nil {
			slog.Warn("failed to disable session", "session_id", s.SessionID, "account_id", accountID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *SessionRepo) Update(ctx context.Context, sessionID string, updates map[string]interface{}) error {
	return r.t.update(ctx, sessionID, updates, true, nil)
}

// GetByRefreshToken finds the session holding token. A disabled session is
// reported as ErrUnauthorized.
func (r *SessionRepo) GetByRefreshToken(ctx context.Context, token string) (*domain.Session, error) {
	var s domain.Session
	if err := r.t.findOne(ctx, refreshTokenIndex, "refresh_token", token, &s); err != nil {
		return nil, err
	}
	if !s.Enable {
		return nil, fmt.Errorf("session %s disabled: %w", s.SessionID, domain.ErrUnauthorized)
	}
	return &s, nil
}

func (r *SessionRepo) RotateRefreshToken(ctx context.Context, sessionID, newToken string, newExpiry int64) error {
	return r.Update(ctx, sessionID, map[string]interface{}{
		fieldRefreshToken:     newToken,
		fieldRefreshExpiresAt: newExpiry,
	})
}
