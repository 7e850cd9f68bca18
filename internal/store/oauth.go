package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const oauthColumns = `id, channel_id, provider, access_token, refresh_token, expires_at, scopes, user_info, created_at, updated_at`

func scanOAuthSession(row scanner) (OAuthSession, error) {
	var o OAuthSession
	var channelID, refreshToken, scopes, userInfo sql.NullString
	var expiresAt, createdAt, updatedAt int64
	if err := row.Scan(&o.ID, &channelID, &o.Provider, &o.AccessToken, &refreshToken, &expiresAt, &scopes, &userInfo, &createdAt, &updatedAt); err != nil {
		return OAuthSession{}, err
	}
	o.ChannelID = channelID.String
	o.RefreshToken = refreshToken.String
	if scopes.Valid {
		_ = json.Unmarshal([]byte(scopes.String), &o.Scopes)
	}
	if userInfo.Valid {
		_ = json.Unmarshal([]byte(userInfo.String), &o.UserInfo)
	}
	o.ExpiresAt = time.UnixMilli(expiresAt)
	o.CreatedAt = time.UnixMilli(createdAt)
	o.UpdatedAt = time.UnixMilli(updatedAt)
	return o, nil
}

// ListOAuthSessions returns all sessions.
func (s *Store) ListOAuthSessions(ctx context.Context) ([]OAuthSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+oauthColumns+` FROM oauth_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer rows.Close()
	var out []OAuthSession
	for rows.Next() {
		o, err := scanOAuthSession(rows)
		if err != nil {
			return nil, wrapStorage(err)
		}
		out = append(out, o)
	}
	return out, wrapStorage(rows.Err())
}

// GetOAuthSession fetches a session by id.
func (s *Store) GetOAuthSession(ctx context.Context, id string) (OAuthSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+oauthColumns+` FROM oauth_sessions WHERE id = ?`, id)
	o, err := scanOAuthSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return OAuthSession{}, fmt.Errorf("%w: oauth session %s", ErrNotFound, id)
	}
	return o, wrapStorage(err)
}

// CreateOAuthSession inserts a new session, requiring a non-empty access token.
func (s *Store) CreateOAuthSession(ctx context.Context, in OAuthSession) (OAuthSession, error) {
	if in.AccessToken == "" {
		return OAuthSession{}, fmt.Errorf("%w: accessToken is required", ErrValidation)
	}
	now := time.Now()
	in.ID = uuid.NewString()
	in.CreatedAt = now
	in.UpdatedAt = now
	scopes, _ := json.Marshal(in.Scopes)
	userInfo, _ := json.Marshal(in.UserInfo)
	_, err := s.db.ExecContext(ctx, `INSERT INTO oauth_sessions
		(id, channel_id, provider, access_token, refresh_token, expires_at, scopes, user_info, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		in.ID, in.ChannelID, in.Provider, in.AccessToken, in.RefreshToken, in.ExpiresAt.UnixMilli(),
		string(scopes), string(userInfo), now.UnixMilli(), now.UnixMilli())
	return in, wrapStorage(err)
}

// RefreshOAuthSession updates the access/refresh tokens and expiry.
// expiresAt must not move backward, per the OAuthSession invariant.
func (s *Store) RefreshOAuthSession(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) (OAuthSession, error) {
	cur, err := s.GetOAuthSession(ctx, id)
	if err != nil {
		return OAuthSession{}, err
	}
	if expiresAt.Before(cur.ExpiresAt) {
		return OAuthSession{}, fmt.Errorf("%w: expiresAt must not move backward on refresh", ErrValidation)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE oauth_sessions SET access_token=?, refresh_token=?, expires_at=?, updated_at=? WHERE id=?`,
		accessToken, refreshToken, expiresAt.UnixMilli(), time.Now().UnixMilli(), id)
	if err != nil {
		return OAuthSession{}, wrapStorage(err)
	}
	return s.GetOAuthSession(ctx, id)
}

// RevokeOAuthSession deletes a session.
func (s *Store) RevokeOAuthSession(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM oauth_sessions WHERE id = ?`, id)
	if err != nil {
		return false, wrapStorage(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// LinkOAuthSessionToChannel associates a session with a channel.
func (s *Store) LinkOAuthSessionToChannel(ctx context.Context, id, channelID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE oauth_sessions SET channel_id=?, updated_at=? WHERE id=?`,
		channelID, time.Now().UnixMilli(), id)
	return wrapStorage(err)
}
