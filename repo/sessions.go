package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dao"
	"github.com/rowandb/rowan/dialect/sql"
	"github.com/rowandb/rowan/schema"
)

// SessionsConfig returns the Session entity configuration.
func SessionsConfig() *schema.EntityConfig {
	return &schema.EntityConfig{
		Name:  "Session",
		Table: "sessions",
		Columns: []*schema.Column{
			{Name: "id", Column: "id", Type: schema.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Name: "userId", Column: "user_id", Type: schema.TypeInteger},
			{Name: "token", Column: "token", Type: schema.TypeUUID, Unique: true},
			{Name: "expiresAt", Column: "expires_at", Type: schema.TypeDatetime},
			{Name: "createdAt", Column: "created_at", Type: schema.TypeDatetime, Nullable: true},
		},
		Timestamps: &schema.Timestamps{CreatedAt: "createdAt"},
		Indexes: []*schema.Index{
			{Columns: []string{"userId"}},
		},
	}
}

// Sessions is the session repository.
type Sessions struct {
	*dao.DAO
	now func() time.Time
}

// NewSessions returns the session repository over the given adapter.
func NewSessions(a *sql.Adapter, reg *schema.Registry, opts ...dao.Option) (*Sessions, error) {
	d, err := dao.New(a, reg, "Session", opts...)
	if err != nil {
		return nil, err
	}
	return &Sessions{DAO: d, now: time.Now}, nil
}

// Start opens a session for the user with a fresh random token.
func (s *Sessions) Start(ctx context.Context, userID int64, ttl time.Duration) (rowan.Entity, error) {
	return s.Create(ctx, rowan.Entity{
		"userId":    userID,
		"token":     uuid.NewString(),
		"expiresAt": s.now().Add(ttl).UTC(),
	})
}

// FindByToken returns the live session with the given token. Expired or
// unknown tokens report not found.
func (s *Sessions) FindByToken(ctx context.Context, token string) (rowan.Entity, error) {
	session, err := s.FindOne(ctx, map[string]any{"token": token}, nil)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, rowan.NewNotFoundError("Session")
	}
	if exp, ok := session["expiresAt"].(time.Time); ok && !exp.After(s.now()) {
		return nil, rowan.NewNotFoundError("Session")
	}
	return session, nil
}

// PurgeExpired deletes every session past its expiry and returns how
// many were removed.
func (s *Sessions) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.Adapter().DeleteBuilder("sessions").
		WhereCond(sql.LT("expires_at", s.now().UTC())).
		Exec(ctx)
	if err != nil {
		return 0, rowan.NewMutationError("Session", "purge", err)
	}
	return res.RowsAffected, nil
}
