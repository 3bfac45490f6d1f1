package credentials

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SideTokens is the token store. Every state transition is a conditional
// update keyed on the current state (unset revoked_at / consumed_at), never a
// blind overwrite, so concurrent attempts against the same record fail safely
// with zero affected rows instead of racing.
type SideTokens interface {
	repository.Repository[*SideToken]

	Create(ctx context.Context, record *SideToken, criteria ...repository.InsertCriteria) (*SideToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *SideToken, criteria ...repository.InsertCriteria) (*SideToken, error)

	GetByHash(ctx context.Context, hash string, kind TokenKind) (*SideToken, error)
	GetByHashTx(ctx context.Context, tx bun.IDB, hash string, kind TokenKind) (*SideToken, error)

	// MarkRevoked revokes an active record. Returns the number of affected
	// rows: zero means the record was already revoked or consumed, which
	// callers use as the losing side of a rotation race.
	MarkRevoked(ctx context.Context, id uuid.UUID, at time.Time, byIP, successorHash string) (int64, error)
	MarkRevokedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time, byIP, successorHash string) (int64, error)

	// MarkConsumed consumes an active, unexpired record. Zero affected rows
	// means the token already reached a terminal state or expired.
	MarkConsumed(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	MarkConsumedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (int64, error)

	// RevokeAllForUser revokes every active token of a kind for a user.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, kind TokenKind, at time.Time, byIP string) (int64, error)
	RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, kind TokenKind, at time.Time, byIP string) (int64, error)

	CountActiveForUser(ctx context.Context, userID uuid.UUID, kind TokenKind, now time.Time) (int, error)
}

type sideTokens struct {
	repository.Repository[*SideToken]
	db *bun.DB
}

var (
	_ SideTokens                        = (*sideTokens)(nil)
	_ repository.Repository[*SideToken] = (*sideTokens)(nil)
)

func NewSideTokensRepository(db *bun.DB) SideTokens {
	repo := repository.NewRepository[*SideToken](db, repository.ModelHandlers[*SideToken]{
		NewRecord: func() *SideToken { return &SideToken{} },
		GetID: func(t *SideToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *SideToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token_hash"
		},
	})

	return &sideTokens{
		Repository: repo,
		db:         db,
	}
}

func (r *sideTokens) Create(ctx context.Context, record *SideToken, criteria ...repository.InsertCriteria) (*SideToken, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *sideTokens) CreateTx(ctx context.Context, tx bun.IDB, record *SideToken, criteria ...repository.InsertCriteria) (*SideToken, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (r *sideTokens) GetByHash(ctx context.Context, hash string, kind TokenKind) (*SideToken, error) {
	return r.GetByHashTx(ctx, r.db, hash, kind)
}

func (r *sideTokens) GetByHashTx(ctx context.Context, tx bun.IDB, hash string, kind TokenKind) (*SideToken, error) {
	record := &SideToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", hash).
		Where("?TableAlias.kind = ?", kind).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isNoRows(err) {
			// zero metadata on purpose: the hash must not leak into logs
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (r *sideTokens) MarkRevoked(ctx context.Context, id uuid.UUID, at time.Time, byIP, successorHash string) (int64, error) {
	return r.MarkRevokedTx(ctx, r.db, id, at, byIP, successorHash)
}

func (r *sideTokens) MarkRevokedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time, byIP, successorHash string) (int64, error) {
	q := tx.NewUpdate().
		Model((*SideToken)(nil)).
		Set("revoked_at = ?", at).
		Set("revoked_by_ip = ?", byIP).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.revoked_at IS NULL").
		Where("?TableAlias.consumed_at IS NULL")

	if successorHash != "" {
		q = q.Set("replaced_by_token_hash = ?", successorHash)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r *sideTokens) MarkConsumed(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	return r.MarkConsumedTx(ctx, r.db, id, at)
}

func (r *sideTokens) MarkConsumedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*SideToken)(nil)).
		Set("consumed_at = ?", at).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.consumed_at IS NULL").
		Where("?TableAlias.revoked_at IS NULL").
		Where("?TableAlias.expires_at > ?", at).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r *sideTokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID, kind TokenKind, at time.Time, byIP string) (int64, error) {
	return r.RevokeAllForUserTx(ctx, r.db, userID, kind, at, byIP)
}

func (r *sideTokens) RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, kind TokenKind, at time.Time, byIP string) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*SideToken)(nil)).
		Set("revoked_at = ?", at).
		Set("revoked_by_ip = ?", byIP).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.kind = ?", kind).
		Where("?TableAlias.revoked_at IS NULL").
		Where("?TableAlias.consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r *sideTokens) CountActiveForUser(ctx context.Context, userID uuid.UUID, kind TokenKind, now time.Time) (int, error) {
	return r.db.NewSelect().
		Model((*SideToken)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.kind = ?", kind).
		Where("?TableAlias.revoked_at IS NULL").
		Where("?TableAlias.consumed_at IS NULL").
		Where("?TableAlias.expires_at > ?", now).
		Count(ctx)
}
