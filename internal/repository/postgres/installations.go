package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"coinflow/internal/domain"
	pkgerrors "coinflow/pkg/errors"
)

// InstallationRepository persists device installation credentials.
type InstallationRepository struct {
	db *sqlx.DB
}

func NewInstallationRepository(db *sqlx.DB) *InstallationRepository {
	return &InstallationRepository{db: db}
}

func (r *InstallationRepository) Create(ctx context.Context, inst *domain.Installation) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO installations (id, user_uid, secret_hash, created_at)
		 VALUES (:id, :user_uid, :secret_hash, :created_at)`, inst)
	return err
}

func (r *InstallationRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Installation, error) {
	var inst domain.Installation
	err := r.db.GetContext(ctx, &inst,
		`SELECT id, user_uid, secret_hash, created_at
		   FROM installations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}
