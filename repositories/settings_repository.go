package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/pong-arena/models"
)

var ErrSettingsNotFound = errors.New("settings not found")

type SettingsRepository interface {
	GetByUserID(ctx context.Context, userID int) (*models.Settings, error)
	GetByTournamentID(ctx context.Context, tournamentID int) (*models.Settings, error)
}

type postgresSettingsRepository struct {
	db *sql.DB
}

func NewPostgresSettingsRepository(db *sql.DB) SettingsRepository {
	return &postgresSettingsRepository{db: db}
}

func (r *postgresSettingsRepository) GetByUserID(ctx context.Context, userID int) (*models.Settings, error) {
	query := `
		SELECT id, user_id, max_score, ball_speed, paddle_size, created_at
		FROM settings
		WHERE user_id = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, userID), fmt.Sprintf("user %d", userID))
}

func (r *postgresSettingsRepository) GetByTournamentID(ctx context.Context, tournamentID int) (*models.Settings, error) {
	query := `
		SELECT s.id, s.user_id, s.max_score, s.ball_speed, s.paddle_size, s.created_at
		FROM settings s
		JOIN tournaments t ON t.settings_id = s.id
		WHERE t.id = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, tournamentID), fmt.Sprintf("tournament %d", tournamentID))
}

func (r *postgresSettingsRepository) scanOne(row *sql.Row, ref string) (*models.Settings, error) {
	s := &models.Settings{}
	err := row.Scan(&s.ID, &s.UserID, &s.MaxScore, &s.BallSpeed, &s.PaddleSize, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to scan settings for %s: %w", ref, err)
	}
	return s, nil
}
