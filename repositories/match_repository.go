package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Dosada05/pong-arena/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound                 = errors.New("match not found")
	ErrMatchTournamentInvalid        = errors.New("match tournament conflict or invalid")
	ErrMatchParticipantInvalid       = errors.New("match participant conflict or invalid")
	ErrMatchWinnerParticipantInvalid = errors.New("match winner participant conflict or invalid")
)

// MatchUpdate is a partial update of a match row. Nil fields are left
// untouched.
type MatchUpdate struct {
	Participant1ID      *int
	Participant2ID      *int
	Score1              *int
	Score2              *int
	WinnerParticipantID *int
	Status              *models.MatchStatus
}

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, round *int) ([]*models.Match, error)
	Update(ctx context.Context, exec SQLExecutor, id int, upd MatchUpdate) error
	CountUnfinished(ctx context.Context, exec SQLExecutor, tournamentID, round int) (int, error)
	GetWinners(ctx context.Context, exec SQLExecutor, tournamentID, round int) ([]int, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches
			(tournament_id, participant1_id, participant2_id, score1, score2,
			 winner_participant_id, round, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		match.TournamentID,
		match.Participant1ID,
		match.Participant2ID,
		match.Score1,
		match.Score2,
		match.WinnerParticipantID,
		match.Round,
		match.Status,
	).Scan(&match.ID, &match.CreatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `
		SELECT id, tournament_id, participant1_id, participant2_id, score1, score2,
		       winner_participant_id, round, status, created_at
		FROM matches
		WHERE id = $1`

	match := &models.Match{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&match.ID,
		&match.TournamentID,
		&match.Participant1ID,
		&match.Participant2ID,
		&match.Score1,
		&match.Score2,
		&match.WinnerParticipantID,
		&match.Round,
		&match.Status,
		&match.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, round *int) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT id, tournament_id, participant1_id, participant2_id, score1, score2,
		       winner_participant_id, round, status, created_at
		FROM matches
		WHERE tournament_id = $1`)

	args := []interface{}{tournamentID}
	if round != nil {
		queryBuilder.WriteString(" AND round = $2")
		args = append(args, *round)
	}
	queryBuilder.WriteString(" ORDER BY round ASC, id ASC")

	rows, err := r.getExecutor(exec).QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		var match models.Match
		if scanErr := rows.Scan(
			&match.ID,
			&match.TournamentID,
			&match.Participant1ID,
			&match.Participant2ID,
			&match.Score1,
			&match.Score2,
			&match.WinnerParticipantID,
			&match.Round,
			&match.Status,
			&match.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, &match)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) Update(ctx context.Context, exec SQLExecutor, id int, upd MatchUpdate) error {
	var setClauses []string
	var args []interface{}
	placeholder := 1

	addSet := func(column string, value interface{}) {
		setClauses = append(setClauses, column+" = $"+strconv.Itoa(placeholder))
		args = append(args, value)
		placeholder++
	}

	if upd.Participant1ID != nil {
		addSet("participant1_id", *upd.Participant1ID)
	}
	if upd.Participant2ID != nil {
		addSet("participant2_id", *upd.Participant2ID)
	}
	if upd.Score1 != nil {
		addSet("score1", *upd.Score1)
	}
	if upd.Score2 != nil {
		addSet("score2", *upd.Score2)
	}
	if upd.WinnerParticipantID != nil {
		addSet("winner_participant_id", *upd.WinnerParticipantID)
	}
	if upd.Status != nil {
		addSet("status", *upd.Status)
	}

	if len(setClauses) == 0 {
		return nil
	}

	query := "UPDATE matches SET " + strings.Join(setClauses, ", ") +
		" WHERE id = $" + strconv.Itoa(placeholder)
	args = append(args, id)

	result, err := r.getExecutor(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) CountUnfinished(ctx context.Context, exec SQLExecutor, tournamentID, round int) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM matches
		WHERE tournament_id = $1 AND round = $2 AND status NOT IN ($3, $4)`

	var count int
	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		tournamentID, round, models.MatchStatusFinished, models.MatchStatusCancelled,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unfinished matches for tournament %d round %d: %w", tournamentID, round, err)
	}
	return count, nil
}

func (r *postgresMatchRepository) GetWinners(ctx context.Context, exec SQLExecutor, tournamentID, round int) ([]int, error) {
	query := `
		SELECT winner_participant_id
		FROM matches
		WHERE tournament_id = $1 AND round = $2 AND winner_participant_id IS NOT NULL
		ORDER BY id ASC`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, tournamentID, round)
	if err != nil {
		return nil, fmt.Errorf("failed to query winners for tournament %d round %d: %w", tournamentID, round, err)
	}
	defer rows.Close()

	winners := make([]int, 0)
	for rows.Next() {
		var participantID int
		if scanErr := rows.Scan(&participantID); scanErr != nil {
			return nil, fmt.Errorf("failed to scan winner row: %w", scanErr)
		}
		winners = append(winners, participantID)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during winner rows iteration: %w", err)
	}
	return winners, nil
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "matches_tournament_id_fkey":
			return ErrMatchTournamentInvalid
		case "matches_participant1_id_fkey", "matches_participant2_id_fkey":
			return ErrMatchParticipantInvalid
		case "matches_winner_participant_id_fkey":
			return ErrMatchWinnerParticipantInvalid
		}
	}
	return err
}
