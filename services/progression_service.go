package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/pong-arena/models"
	"github.com/Dosada05/pong-arena/repositories"
)

// PointResult reports what a scored point changed.
type PointResult struct {
	MatchFinished       bool
	RoundFinished       bool
	TournamentFinished  bool
	TournamentID        int
	Round               int
	Score1              int
	Score2              int
	WinnerParticipantID int
}

type MatchProgressionService interface {
	PointScored(ctx context.Context, matchID, participantID int) (*PointResult, error)
}

// ResultArchiver stores a summary of a finished tournament. Archiving is
// best-effort and never blocks or fails a point.
type ResultArchiver interface {
	ArchiveResult(ctx context.Context, tournamentID int) error
}

type matchProgressionService struct {
	db             *sql.DB
	matchRepo      repositories.MatchRepository
	tournamentRepo repositories.TournamentRepository
	settingsRepo   repositories.SettingsRepository
	archiver       ResultArchiver // optional
	logger         *slog.Logger
}

func NewMatchProgressionService(
	db *sql.DB,
	matchRepo repositories.MatchRepository,
	tournamentRepo repositories.TournamentRepository,
	settingsRepo repositories.SettingsRepository,
	archiver ResultArchiver,
	logger *slog.Logger,
) MatchProgressionService {
	return &matchProgressionService{
		db:             db,
		matchRepo:      matchRepo,
		tournamentRepo: tournamentRepo,
		settingsRepo:   settingsRepo,
		archiver:       archiver,
		logger:         logger,
	}
}

// PointScored applies one point for the given participant. When the point
// reaches the tournament's max score the match is finished and, if it closed
// its round, either the next round is paired or the tournament is finished.
// Every row update of one invocation applies in a single transaction.
func (s *matchProgressionService) PointScored(ctx context.Context, matchID, participantID int) (result *PointResult, err error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrMatchNotFound, matchID)
		}
		return nil, fmt.Errorf("failed to load match %d: %w", matchID, err)
	}

	result = &PointResult{
		TournamentID: match.TournamentID,
		Round:        match.Round,
		Score1:       match.Score1,
		Score2:       match.Score2,
	}

	// A point against an already finished match is a no-op; in particular it
	// never re-triggers round advancement.
	if match.Status == models.MatchStatusFinished {
		result.MatchFinished = true
		if match.WinnerParticipantID != nil {
			result.WinnerParticipantID = *match.WinnerParticipantID
		}
		return result, nil
	}

	switch {
	case match.Participant1ID != nil && *match.Participant1ID == participantID:
		result.Score1++
	case match.Participant2ID != nil && *match.Participant2ID == participantID:
		result.Score2++
	default:
		return nil, fmt.Errorf("%w: participant %d is not in match %d", ErrParticipantNotFound, participantID, matchID)
	}

	settings, err := s.settingsRepo.GetByTournamentID(ctx, match.TournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrSettingsNotFound) {
			return nil, fmt.Errorf("%w: tournament %d", ErrSettingsNotFound, match.TournamentID)
		}
		return nil, fmt.Errorf("failed to load settings for tournament %d: %w", match.TournamentID, err)
	}

	if result.Score1 < settings.MaxScore && result.Score2 < settings.MaxScore {
		upd := repositories.MatchUpdate{Score1: &result.Score1, Score2: &result.Score2}
		if err = s.matchRepo.Update(ctx, nil, matchID, upd); err != nil {
			return nil, fmt.Errorf("failed to update scores for match %d: %w", matchID, err)
		}
		return result, nil
	}

	// Max score reached: the match is over.
	result.MatchFinished = true
	result.WinnerParticipantID = participantID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			result = nil
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("rollback failed", slog.Any("error", rbErr))
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			result = nil
			err = fmt.Errorf("failed to commit transaction: %w", cErr)
			return
		}
		if result.TournamentFinished {
			s.archiveAsync(result.TournamentID)
		}
	}()

	finished := models.MatchStatusFinished
	upd := repositories.MatchUpdate{
		Score1:              &result.Score1,
		Score2:              &result.Score2,
		Status:              &finished,
		WinnerParticipantID: &participantID,
	}
	if err = s.matchRepo.Update(ctx, tx, matchID, upd); err != nil {
		return nil, fmt.Errorf("failed to finish match %d: %w", matchID, err)
	}

	// The just-finished match is already excluded: its update is visible on
	// this transaction.
	unfinished, err := s.matchRepo.CountUnfinished(ctx, tx, match.TournamentID, match.Round)
	if err != nil {
		return nil, err
	}
	if unfinished > 0 {
		return result, nil
	}
	result.RoundFinished = true

	tournament, err := s.tournamentRepo.GetByID(ctx, match.TournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrTournamentNotFound, match.TournamentID)
		}
		return nil, fmt.Errorf("failed to load tournament %d: %w", match.TournamentID, err)
	}

	if match.Round >= FinalRound(tournament.Size) {
		if err = s.tournamentRepo.UpdateStatus(ctx, tx, tournament.ID, models.TournamentStatusFinished); err != nil {
			return nil, fmt.Errorf("failed to finish tournament %d: %w", tournament.ID, err)
		}
		result.TournamentFinished = true
		return result, nil
	}

	if err = s.startNewRound(ctx, tx, tournament.ID, match.Round); err != nil {
		return nil, err
	}
	if err = s.tournamentRepo.UpdateCurrentRound(ctx, tx, tournament.ID, match.Round+1); err != nil {
		return nil, fmt.Errorf("failed to advance tournament %d to round %d: %w", tournament.ID, match.Round+1, err)
	}
	return result, nil
}

// startNewRound pairs the winners of the completed round into the next
// round's placeholder matches, on the caller's transaction.
func (s *matchProgressionService) startNewRound(ctx context.Context, exec repositories.SQLExecutor, tournamentID, completedRound int) error {
	winners, err := s.matchRepo.GetWinners(ctx, exec, tournamentID, completedRound)
	if err != nil {
		return err
	}
	if len(winners) == 0 {
		return fmt.Errorf("%w: no winners found for tournament %d round %d", ErrDatabase, tournamentID, completedRound)
	}

	nextRound := completedRound + 1
	placeholders, err := s.matchRepo.ListByTournament(ctx, exec, tournamentID, &nextRound)
	if err != nil {
		return err
	}

	pairs, err := pairRandom(winners)
	if err != nil {
		return err
	}

	unfilled := make([]*models.Match, 0, len(placeholders))
	for _, m := range placeholders {
		if !m.Ready() {
			unfilled = append(unfilled, m)
		}
	}
	if len(pairs) > len(unfilled) {
		return fmt.Errorf("%w: %d winner pairs but only %d open matches in tournament %d round %d",
			ErrDatabase, len(pairs), len(unfilled), tournamentID, nextRound)
	}

	for i, pair := range pairs {
		p1, p2 := pair[0], pair[1]
		upd := repositories.MatchUpdate{Participant1ID: &p1, Participant2ID: &p2}
		if err = s.matchRepo.Update(ctx, exec, unfilled[i].ID, upd); err != nil {
			return fmt.Errorf("failed to fill match %d for round %d: %w", unfilled[i].ID, nextRound, err)
		}
	}

	s.logger.Info("round paired",
		slog.Int("tournament_id", tournamentID),
		slog.Int("round", nextRound),
		slog.Int("pairs", len(pairs)),
	)
	return nil
}

func (s *matchProgressionService) archiveAsync(tournamentID int) {
	if s.archiver == nil {
		return
	}
	go func() {
		if err := s.archiver.ArchiveResult(context.Background(), tournamentID); err != nil {
			s.logger.Error("failed to archive tournament result",
				slog.Int("tournament_id", tournamentID),
				slog.Any("error", err),
			)
		}
	}()
}
