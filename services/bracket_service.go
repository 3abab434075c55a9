package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/Dosada05/pong-arena/models"
	"github.com/Dosada05/pong-arena/repositories"
)

// TournamentEntry is one requested participant of a new tournament.
type TournamentEntry struct {
	UserID int    `json:"user_id"`
	Alias  string `json:"alias"`
}

type BracketService interface {
	CreateTournament(ctx context.Context, creatorID int, entries []TournamentEntry) (*models.Tournament, error)
}

type bracketService struct {
	db              *sql.DB
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	settingsRepo    repositories.SettingsRepository
	logger          *slog.Logger
}

func NewBracketService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	settingsRepo repositories.SettingsRepository,
	logger *slog.Logger,
) BracketService {
	return &bracketService{
		db:              db,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		settingsRepo:    settingsRepo,
		logger:          logger,
	}
}

// FinalRound returns the terminal round index for a bracket of the given
// size: 1 for two participants, one more for every halving above that. The
// round-completion check in the progression service uses the same function,
// never a duplicated formula.
func FinalRound(size int) int {
	round := 1
	for size > 2 {
		size /= 2
		round++
	}
	return round
}

// pairRandom shuffles the ids (Fisher-Yates via rand.Shuffle) and pairs them
// sequentially. Every id is consumed exactly once into len(ids)/2 disjoint
// pairs. Pairing is random by design, not seeded by standings.
func pairRandom(ids []int) ([][2]int, error) {
	if len(ids) == 0 || len(ids)%2 != 0 {
		return nil, fmt.Errorf("%w: cannot pair %d participants", ErrDatabase, len(ids))
	}

	shuffled := make([]int, len(ids))
	copy(shuffled, ids)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	pairs := make([][2]int, 0, len(shuffled)/2)
	for i := 0; i < len(shuffled); i += 2 {
		pairs = append(pairs, [2]int{shuffled[i], shuffled[i+1]})
	}
	return pairs, nil
}

func (s *bracketService) CreateTournament(ctx context.Context, creatorID int, entries []TournamentEntry) (tournament *models.Tournament, err error) {
	size := len(entries)
	if size != 2 && size != 4 {
		return nil, fmt.Errorf("%w: got %d participants", ErrTournamentSize, size)
	}

	settings, err := s.settingsRepo.GetByUserID(ctx, creatorID)
	if err != nil {
		if errors.Is(err, repositories.ErrSettingsNotFound) {
			return nil, fmt.Errorf("%w: creator %d", ErrSettingsNotFound, creatorID)
		}
		return nil, fmt.Errorf("failed to load settings for creator %d: %w", creatorID, err)
	}

	// A two-player tournament starts immediately; larger ones wait for every
	// participant to accept.
	tournamentStatus := models.TournamentStatusPending
	participantStatus := models.ParticipantStatusPending
	if size == 2 {
		tournamentStatus = models.TournamentStatusInProgress
		participantStatus = models.ParticipantStatusAccepted
	}

	tournament = &models.Tournament{
		CreatorID:    creatorID,
		Size:         size,
		CurrentRound: 1,
		SettingsID:   settings.ID,
		Status:       tournamentStatus,
	}

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
			tournament = nil
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("rollback failed", slog.Any("error", rbErr))
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			tournament = nil
			err = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()

	if err = s.tournamentRepo.Create(ctx, tx, tournament); err != nil {
		return nil, err
	}

	participantIDs := make([]int, 0, size)
	for _, entry := range entries {
		p := &models.Participant{
			UserID:       entry.UserID,
			TournamentID: tournament.ID,
			Status:       participantStatus,
			Alias:        entry.Alias,
		}
		if err = s.participantRepo.Create(ctx, tx, p); err != nil {
			return nil, err
		}
		participantIDs = append(participantIDs, p.ID)
		tournament.Participants = append(tournament.Participants, *p)
	}

	pairs, err := pairRandom(participantIDs)
	if err != nil {
		return nil, err
	}

	for _, pair := range pairs {
		p1, p2 := pair[0], pair[1]
		match := &models.Match{
			TournamentID:   tournament.ID,
			Participant1ID: &p1,
			Participant2ID: &p2,
			Round:          1,
			Status:         models.MatchStatusPending,
		}
		if err = s.matchRepo.Create(ctx, tx, match); err != nil {
			return nil, err
		}
		tournament.Matches = append(tournament.Matches, *match)
	}

	// Placeholder matches for the later rounds, slots filled as winners
	// advance.
	matchesInRound := size / 2
	for round := 2; matchesInRound > 1; round++ {
		matchesInRound /= 2
		for i := 0; i < matchesInRound; i++ {
			placeholder := &models.Match{
				TournamentID: tournament.ID,
				Round:        round,
				Status:       models.MatchStatusPending,
			}
			if err = s.matchRepo.Create(ctx, tx, placeholder); err != nil {
				return nil, err
			}
			tournament.Matches = append(tournament.Matches, *placeholder)
		}
	}

	s.logger.Info("tournament created",
		slog.Int("tournament_id", tournament.ID),
		slog.Int("size", size),
		slog.String("status", string(tournament.Status)),
	)
	return tournament, nil
}
