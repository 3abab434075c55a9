package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/pong-arena/models"
	"github.com/Dosada05/pong-arena/repositories"
	"github.com/Dosada05/pong-arena/storage"
	"golang.org/x/sync/errgroup"
)

type TournamentService interface {
	Bracket(ctx context.Context, tournamentID int) (*models.Tournament, error)
	ArchiveResult(ctx context.Context, tournamentID int) error
}

type tournamentService struct {
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	uploader        storage.FileUploader // optional
	logger          *slog.Logger
}

func NewTournamentService(
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	uploader storage.FileUploader,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		uploader:        uploader,
		logger:          logger,
	}
}

// Bracket assembles the tournament with its participants and matches, fetched
// in parallel.
func (s *tournamentService) Bracket(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	var (
		tournament   *models.Tournament
		participants []*models.Participant
		matches      []*models.Match
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		t, err := s.tournamentRepo.GetByID(gCtx, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return fmt.Errorf("%w: %d", ErrTournamentNotFound, tournamentID)
			}
			return fmt.Errorf("failed to load tournament %d: %w", tournamentID, err)
		}
		tournament = t
		return nil
	})

	g.Go(func() error {
		list, err := s.participantRepo.ListByTournament(gCtx, tournamentID)
		if err != nil {
			return fmt.Errorf("failed to list participants for tournament %d: %w", tournamentID, err)
		}
		participants = list
		return nil
	})

	g.Go(func() error {
		list, err := s.matchRepo.ListByTournament(gCtx, nil, tournamentID, nil)
		if err != nil {
			return fmt.Errorf("failed to list matches for tournament %d: %w", tournamentID, err)
		}
		matches = list
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	tournament.Participants = make([]models.Participant, 0, len(participants))
	for _, p := range participants {
		tournament.Participants = append(tournament.Participants, *p)
	}
	tournament.Matches = make([]models.Match, 0, len(matches))
	for _, m := range matches {
		tournament.Matches = append(tournament.Matches, *m)
	}
	return tournament, nil
}

type tournamentResult struct {
	TournamentID        int                  `json:"tournament_id"`
	Size                int                  `json:"size"`
	WinnerParticipantID *int                 `json:"winner_participant_id,omitempty"`
	WinnerAlias         string               `json:"winner_alias,omitempty"`
	Participants        []models.Participant `json:"participants"`
	Matches             []models.Match       `json:"matches"`
	ArchivedAt          time.Time            `json:"archived_at"`
}

// ArchiveResult uploads a JSON summary of a finished tournament to object
// storage. A nil uploader disables archiving.
func (s *tournamentService) ArchiveResult(ctx context.Context, tournamentID int) error {
	if s.uploader == nil {
		return nil
	}

	tournament, err := s.Bracket(ctx, tournamentID)
	if err != nil {
		return err
	}
	if tournament.Status != models.TournamentStatusFinished {
		return fmt.Errorf("%w: tournament %d is %s", ErrTournamentNotFinished, tournamentID, tournament.Status)
	}

	summary := tournamentResult{
		TournamentID: tournament.ID,
		Size:         tournament.Size,
		Participants: tournament.Participants,
		Matches:      tournament.Matches,
		ArchivedAt:   time.Now().UTC(),
	}
	finalRound := FinalRound(tournament.Size)
	for _, m := range tournament.Matches {
		if m.Round == finalRound && m.WinnerParticipantID != nil {
			summary.WinnerParticipantID = m.WinnerParticipantID
			for _, p := range tournament.Participants {
				if p.ID == *m.WinnerParticipantID {
					summary.WinnerAlias = p.Alias
				}
			}
		}
	}

	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal result for tournament %d: %w", tournamentID, err)
	}

	key := fmt.Sprintf("results/tournament_%d.json", tournamentID)
	uploaded, err := s.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}

	s.logger.Info("tournament result archived",
		slog.Int("tournament_id", tournamentID),
		slog.String("key", uploaded.Key),
		slog.String("location", uploaded.Location),
	)
	return nil
}
