package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Dosada05/pong-arena/models"
	"github.com/Dosada05/pong-arena/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMatchRepo struct {
	rows      map[int]*models.Match
	nextID    int
	createErr error
}

func newStubMatchRepo() *stubMatchRepo {
	return &stubMatchRepo{rows: make(map[int]*models.Match)}
}

func (s *stubMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	match.ID = s.nextID
	copied := *match
	s.rows[match.ID] = &copied
	return nil
}

func (s *stubMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	copied := *row
	return &copied, nil
}

func (s *stubMatchRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, round *int) ([]*models.Match, error) {
	var out []*models.Match
	for _, row := range s.rows {
		if row.TournamentID != tournamentID {
			continue
		}
		if round != nil && row.Round != *round {
			continue
		}
		copied := *row
		out = append(out, &copied)
	}
	return out, nil
}

func (s *stubMatchRepo) Update(ctx context.Context, exec repositories.SQLExecutor, id int, upd repositories.MatchUpdate) error {
	row, ok := s.rows[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	if upd.Participant1ID != nil {
		row.Participant1ID = upd.Participant1ID
	}
	if upd.Participant2ID != nil {
		row.Participant2ID = upd.Participant2ID
	}
	if upd.Score1 != nil {
		row.Score1 = *upd.Score1
	}
	if upd.Score2 != nil {
		row.Score2 = *upd.Score2
	}
	if upd.WinnerParticipantID != nil {
		row.WinnerParticipantID = upd.WinnerParticipantID
	}
	if upd.Status != nil {
		row.Status = *upd.Status
	}
	return nil
}

func (s *stubMatchRepo) CountUnfinished(ctx context.Context, exec repositories.SQLExecutor, tournamentID, round int) (int, error) {
	count := 0
	for _, row := range s.rows {
		if row.TournamentID == tournamentID && row.Round == round &&
			row.Status != models.MatchStatusFinished && row.Status != models.MatchStatusCancelled {
			count++
		}
	}
	return count, nil
}

func (s *stubMatchRepo) GetWinners(ctx context.Context, exec repositories.SQLExecutor, tournamentID, round int) ([]int, error) {
	var winners []int
	for _, row := range s.rows {
		if row.TournamentID == tournamentID && row.Round == round && row.WinnerParticipantID != nil {
			winners = append(winners, *row.WinnerParticipantID)
		}
	}
	return winners, nil
}

type stubParticipantRepo struct {
	rows      map[int]*models.Participant
	nextID    int
	createErr error
}

func newStubParticipantRepo() *stubParticipantRepo {
	return &stubParticipantRepo{rows: make(map[int]*models.Participant)}
}

func (s *stubParticipantRepo) Create(ctx context.Context, exec repositories.SQLExecutor, p *models.Participant) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	p.ID = s.nextID
	copied := *p
	s.rows[p.ID] = &copied
	return nil
}

func (s *stubParticipantRepo) GetByID(ctx context.Context, id int) (*models.Participant, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, repositories.ErrParticipantNotFound
	}
	return row, nil
}

func (s *stubParticipantRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Participant, error) {
	var out []*models.Participant
	for _, row := range s.rows {
		if row.TournamentID == tournamentID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *stubParticipantRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.ParticipantStatus) error {
	row, ok := s.rows[id]
	if !ok {
		return repositories.ErrParticipantNotFound
	}
	row.Status = status
	return nil
}

type stubTournamentRepo struct {
	rows   map[int]*models.Tournament
	nextID int
}

func newStubTournamentRepo() *stubTournamentRepo {
	return &stubTournamentRepo{rows: make(map[int]*models.Tournament)}
}

func (s *stubTournamentRepo) Create(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	s.nextID++
	t.ID = s.nextID
	copied := *t
	s.rows[t.ID] = &copied
	return nil
}

func (s *stubTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	copied := *row
	return &copied, nil
}

func (s *stubTournamentRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	row, ok := s.rows[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	row.Status = status
	return nil
}

func (s *stubTournamentRepo) UpdateCurrentRound(ctx context.Context, exec repositories.SQLExecutor, id int, round int) error {
	row, ok := s.rows[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	row.CurrentRound = round
	return nil
}

type stubSettingsRepo struct {
	settings *models.Settings
	err      error
}

func (s *stubSettingsRepo) GetByUserID(ctx context.Context, userID int) (*models.Settings, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.settings, nil
}

func (s *stubSettingsRepo) GetByTournamentID(ctx context.Context, tournamentID int) (*models.Settings, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.settings, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFinalRound(t *testing.T) {
	assert.Equal(t, 1, FinalRound(2))
	assert.Equal(t, 2, FinalRound(4))
}

func TestPairRandomConsumesEveryIDOnce(t *testing.T) {
	for _, ids := range [][]int{{1, 2}, {1, 2, 3, 4}, {5, 9, 13, 2, 7, 11}} {
		pairs, err := pairRandom(ids)
		require.NoError(t, err)
		require.Len(t, pairs, len(ids)/2)

		seen := make([]int, 0, len(ids))
		for _, pair := range pairs {
			seen = append(seen, pair[0], pair[1])
		}
		assert.ElementsMatch(t, ids, seen)
	}
}

func TestPairRandomRejectsOddCounts(t *testing.T) {
	for _, ids := range [][]int{nil, {}, {1}, {1, 2, 3}} {
		_, err := pairRandom(ids)
		assert.ErrorIs(t, err, ErrDatabase)
	}
}

type bracketFixture struct {
	service      BracketService
	mock         sqlmock.Sqlmock
	matches      *stubMatchRepo
	participants *stubParticipantRepo
	tournaments  *stubTournamentRepo
}

func newBracketFixture(t *testing.T) *bracketFixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &bracketFixture{
		mock:         mock,
		matches:      newStubMatchRepo(),
		participants: newStubParticipantRepo(),
		tournaments:  newStubTournamentRepo(),
	}
	settings := &stubSettingsRepo{settings: &models.Settings{ID: 1, UserID: 1, MaxScore: 3}}
	f.service = NewBracketService(db, f.tournaments, f.participants, f.matches, settings, testLogger())
	return f
}

func TestCreateTournamentRejectsUnsupportedSizes(t *testing.T) {
	f := newBracketFixture(t)

	for _, count := range []int{0, 1, 3, 5} {
		entries := make([]TournamentEntry, count)
		_, err := f.service.CreateTournament(context.Background(), 1, entries)
		assert.ErrorIs(t, err, ErrTournamentSize)
	}
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateTournamentSizeTwoStartsImmediately(t *testing.T) {
	f := newBracketFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	tournament, err := f.service.CreateTournament(context.Background(), 1, []TournamentEntry{
		{UserID: 1, Alias: "left"},
		{UserID: 2, Alias: "right"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.TournamentStatusInProgress, tournament.Status)
	assert.Equal(t, 2, tournament.Size)
	assert.Equal(t, 1, tournament.CurrentRound)

	require.Len(t, tournament.Participants, 2)
	for _, p := range tournament.Participants {
		assert.Equal(t, models.ParticipantStatusAccepted, p.Status)
	}

	require.Len(t, tournament.Matches, 1)
	assert.True(t, tournament.Matches[0].Ready())
	assert.Equal(t, 1, tournament.Matches[0].Round)
	assert.Equal(t, models.MatchStatusPending, tournament.Matches[0].Status)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateTournamentSizeFourWaitsForAccepts(t *testing.T) {
	f := newBracketFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	entries := []TournamentEntry{
		{UserID: 1, Alias: "a"},
		{UserID: 2, Alias: "b"},
		{UserID: 3, Alias: "c"},
		{UserID: 4, Alias: "d"},
	}
	tournament, err := f.service.CreateTournament(context.Background(), 1, entries)
	require.NoError(t, err)

	assert.Equal(t, models.TournamentStatusPending, tournament.Status)
	for _, p := range tournament.Participants {
		assert.Equal(t, models.ParticipantStatusPending, p.Status)
	}

	require.Len(t, tournament.Matches, 3)
	firstRound := 0
	var placeholder *models.Match
	participantIDs := make([]int, 0, 4)
	for i := range tournament.Matches {
		m := &tournament.Matches[i]
		if m.Round == 1 {
			firstRound++
			require.True(t, m.Ready())
			participantIDs = append(participantIDs, *m.Participant1ID, *m.Participant2ID)
		} else {
			placeholder = m
		}
	}
	assert.Equal(t, 2, firstRound)

	require.NotNil(t, placeholder)
	assert.Equal(t, 2, placeholder.Round)
	assert.False(t, placeholder.Ready())

	ids := make([]int, 0, 4)
	for _, p := range tournament.Participants {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, ids, participantIDs)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateTournamentMissingSettings(t *testing.T) {
	f := newBracketFixture(t)
	settings := &stubSettingsRepo{err: repositories.ErrSettingsNotFound}
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	service := NewBracketService(db, f.tournaments, f.participants, f.matches, settings, testLogger())

	_, err = service.CreateTournament(context.Background(), 1, []TournamentEntry{{UserID: 1}, {UserID: 2}})
	assert.ErrorIs(t, err, ErrSettingsNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTournamentRollsBackOnFailure(t *testing.T) {
	f := newBracketFixture(t)
	f.participants.createErr = errors.New("insert failed")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	tournament, err := f.service.CreateTournament(context.Background(), 1, []TournamentEntry{
		{UserID: 1}, {UserID: 2},
	})
	assert.Error(t, err)
	assert.Nil(t, tournament)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
