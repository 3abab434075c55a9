package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/pong-arena/models"
	"github.com/Dosada05/pong-arena/repositories"
	"github.com/Dosada05/pong-arena/services"
)

type handlerFunc func(ctx context.Context, connID string, payload json.RawMessage) error

// Protocol is the single entry point for inbound wire messages. It owns the
// connection -> match registry, dispatches by message type and recovers from
// any handler failure by best-effort cancelling the caller's match, so one
// bad message never halts other connections.
//
// Dispatch is sequential: the hub feeds messages one at a time, so handlers
// mutate the registry and runtime matches without further coordination.
type Protocol struct {
	registry        *Registry
	conns           ConnRegistry
	progression     services.MatchProgressionService
	matchRepo       repositories.MatchRepository
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	logger          *slog.Logger
	handlers        map[string]handlerFunc
}

func NewProtocol(
	registry *Registry,
	conns ConnRegistry,
	progression services.MatchProgressionService,
	matchRepo repositories.MatchRepository,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	logger *slog.Logger,
) *Protocol {
	p := &Protocol{
		registry:        registry,
		conns:           conns,
		progression:     progression,
		matchRepo:       matchRepo,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		logger:          logger,
	}
	p.handlers = map[string]handlerFunc{
		TypeInitiate:  p.handleInitiate,
		TypeAccept:    p.handleAccept,
		TypeDecline:   p.handleDecline,
		TypeMove:      p.handleMove,
		TypeGameState: p.handleGameState,
		TypePoint:     p.handlePoint,
		TypePause:     p.handlePause,
		TypeQuit:      p.handleQuit,
	}
	return p
}

// Registry exposes the connection -> match registry, mainly for tests.
func (p *Protocol) Registry() *Registry {
	return p.registry
}

// HandleMessage parses and dispatches one inbound message. Unknown types are
// logged and ignored; any other failure cancels the caller's match.
func (p *Protocol) HandleMessage(ctx context.Context, connID string, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			p.fail(ctx, connID, fmt.Errorf("%w: handler panic: %v", services.ErrProtocol, rec))
		}
	}()

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		p.fail(ctx, connID, fmt.Errorf("%w: malformed message: %v", services.ErrProtocol, err))
		return
	}

	handler, ok := p.handlers[msg.Type]
	if !ok {
		p.logger.Warn("unknown message type ignored",
			slog.String("type", msg.Type),
			slog.String("connection_id", connID),
		)
		return
	}

	if err := handler(ctx, connID, msg.Payload); err != nil {
		p.fail(ctx, connID, fmt.Errorf("%s: %w", msg.Type, err))
	}
}

// Disconnect handles a dropped socket: a live match cannot continue without
// the player, so it takes the cancellation path.
func (p *Protocol) Disconnect(ctx context.Context, connID string) {
	match, ok := p.registry.ByConnection(connID)
	if !ok {
		return
	}
	p.logger.Info("connection lost, cancelling match",
		slog.String("connection_id", connID),
		slog.Int("match_id", match.MatchID),
	)
	p.cancelMatch(ctx, match)
}

func (p *Protocol) fail(ctx context.Context, connID string, err error) {
	p.logger.Error("message handling failed",
		slog.String("connection_id", connID),
		slog.Any("error", err),
	)
	if match, ok := p.registry.ByConnection(connID); ok {
		p.cancelMatch(ctx, match)
	}
}

// cancelMatch persists the cancellation, notifies the players and purges
// every registry entry of the match. Safe to call repeatedly: a match that is
// already terminal is only purged.
func (p *Protocol) cancelMatch(ctx context.Context, match *Match) {
	if !match.Terminal() {
		match.Status = models.MatchStatusCancelled
		cancelled := models.MatchStatusCancelled
		upd := repositories.MatchUpdate{Status: &cancelled}
		if err := p.matchRepo.Update(ctx, nil, match.MatchID, upd); err != nil {
			p.logger.Error("failed to persist match cancellation",
				slog.Int("match_id", match.MatchID),
				slog.Any("error", err),
			)
		}
		p.sendToPlayers(match.Players, encodeMessage(TypeQuit, nil))
	}
	p.registry.RemoveMatch(match.MatchID)
}

// --- handlers ---

func (p *Protocol) handleInitiate(ctx context.Context, connID string, payload json.RawMessage) error {
	var in InitiatePayload
	if err := json.Unmarshal(payload, &in); err != nil || in.MatchID == 0 {
		return fmt.Errorf("%w: initiate requires a match id", services.ErrProtocol)
	}

	if _, ok := p.registry.ByConnection(connID); ok {
		return fmt.Errorf("%w: connection already bound to a match", services.ErrProtocol)
	}

	caller := p.conns.GetConnectionByID(connID)
	if caller == nil {
		return fmt.Errorf("%w: caller %s", services.ErrConnection, connID)
	}

	row, err := p.loadMatch(ctx, in.MatchID)
	if err != nil {
		return err
	}
	if !row.Ready() {
		return fmt.Errorf("%w: match %d has an unfilled slot", services.ErrMatchNotReady, row.ID)
	}

	players := make([]*Player, 0, 2)
	for _, participantID := range []int{*row.Participant1ID, *row.Participant2ID} {
		participant, err := p.participantRepo.GetByID(ctx, participantID)
		if err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				return fmt.Errorf("%w: %d", services.ErrParticipantNotFound, participantID)
			}
			return fmt.Errorf("failed to load participant %d: %w", participantID, err)
		}
		status := PlayerStatusPending
		if participant.UserID == caller.UserID() {
			status = PlayerStatusAccepted
		}
		players = append(players, &Player{
			UserID:        participant.UserID,
			ParticipantID: participant.ID,
			Status:        status,
		})
	}

	// Every player needs a live socket before anything is registered.
	resolved := make([]Conn, 0, len(players))
	for _, player := range players {
		conn := p.conns.GetConnectionByUserID(player.UserID)
		if conn == nil {
			return fmt.Errorf("%w: user %d has no live connection", services.ErrConnection, player.UserID)
		}
		resolved = append(resolved, conn)
	}

	match := NewMatch(row.ID, caller.UserID(), players)
	for _, conn := range resolved {
		p.registry.Register(conn.ConnectionID(), match)
	}

	invite := encodeMessage(TypeInitiate, map[string]int{
		"match_id":     match.MatchID,
		"from_user_id": caller.UserID(),
	})
	for _, conn := range resolved {
		if conn.ConnectionID() == connID {
			continue
		}
		if err := conn.Send(invite); err != nil {
			p.logger.Warn("failed to deliver invite",
				slog.String("connection_id", conn.ConnectionID()),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

func (p *Protocol) handleAccept(ctx context.Context, connID string, payload json.RawMessage) error {
	caller := p.conns.GetConnectionByID(connID)
	if caller == nil {
		return fmt.Errorf("%w: caller %s", services.ErrConnection, connID)
	}

	if match, ok := p.registry.ByConnection(connID); ok {
		return p.acceptMatch(ctx, caller, match)
	}

	var in AcceptPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &in); err != nil {
			return fmt.Errorf("%w: malformed accept payload", services.ErrProtocol)
		}
	}
	return p.acceptTournament(ctx, caller, in.TournamentID)
}

func (p *Protocol) acceptMatch(ctx context.Context, caller Conn, match *Match) error {
	player := match.Player(caller.UserID())
	if player == nil {
		return fmt.Errorf("%w: user %d is not seated in match %d", services.ErrProtocol, caller.UserID(), match.MatchID)
	}
	player.Status = PlayerStatusAccepted

	notice := encodeMessage(TypeAccept, map[string]int{"user_id": caller.UserID()})
	for _, other := range match.Players {
		if other.UserID == caller.UserID() {
			continue
		}
		p.sendToUser(other.UserID, notice)
	}

	if match.Status != models.MatchStatusPending || !match.AllAccepted() {
		return nil
	}

	// Re-read the persisted status before flipping: two near-simultaneous
	// accepts each re-check the full set, and only the one that still sees
	// the pending row starts the match.
	row, err := p.loadMatch(ctx, match.MatchID)
	if err != nil {
		return err
	}
	if row.Status != models.MatchStatusPending {
		match.Status = row.Status
		return nil
	}

	inProgress := models.MatchStatusInProgress
	if err := p.matchRepo.Update(ctx, nil, match.MatchID, repositories.MatchUpdate{Status: &inProgress}); err != nil {
		return fmt.Errorf("failed to start match %d: %w", match.MatchID, err)
	}
	match.Status = models.MatchStatusInProgress

	p.sendToPlayers(match.Players, encodeMessage(TypeMatchStart, map[string]int{"match_id": match.MatchID}))
	p.logger.Info("match started", slog.Int("match_id", match.MatchID))
	return nil
}

func (p *Protocol) acceptTournament(ctx context.Context, caller Conn, tournamentID int) error {
	if tournamentID == 0 {
		return fmt.Errorf("%w: accept outside a match requires a tournament id", services.ErrProtocol)
	}

	participants, err := p.participantRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to list participants for tournament %d: %w", tournamentID, err)
	}

	var mine *models.Participant
	for _, participant := range participants {
		if participant.UserID == caller.UserID() {
			mine = participant
			break
		}
	}
	if mine == nil {
		return fmt.Errorf("%w: user %d in tournament %d", services.ErrParticipantNotFound, caller.UserID(), tournamentID)
	}

	if mine.Status != models.ParticipantStatusAccepted {
		if err := p.participantRepo.UpdateStatus(ctx, nil, mine.ID, models.ParticipantStatusAccepted); err != nil {
			return fmt.Errorf("failed to accept participant %d: %w", mine.ID, err)
		}
	}

	// The "all accepted" check runs after recording this acceptance, against
	// fresh rows, so any interleaving of accepts converges on one start.
	participants, err = p.participantRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to re-list participants for tournament %d: %w", tournamentID, err)
	}
	for _, participant := range participants {
		if participant.Status != models.ParticipantStatusAccepted {
			return nil
		}
	}

	tournament, err := p.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return fmt.Errorf("%w: %d", services.ErrTournamentNotFound, tournamentID)
		}
		return fmt.Errorf("failed to load tournament %d: %w", tournamentID, err)
	}
	if tournament.Status != models.TournamentStatusPending {
		return nil
	}

	if err := p.tournamentRepo.UpdateStatus(ctx, nil, tournamentID, models.TournamentStatusInProgress); err != nil {
		return fmt.Errorf("failed to start tournament %d: %w", tournamentID, err)
	}

	start := encodeMessage(TypeTournamentStart, map[string]int{"tournament_id": tournamentID})
	for _, participant := range participants {
		p.sendToUser(participant.UserID, start)
	}
	p.logger.Info("tournament started", slog.Int("tournament_id", tournamentID))
	return nil
}

func (p *Protocol) handleMove(ctx context.Context, connID string, payload json.RawMessage) error {
	match, ok := p.registry.ByConnection(connID)
	if !ok {
		return fmt.Errorf("%w: no match for connection %s", services.ErrMatchNotFound, connID)
	}

	current, others, err := p.resolvePlayers(match, connID)
	if err != nil {
		return err
	}

	var in MovePayload
	if err := json.Unmarshal(payload, &in); err != nil {
		return fmt.Errorf("%w: malformed move payload", services.ErrProtocol)
	}

	// Fixed policy: the reported position is recorded as the authoritative
	// runtime state, then the message is relayed to the other players.
	current.player.PaddlePosition = in.PaddlePosition
	if match.Status == models.MatchStatusPaused {
		match.Status = models.MatchStatusInProgress
	}

	relay := encodeMessage(TypeMove, json.RawMessage(payload))
	for _, other := range others {
		if sendErr := other.conn.Send(relay); sendErr != nil {
			p.logger.Warn("failed to relay move",
				slog.String("connection_id", other.conn.ConnectionID()),
				slog.Any("error", sendErr),
			)
		}
	}
	return nil
}

func (p *Protocol) handleGameState(ctx context.Context, connID string, payload json.RawMessage) error {
	match, ok := p.registry.ByConnection(connID)
	if !ok {
		return fmt.Errorf("%w: no match for connection %s", services.ErrMatchNotFound, connID)
	}

	current, others, err := p.resolvePlayers(match, connID)
	if err != nil {
		return err
	}

	// Full snapshot: every player receives it, sender included.
	relay := encodeMessage(TypeGameState, json.RawMessage(payload))
	for _, pc := range append(others, current) {
		if sendErr := pc.conn.Send(relay); sendErr != nil {
			p.logger.Warn("failed to relay game state",
				slog.String("connection_id", pc.conn.ConnectionID()),
				slog.Any("error", sendErr),
			)
		}
	}
	return nil
}

func (p *Protocol) handlePoint(ctx context.Context, connID string, payload json.RawMessage) error {
	match, ok := p.registry.ByConnection(connID)
	if !ok {
		return fmt.Errorf("%w: no match for connection %s", services.ErrMatchNotFound, connID)
	}

	var in PointPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		return fmt.Errorf("%w: malformed point payload", services.ErrProtocol)
	}
	player := match.Player(in.UserID)
	if player == nil {
		return fmt.Errorf("%w: scoring player %d not found in match %d", services.ErrProtocol, in.UserID, match.MatchID)
	}

	player.Score++
	result, err := p.progression.PointScored(ctx, match.MatchID, player.ParticipantID)
	if err != nil {
		return err
	}

	p.sendToPlayers(match.Players, encodeMessage(TypePoint, json.RawMessage(payload)))

	if !result.MatchFinished {
		return nil
	}
	match.Status = models.MatchStatusFinished

	if result.TournamentID == 0 {
		return fmt.Errorf("%w: finished match %d has no tournament", services.ErrDatabase, match.MatchID)
	}
	participants, err := p.participantRepo.ListByTournament(ctx, result.TournamentID)
	if err != nil {
		return fmt.Errorf("failed to list participants for tournament %d: %w", result.TournamentID, err)
	}
	if len(participants) == 0 {
		return fmt.Errorf("%w: tournament %d has no participants", services.ErrDatabase, result.TournamentID)
	}

	finishedMsg := encodeMessage(TypeMatchFinished, map[string]interface{}{
		"match_id":              match.MatchID,
		"winner_participant_id": result.WinnerParticipantID,
		"tournament_finished":   result.TournamentFinished,
	})
	for _, participant := range participants {
		p.sendToUser(participant.UserID, finishedMsg)
	}

	p.registry.RemoveMatch(match.MatchID)
	p.logger.Info("match finished",
		slog.Int("match_id", match.MatchID),
		slog.Int("winner_participant_id", result.WinnerParticipantID),
		slog.Bool("tournament_finished", result.TournamentFinished),
	)
	return nil
}

func (p *Protocol) handlePause(ctx context.Context, connID string, payload json.RawMessage) error {
	match, ok := p.registry.ByConnection(connID)
	if !ok {
		return fmt.Errorf("%w: no match for connection %s", services.ErrMatchNotFound, connID)
	}

	caller := p.conns.GetConnectionByID(connID)
	if caller == nil {
		return fmt.Errorf("%w: caller %s", services.ErrConnection, connID)
	}

	notice := encodeMessage(TypePause, map[string]int{"user_id": caller.UserID()})
	for _, other := range match.Players {
		if other.UserID == caller.UserID() {
			continue
		}
		p.sendToUser(other.UserID, notice)
	}

	// Transient: the pause is never persisted.
	if match.Status == models.MatchStatusInProgress {
		match.Status = models.MatchStatusPaused
	}
	return nil
}

func (p *Protocol) handleQuit(ctx context.Context, connID string, payload json.RawMessage) error {
	match, ok := p.registry.ByConnection(connID)
	if !ok {
		// Repeated quit for a purged match is a no-op.
		p.logger.Info("quit for unmapped connection ignored", slog.String("connection_id", connID))
		return nil
	}
	p.cancelMatch(ctx, match)
	return nil
}

func (p *Protocol) handleDecline(ctx context.Context, connID string, payload json.RawMessage) error {
	if match, ok := p.registry.ByConnection(connID); ok {
		p.cancelMatch(ctx, match)
		return nil
	}
	// A declined tournament invite leaves the participant row pending, which
	// already blocks the tournament from starting.
	p.logger.Info("decline outside a match ignored", slog.String("connection_id", connID))
	return nil
}

// --- helpers ---

type playerConn struct {
	player *Player
	conn   Conn
}

// resolvePlayers splits the match into the caller's seat and the rest. Every
// player must have a live connection; failing that, nothing has been mutated
// yet and ErrConnection is returned.
func (p *Protocol) resolvePlayers(match *Match, connID string) (playerConn, []playerConn, error) {
	var current playerConn
	others := make([]playerConn, 0, len(match.Players)-1)

	for _, player := range match.Players {
		conn := p.conns.GetConnectionByUserID(player.UserID)
		if conn == nil {
			return playerConn{}, nil, fmt.Errorf("%w: user %d has no live connection", services.ErrConnection, player.UserID)
		}
		if conn.ConnectionID() == connID {
			current = playerConn{player: player, conn: conn}
			continue
		}
		others = append(others, playerConn{player: player, conn: conn})
	}

	if current.player == nil {
		return playerConn{}, nil, fmt.Errorf("%w: connection %s is not a player of match %d", services.ErrProtocol, connID, match.MatchID)
	}
	return current, others, nil
}

func (p *Protocol) loadMatch(ctx context.Context, matchID int) (*models.Match, error) {
	row, err := p.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, fmt.Errorf("%w: %d", services.ErrMatchNotFound, matchID)
		}
		return nil, fmt.Errorf("failed to load match %d: %w", matchID, err)
	}
	return row, nil
}

// sendToPlayers delivers to every player's live connection. Sends are
// isolated: one failed or missing recipient never blocks the rest.
func (p *Protocol) sendToPlayers(players []*Player, text string) {
	for _, player := range players {
		p.sendToUser(player.UserID, text)
	}
}

func (p *Protocol) sendToUser(userID int, text string) {
	conn := p.conns.GetConnectionByUserID(userID)
	if conn == nil {
		p.logger.Warn("no live connection for user", slog.Int("user_id", userID))
		return
	}
	if err := conn.Send(text); err != nil {
		p.logger.Warn("failed to deliver message",
			slog.Int("user_id", userID),
			slog.Any("error", err),
		)
	}
}
