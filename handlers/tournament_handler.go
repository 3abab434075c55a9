package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Dosada05/pong-arena/middleware"
	"github.com/Dosada05/pong-arena/services"
	"github.com/go-chi/chi/v5"
)

type TournamentHandler struct {
	bracketService    services.BracketService
	tournamentService services.TournamentService
}

func NewTournamentHandler(bracketService services.BracketService, tournamentService services.TournamentService) *TournamentHandler {
	return &TournamentHandler{
		bracketService:    bracketService,
		tournamentService: tournamentService,
	}
}

type createTournamentInput struct {
	Participants []services.TournamentEntry `json:"participants"`
}

func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		errorResponse(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var input createTournamentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}
	if len(input.Participants) == 0 {
		badRequestResponse(w, errors.New("participants are required"))
		return
	}

	tournament, err := h.bracketService.CreateTournament(r.Context(), creatorID, input.Participants)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"tournament": tournament}); err != nil {
		serverErrorResponse(w)
	}
}

func (h *TournamentHandler) Bracket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		badRequestResponse(w, errors.New("invalid tournament id"))
		return
	}

	tournament, err := h.tournamentService.Bracket(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}); err != nil {
		serverErrorResponse(w)
	}
}
