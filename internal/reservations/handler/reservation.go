package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"reservo/internal/reservations/service"
	apperrors "reservo/pkg/errors"
	httputil "reservo/pkg/http"
	"reservo/pkg/logger"
	"reservo/pkg/middleware"
	"reservo/pkg/model"
)

type ReservationHandler struct {
	service service.ReservationService
	log     *logger.Logger
}

func NewReservationHandler(service service.ReservationService, log *logger.Logger) *ReservationHandler {
	return &ReservationHandler{
		service: service,
		log:     log,
	}
}

func (h *ReservationHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/reservations", h.Book)
	router.GET("/api/v1/reservations/search", h.Search)
	router.GET("/api/v1/reservations/id/:id", h.GetByID)
	router.DELETE("/api/v1/reservations/id/:id", h.Cancel)
	router.POST("/api/v1/reservations/id/:id/proposals", h.ProposeChange)
	router.GET("/api/v1/reservations/id/:id/proposals", h.ListProposals)
	router.GET("/api/v1/proposals/id/:id", h.GetProposal)
	router.POST("/api/v1/proposals/id/:id/response", h.Respond)
}

func (h *ReservationHandler) Book(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := h.caller(w, r, "Book")
	if !ok {
		return
	}

	var req model.ReservationRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, "Book", err)
		return
	}

	reservation, err := h.service.Book(r.Context(), caller, &req)
	if err != nil {
		h.writeError(w, "Book", err)
		return
	}

	if err := httputil.WriteCreated(w, reservation); err != nil {
		h.log.Error("failed to write created response", "handler", "Book", "operation", "WriteCreated", "error", err)
	}
}

func (h *ReservationHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r, "GetByID")
	if !ok {
		return
	}

	reservation, err := h.service.GetReservation(r.Context(), caller, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, reservation); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Search(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := h.caller(w, r, "Search")
	if !ok {
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "Search", err)
		return
	}
	from, err := httputil.ExtractTime(r, "start_time")
	if err != nil {
		h.writeError(w, "Search", err)
		return
	}
	to, err := httputil.ExtractTime(r, "end_time")
	if err != nil {
		h.writeError(w, "Search", err)
		return
	}

	query := service.SearchQuery{
		RoomID: r.URL.Query().Get("room_id"),
		From:   from,
		To:     to,
	}

	reservations, total, err := h.service.SearchReservations(r.Context(), caller, query, limit, offset)
	if err != nil {
		h.writeError(w, "Search", err)
		return
	}

	if err := httputil.WritePaginated(w, reservations, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "Search", "operation", "WritePaginated", "error", err)
	}
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r, "Cancel")
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), caller, ps.ByName("id")); err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *ReservationHandler) ProposeChange(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r, "ProposeChange")
	if !ok {
		return
	}

	var slot model.Slot
	if err := decodeBody(r, &slot); err != nil {
		h.writeError(w, "ProposeChange", err)
		return
	}

	proposal, err := h.service.ProposeChange(r.Context(), caller, ps.ByName("id"), &slot)
	if err != nil {
		h.writeError(w, "ProposeChange", err)
		return
	}

	if err := httputil.WriteCreated(w, proposal); err != nil {
		h.log.Error("failed to write created response", "handler", "ProposeChange", "operation", "WriteCreated", "error", err)
	}
}

func (h *ReservationHandler) ListProposals(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r, "ListProposals")
	if !ok {
		return
	}

	proposals, err := h.service.ListProposals(r.Context(), caller, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "ListProposals", err)
		return
	}

	if err := httputil.WriteSuccess(w, proposals); err != nil {
		h.log.Error("failed to write success response", "handler", "ListProposals", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) GetProposal(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r, "GetProposal")
	if !ok {
		return
	}

	proposal, err := h.service.GetProposal(r.Context(), caller, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetProposal", err)
		return
	}

	if err := httputil.WriteSuccess(w, proposal); err != nil {
		h.log.Error("failed to write success response", "handler", "GetProposal", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Respond(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r, "Respond")
	if !ok {
		return
	}

	var resp model.ProposalResponse
	if err := decodeBody(r, &resp); err != nil {
		h.writeError(w, "Respond", err)
		return
	}
	if resp.Approve == nil {
		h.writeError(w, "Respond", apperrors.Validation("approve is required", map[string]any{"approve": "required"}))
		return
	}

	proposal, err := h.service.RespondToChange(r.Context(), caller, ps.ByName("id"), *resp.Approve)
	if err != nil {
		h.writeError(w, "Respond", err)
		return
	}

	if err := httputil.WriteSuccess(w, proposal); err != nil {
		h.log.Error("failed to write success response", "handler", "Respond", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) caller(w http.ResponseWriter, r *http.Request, handler string) (model.Caller, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		h.writeError(w, handler, apperrors.Unauthorized("caller identity is required"))
		return model.Caller{}, false
	}
	return caller, true
}

func (h *ReservationHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func decodeBody(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperrors.New("PAYLOAD_TOO_LARGE", "Request body too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, io.EOF):
			return apperrors.InvalidInput("Request body is required")
		default:
			return apperrors.InvalidInput("Invalid request body").WithCause(err)
		}
	}
	return nil
}
