package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/freightdesk/loadboard/internal/models"
	"github.com/freightdesk/loadboard/internal/services"
	"github.com/freightdesk/loadboard/internal/utils"
)

// PostingHandler handles the posting HTTP endpoints.
type PostingHandler struct {
	Service *services.PostingService
	Logger  *log.Logger
	Timeout time.Duration
}

// NewPostingHandler creates a new PostingHandler.
func NewPostingHandler(service *services.PostingService, logger *log.Logger, timeout time.Duration) *PostingHandler {
	return &PostingHandler{
		Service: service,
		Logger:  logger,
		Timeout: timeout,
	}
}

func (h *PostingHandler) sendServiceError(w http.ResponseWriter, err error, fallback string) {
	h.Logger.Println(err)
	if errResp, ok := err.(*models.Error); ok {
		utils.SendError(w, errResp)
		return
	}
	utils.SendInternalError(w, fallback)
}

// CreatePosting handles POST /load-board/postings.
func (h *PostingHandler) CreatePosting(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req models.PostingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendBadRequest(w, "invalid request body")
		return
	}

	posting, err := h.Service.CreatePosting(ctx, req)
	if err != nil {
		h.sendServiceError(w, err, "failed to create posting")
		return
	}
	utils.SendJSON(w, http.StatusCreated, posting)
}

// GetPosting handles GET /load-board/postings/{postingId}.
func (h *PostingHandler) GetPosting(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	posting, err := h.Service.GetPosting(ctx, r.PathValue("postingId"))
	if err != nil {
		h.sendServiceError(w, err, "failed to fetch posting")
		return
	}
	utils.SendJSON(w, http.StatusOK, posting)
}

// UpdatePosting handles PUT /load-board/postings/{postingId}.
func (h *PostingHandler) UpdatePosting(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req models.PostingUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendBadRequest(w, "invalid request body")
		return
	}

	posting, err := h.Service.UpdatePosting(ctx, r.PathValue("postingId"), req)
	if err != nil {
		h.sendServiceError(w, err, "failed to update posting")
		return
	}
	utils.SendJSON(w, http.StatusOK, posting)
}

// CancelPosting handles POST /load-board/postings/{postingId}/cancel.
func (h *PostingHandler) CancelPosting(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	posting, err := h.Service.CancelPosting(ctx, r.PathValue("postingId"))
	if err != nil {
		h.sendServiceError(w, err, "failed to cancel posting")
		return
	}
	utils.SendJSON(w, http.StatusOK, posting)
}

// SearchPostings handles GET /load-board/postings/search.
func (h *PostingHandler) SearchPostings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	filter, err := parseSearchFilter(r)
	if err != nil {
		utils.SendBadRequest(w, err.Error())
		return
	}

	postings, err := h.Service.SearchPostings(ctx, *filter)
	if err != nil {
		h.sendServiceError(w, err, "failed to search postings")
		return
	}
	if postings == nil {
		postings = []models.Posting{}
	}
	utils.SendJSON(w, http.StatusOK, postings)
}

// ListPostingBids handles GET /load-board/postings/{postingId}/bids.
func (h *PostingHandler) ListPostingBids(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	limit, offset, err := utils.ParseLimitOffset(
		r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if err != nil {
		utils.SendBadRequest(w, err.Error())
		return
	}

	bids, err := h.Service.ListPostingBids(ctx, r.PathValue("postingId"), limit, offset)
	if err != nil {
		h.sendServiceError(w, err, "failed to list bids")
		return
	}
	if bids == nil {
		bids = []models.Bid{}
	}
	utils.SendJSON(w, http.StatusOK, bids)
}

func parseSearchFilter(r *http.Request) (*models.SearchFilter, error) {
	q := r.URL.Query()

	limit, offset, err := utils.ParseLimitOffset(q.Get("limit"), q.Get("offset"))
	if err != nil {
		return nil, err
	}

	filter := models.SearchFilter{
		OriginState: q.Get("originState"),
		OriginCity:  q.Get("originCity"),
		DestState:   q.Get("destState"),
		DestCity:    q.Get("destCity"),
		Limit:       limit,
		Offset:      offset,
	}

	if eq := q.Get("equipmentType"); eq != "" {
		filter.EquipmentTypes = splitCSV(eq)
	}
	if status := q.Get("status"); status != "" {
		st, err := models.ParsePostingStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = st
	}
	if from := q.Get("pickupFrom"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return nil, err
		}
		filter.PickupFrom = &t
	}
	if to := q.Get("pickupTo"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return nil, err
		}
		filter.PickupTo = &t
	}
	if filter.RateMin, err = utils.ParseOptionalFloat("rateMin", q.Get("rateMin")); err != nil {
		return nil, err
	}
	if filter.RateMax, err = utils.ParseOptionalFloat("rateMax", q.Get("rateMax")); err != nil {
		return nil, err
	}
	if filter.RadiusMiles, err = utils.ParseOptionalFloat("radiusMiles", q.Get("radiusMiles")); err != nil {
		return nil, err
	}
	return &filter, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
