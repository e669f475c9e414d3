package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/freightdesk/loadboard/internal/models"
	"github.com/freightdesk/loadboard/internal/services"
	"github.com/freightdesk/loadboard/internal/utils"
)

// BidHandler handles the bid HTTP endpoints.
type BidHandler struct {
	Service *services.BidService
	Logger  *log.Logger
	Timeout time.Duration
}

// NewBidHandler creates a new BidHandler.
func NewBidHandler(service *services.BidService, logger *log.Logger, timeout time.Duration) *BidHandler {
	return &BidHandler{
		Service: service,
		Logger:  logger,
		Timeout: timeout,
	}
}

func (h *BidHandler) sendServiceError(w http.ResponseWriter, err error, fallback string) {
	h.Logger.Println(err)
	if errResp, ok := err.(*models.Error); ok {
		utils.SendError(w, errResp)
		return
	}
	utils.SendInternalError(w, fallback)
}

// decodeOptional decodes a JSON body into v, tolerating an empty body.
func decodeOptional(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// CreateBid handles POST /load-board/bids.
func (h *BidHandler) CreateBid(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req models.BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendBadRequest(w, "invalid request body")
		return
	}

	bid, err := h.Service.SubmitBid(ctx, req)
	if err != nil {
		h.sendServiceError(w, err, "failed to submit bid")
		return
	}
	utils.SendJSON(w, http.StatusCreated, bid)
}

// GetBid handles GET /load-board/bids/{bidId}.
func (h *BidHandler) GetBid(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bid, err := h.Service.GetBid(ctx, r.PathValue("bidId"))
	if err != nil {
		h.sendServiceError(w, err, "failed to fetch bid")
		return
	}
	utils.SendJSON(w, http.StatusOK, bid)
}

// ListMyBids handles GET /load-board/bids/my.
func (h *BidHandler) ListMyBids(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	limit, offset, err := utils.ParseLimitOffset(
		r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if err != nil {
		utils.SendBadRequest(w, err.Error())
		return
	}

	bids, err := h.Service.ListCarrierBids(ctx, r.URL.Query().Get("carrierId"), limit, offset)
	if err != nil {
		h.sendServiceError(w, err, "failed to list bids")
		return
	}
	if bids == nil {
		bids = []models.Bid{}
	}
	utils.SendJSON(w, http.StatusOK, bids)
}

// GetBidHistory handles GET /load-board/bids/{bidId}/history.
func (h *BidHandler) GetBidHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	history, err := h.Service.GetBidHistory(ctx, r.PathValue("bidId"))
	if err != nil {
		h.sendServiceError(w, err, "failed to fetch bid history")
		return
	}
	if history == nil {
		history = []models.BidOffer{}
	}
	utils.SendJSON(w, http.StatusOK, history)
}

// EditBid handles PUT /load-board/bids/{bidId}.
func (h *BidHandler) EditBid(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req models.BidUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendBadRequest(w, "invalid request body")
		return
	}

	bid, err := h.Service.EditBid(ctx, r.PathValue("bidId"), req)
	if err != nil {
		h.sendServiceError(w, err, "failed to update bid")
		return
	}
	utils.SendJSON(w, http.StatusOK, bid)
}

// Accept handles POST /load-board/bids/{bidId}/accept. The body is optional.
func (h *BidHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req struct {
		AcceptanceNotes string `json:"acceptanceNotes"`
	}
	if err := decodeOptional(r, &req); err != nil {
		utils.SendBadRequest(w, "invalid request body")
		return
	}

	bid, err := h.Service.AcceptBid(ctx, r.PathValue("bidId"))
	if err != nil {
		h.sendServiceError(w, err, "failed to accept bid")
		return
	}
	utils.SendJSON(w, http.StatusOK, bid)
}

// Reject handles POST /load-board/bids/{bidId}/reject.
func (h *BidHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req struct {
		RejectionReason string `json:"rejectionReason"`
	}
	if err := decodeOptional(r, &req); err != nil {
		utils.SendBadRequest(w, "invalid request body")
		return
	}

	bid, err := h.Service.RejectBid(ctx, r.PathValue("bidId"), req.RejectionReason)
	if err != nil {
		h.sendServiceError(w, err, "failed to reject bid")
		return
	}
	utils.SendJSON(w, http.StatusOK, bid)
}

// Counter handles POST /load-board/bids/{bidId}/counter.
func (h *BidHandler) Counter(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req struct {
		CounterAmount float64 `json:"counterAmount"`
		CounterNotes  string  `json:"counterNotes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendBadRequest(w, "invalid request body")
		return
	}

	bid, err := h.Service.CounterBid(ctx, r.PathValue("bidId"), req.CounterAmount)
	if err != nil {
		h.sendServiceError(w, err, "failed to counter bid")
		return
	}
	utils.SendJSON(w, http.StatusOK, bid)
}

// Resubmit handles POST /load-board/bids/{bidId}/resubmit. Without a body the
// carrier accepts the counter amount as-is.
func (h *BidHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req struct {
		BidAmount *float64 `json:"bidAmount"`
	}
	if err := decodeOptional(r, &req); err != nil {
		utils.SendBadRequest(w, "invalid request body")
		return
	}

	bid, err := h.Service.ResubmitBid(ctx, r.PathValue("bidId"), req.BidAmount)
	if err != nil {
		h.sendServiceError(w, err, "failed to re-submit bid")
		return
	}
	utils.SendJSON(w, http.StatusOK, bid)
}

// Withdraw handles POST /load-board/bids/{bidId}/withdraw.
func (h *BidHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bid, err := h.Service.WithdrawBid(ctx, r.PathValue("bidId"))
	if err != nil {
		h.sendServiceError(w, err, "failed to withdraw bid")
		return
	}
	utils.SendJSON(w, http.StatusOK, bid)
}
