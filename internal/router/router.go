package router

import (
	"net/http"

	"github.com/freightdesk/loadboard/internal/handlers"
)

// InitRoutes wires the HTTP surface. Method-prefixed patterns let the mux
// reject wrong verbs, so handlers never check r.Method themselves.
func InitRoutes(postingHandler *handlers.PostingHandler, bidHandler *handlers.BidHandler, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/ping", handlers.PingHandler)
	mux.Handle("GET /metrics", metricsHandler)

	mux.HandleFunc("POST /load-board/postings", postingHandler.CreatePosting)
	mux.HandleFunc("GET /load-board/postings/search", postingHandler.SearchPostings)
	mux.HandleFunc("GET /load-board/postings/{postingId}", postingHandler.GetPosting)
	mux.HandleFunc("PUT /load-board/postings/{postingId}", postingHandler.UpdatePosting)
	mux.HandleFunc("POST /load-board/postings/{postingId}/cancel", postingHandler.CancelPosting)
	mux.HandleFunc("GET /load-board/postings/{postingId}/bids", postingHandler.ListPostingBids)

	mux.HandleFunc("POST /load-board/bids", bidHandler.CreateBid)
	mux.HandleFunc("GET /load-board/bids/my", bidHandler.ListMyBids)
	mux.HandleFunc("GET /load-board/bids/{bidId}", bidHandler.GetBid)
	mux.HandleFunc("PUT /load-board/bids/{bidId}", bidHandler.EditBid)
	mux.HandleFunc("GET /load-board/bids/{bidId}/history", bidHandler.GetBidHistory)
	mux.HandleFunc("POST /load-board/bids/{bidId}/accept", bidHandler.Accept)
	mux.HandleFunc("POST /load-board/bids/{bidId}/reject", bidHandler.Reject)
	mux.HandleFunc("POST /load-board/bids/{bidId}/counter", bidHandler.Counter)
	mux.HandleFunc("POST /load-board/bids/{bidId}/resubmit", bidHandler.Resubmit)
	mux.HandleFunc("POST /load-board/bids/{bidId}/withdraw", bidHandler.Withdraw)

	return mux
}
