// Package api exposes the auction engine and the token ledger over HTTP.
// Callers identify themselves with the X-Account header; the deployment in
// front of this service is expected to authenticate that identity.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tomsrud/auctionhouse/internal/auction"
	"github.com/tomsrud/auctionhouse/internal/ledger"
	"github.com/tomsrud/auctionhouse/internal/store"
)

// accountHeader carries the caller's ledger account.
const accountHeader = "X-Account"

// Server handles the HTTP API.
type Server struct {
	auctions *auction.Manager
	ledger   *ledger.Manager
	admin    string
	logger   *slog.Logger
}

// NewServer returns a Server. admin is the only account allowed to mint.
func NewServer(auctions *auction.Manager, ledger *ledger.Manager, admin string, logger *slog.Logger) *Server {
	return &Server{
		auctions: auctions,
		ledger:   ledger,
		admin:    admin,
		logger:   logger,
	}
}

// Routes registers all API handlers on the given mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/auctions", s.handleCreateAuction)
	mux.HandleFunc("GET /v1/auctions", s.handleListAuctions)
	mux.HandleFunc("GET /v1/auctions/{id}", s.handleGetAuction)
	mux.HandleFunc("POST /v1/auctions/{id}/bids", s.handlePlaceBid)
	mux.HandleFunc("POST /v1/auctions/{id}/close", s.handleCloseAuction)
	mux.HandleFunc("POST /v1/auctions/{id}/cancel", s.handleCancelAuction)
	mux.HandleFunc("POST /v1/ledger/mint", s.handleMint)
	mux.HandleFunc("GET /v1/ledger/balance", s.handleBalance)
}

type createAuctionRequest struct {
	// Seller defaults to the calling account.
	Seller       string `json:"seller,omitempty"`
	TokenDenom   string `json:"token_denom"`
	MinIncrement int64  `json:"min_increment"`
	// Exactly one of the three close conditions must be set.
	ExpiresHeight uint64 `json:"expires_height,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	BySeller      bool   `json:"by_seller,omitempty"`
}

func (s *Server) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conditions := 0
	for _, set := range []bool{req.BySeller, req.ExpiresHeight > 0, req.ExpiresAt != ""} {
		if set {
			conditions++
		}
	}
	if conditions > 1 {
		writeError(w, http.StatusBadRequest, "exactly one of by_seller, expires_height and expires_at may be set")
		return
	}

	var expires auction.Expiration
	switch {
	case req.BySeller:
		expires = auction.BySeller()
	case req.ExpiresHeight > 0:
		expires = auction.AtHeight(req.ExpiresHeight)
	case req.ExpiresAt != "":
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "expires_at must be RFC 3339")
			return
		}
		expires = auction.AtTime(t)
	}

	seller := req.Seller
	if seller == "" {
		seller = caller
	}

	a, err := s.auctions.Create(r.Context(), seller, req.TokenDenom, req.MinIncrement, expires)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.Snapshot())
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	snap, err := s.auctions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type listAuctionsResponse struct {
	Auctions []string `json:"auctions"`
}

func (s *Server) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	ids, err := s.auctions.List(r.Context(), q.Get("start_after"), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listAuctionsResponse{Auctions: ids})
}

type placeBidRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := r.PathValue("id")
	if err := s.auctions.PlaceBid(r.Context(), id, caller, req.Amount); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	snap, err := s.auctions.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type closeAuctionResponse struct {
	Status string `json:"status"`
	Winner string `json:"winner,omitempty"`
	Amount int64  `json:"amount,omitempty"`
}

func (s *Server) handleCloseAuction(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	winner, err := s.auctions.Close(r.Context(), r.PathValue("id"), caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := closeAuctionResponse{Status: "closed"}
	if winner != nil {
		resp.Winner = winner.Bidder
		resp.Amount = winner.Amount
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelAuction(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	if err := s.auctions.Cancel(r.Context(), r.PathValue("id"), caller); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type mintRequest struct {
	Account string `json:"account"`
	Denom   string `json:"denom"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if caller != s.admin {
		writeError(w, http.StatusForbidden, "only the admin account may mint")
		return
	}

	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Account == "" || req.Denom == "" {
		writeError(w, http.StatusBadRequest, "account and denom are required")
		return
	}

	if err := s.ledger.Mint(r.Context(), req.Account, req.Denom, req.Amount, req.Reason); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "minted"})
}

type balanceResponse struct {
	Account string `json:"account"`
	Denom   string `json:"denom"`
	Amount  int64  `json:"amount"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	account, denom := q.Get("account"), q.Get("denom")
	if account == "" || denom == "" {
		writeError(w, http.StatusBadRequest, "account and denom query params are required")
		return
	}

	amount, err := s.ledger.Balance(r.Context(), account, denom)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Account: account, Denom: denom, Amount: amount})
}

// caller extracts the X-Account identity, writing a 400 when missing.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	account := r.Header.Get(accountHeader)
	if account == "" {
		writeError(w, http.StatusBadRequest, "X-Account header is required")
		return "", false
	}
	return account, true
}

// writeDomainError maps domain errors to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var code int
	switch {
	case errors.Is(err, auction.ErrInvalidParams), errors.Is(err, ledger.ErrInvalidAmount):
		code = http.StatusBadRequest
	case errors.Is(err, auction.ErrUnauthorized):
		code = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, auction.ErrAuctionNotOpen),
		errors.Is(err, auction.ErrBidAlreadyPlaced),
		errors.Is(err, auction.ErrTransferFailed),
		errors.Is(err, ledger.ErrInsufficientBalance):
		code = http.StatusConflict
	case errors.Is(err, auction.ErrBidTooLow),
		errors.Is(err, auction.ErrAuctionExpired),
		errors.Is(err, auction.ErrNotYetExpired):
		code = http.StatusUnprocessableEntity
	default:
		s.logger.ErrorContext(r.Context(), "internal error",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
