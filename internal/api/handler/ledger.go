package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zr01/ledgee/internal/domain"
	"github.com/zr01/ledgee/internal/service"
)

// LedgerPoster is the slice of the ledger service the HTTP layer needs.
type LedgerPoster interface {
	PostLedgerEntry(ctx context.Context, cmd service.PostEntryCmd) (*domain.LedgerEntry, error)
	PostCorrectionEntries(ctx context.Context, parentPublicID string, cmd service.CorrectionCmd) (voided, correction *domain.LedgerEntry, err error)
	GetEntry(ctx context.Context, publicID string) (*domain.LedgerEntry, error)
}

type LedgerHandler struct {
	svc LedgerPoster
}

func NewLedgerHandler(svc LedgerPoster) *LedgerHandler {
	return &LedgerHandler{svc: svc}
}

type postEntryRequest struct {
	AccountID           string `json:"accountId"`
	ProductCode         string `json:"productCode"`
	Currency            string `json:"currency"`
	Amount              int64  `json:"amount"`
	IsPending           bool   `json:"isPending"`
	ExternalReferenceID string `json:"externalReferenceId"`
	EntryReferenceID    string `json:"entryReferenceId"`
	Description         string `json:"description"`
	TransactionOn       int64  `json:"transactionOn"`
}

type entryResponse struct {
	PublicID            string `json:"publicId"`
	ParentPublicID      string `json:"parentPublicId,omitempty"`
	PublicAccountID     string `json:"publicAccountId"`
	Amount              int64  `json:"amount"`
	EntryType           string `json:"entryType"`
	IsPending           string `json:"isPending"`
	RecordStatus        string `json:"recordStatus"`
	ExternalReferenceID string `json:"externalReferenceId"`
	EntryReferenceID    string `json:"entryReferenceId,omitempty"`
	Description         string `json:"description"`
	TransactionOn       int64  `json:"transactionOn"`
	ReconciledOn        int64  `json:"reconciledOn,omitempty"`
	ReconciledBy        string `json:"reconciledBy,omitempty"`
}

func toEntryResponse(entry *domain.LedgerEntry) entryResponse {
	resp := entryResponse{
		PublicID:            entry.PublicID,
		ParentPublicID:      entry.ParentPublicID,
		PublicAccountID:     entry.PublicAccountID,
		Amount:              entry.Amount,
		EntryType:           string(entry.EntryType),
		IsPending:           string(entry.IsPending),
		RecordStatus:        string(entry.RecordStatus),
		ExternalReferenceID: entry.ExternalReferenceID,
		EntryReferenceID:    entry.EntryReferenceID,
		Description:         entry.Description,
		TransactionOn:       entry.TransactionOn.UnixMilli(),
		ReconciledBy:        entry.ReconciledBy,
	}
	if entry.ReconciledOn != nil {
		resp.ReconciledOn = entry.ReconciledOn.UnixMilli()
	}
	return resp
}

// PostEntry records one movement. The entry type comes from the route.
func (h *LedgerHandler) PostEntry(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	entryType, err := domain.ParseEntryType(chi.URLParam(r, "entryType"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "ledger/invalid-entry-type", err.Error())
		return
	}

	var req postEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.AccountID == "" || req.ProductCode == "" {
		RespondError(w, r, http.StatusBadRequest, "ledger/missing-account", "accountId and productCode are required")
		return
	}

	cmd := service.PostEntryCmd{
		EntryType:           entryType,
		AccountID:           req.AccountID,
		ProductCode:         req.ProductCode,
		Currency:            req.Currency,
		Amount:              req.Amount,
		IsPending:           req.IsPending,
		ExternalReferenceID: req.ExternalReferenceID,
		EntryReferenceID:    req.EntryReferenceID,
		Description:         req.Description,
		Actor:               actor,
	}
	if req.TransactionOn > 0 {
		cmd.TransactionOn = time.UnixMilli(req.TransactionOn).UTC()
	}

	entry, err := h.svc.PostLedgerEntry(r.Context(), cmd)
	if err != nil {
		h.respondPostError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, toEntryResponse(entry))
}

type correctionRequest struct {
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
	TransactionOn int64  `json:"transactionOn"`
}

type correctionResponse struct {
	Voided     entryResponse `json:"voided"`
	Correction entryResponse `json:"correction"`
}

// PostCorrection voids an entry and posts its replacement.
func (h *LedgerHandler) PostCorrection(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	parentPublicID := chi.URLParam(r, "parentPublicId")

	var req correctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	cmd := service.CorrectionCmd{
		Amount:      req.Amount,
		Description: req.Description,
		Actor:       actor,
	}
	if req.TransactionOn > 0 {
		cmd.TransactionOn = time.UnixMilli(req.TransactionOn).UTC()
	}

	voided, correction, err := h.svc.PostCorrectionEntries(r.Context(), parentPublicID, cmd)
	if err != nil {
		h.respondPostError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, correctionResponse{
		Voided:     toEntryResponse(voided),
		Correction: toEntryResponse(correction),
	})
}

// GetEntry returns one entry by its public id.
func (h *LedgerHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.GetEntry(r.Context(), chi.URLParam(r, "publicId"))
	if err != nil {
		if errors.Is(err, service.ErrEntryNotFound) {
			RespondError(w, r, http.StatusNotFound, "ledger/entry-not-found", "Entry not found")
			return
		}
		zap.L().Error("get entry failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "ledger/read-failed", "Failed to read entry")
		return
	}
	RespondJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *LedgerHandler) respondPostError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		RespondError(w, r, http.StatusBadRequest, "ledger/invalid-amount", "amount must be positive")
	case errors.Is(err, service.ErrUnknownCurrency):
		RespondError(w, r, http.StatusBadRequest, "ledger/unknown-currency", "unknown currency")
	case errors.Is(err, service.ErrEntryNotFound):
		RespondError(w, r, http.StatusNotFound, "ledger/entry-not-found", "Entry not found")
	case errors.Is(err, service.ErrNotCorrectable):
		RespondError(w, r, http.StatusConflict, "ledger/not-correctable", "entry cannot be corrected")
	default:
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("post entry failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "ledger/post-failed", "Failed to record entry")
	}
}
