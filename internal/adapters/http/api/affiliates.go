package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// AffiliatesHandler serves affiliate link registration.
type AffiliatesHandler struct {
	engine Engine
}

// NewAffiliatesHandler creates an affiliates handler.
func NewAffiliatesHandler(engine Engine) *AffiliatesHandler {
	return &AffiliatesHandler{engine: engine}
}

// affiliateRequest mirrors the request schema for POST /affiliates.
type affiliateRequest struct {
	ReferrerID     string `json:"referrer_id"`
	ReferredUserID string `json:"referred_user_id"`
}

type affiliateResponse struct {
	Status string `json:"status"`
}

// HandleRegister serves POST /affiliates.
func (h *AffiliatesHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req affiliateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err)
		return
	}
	if strings.TrimSpace(req.ReferrerID) == "" || strings.TrimSpace(req.ReferredUserID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", ErrBadRequest)
		return
	}

	if err := h.engine.RegisterAffiliate(r.Context(), req.ReferrerID, req.ReferredUserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, affiliateResponse{Status: "registered"})
}
