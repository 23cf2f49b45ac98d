package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/dayoungkim/stockfolio-backend/internal/usecase/valuation"
)

// valuator is the slice of the valuation service the HTTP layer needs
type valuator interface {
	Valuate(ctx context.Context, householdID uuid.UUID) (*valuation.Result, error)
}

// requireToken validates the bearer token before passing the request on.
// A missing or wrong token yields 401 without touching any service.
func requireToken(validToken string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		if auth != "Bearer "+validToken {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleValuation serves the full dashboard aggregation for one household.
// Quote or FX degradation never surfaces as a failure here; only a failing
// holdings read yields a 5xx.
func handleValuation(svc valuator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		householdID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid household id")
			return
		}

		result, err := svc.Valuate(r.Context(), householdID)
		if err != nil {
			log.Printf("valuation failed for household %s: %v", householdID, err)
			writeError(w, http.StatusInternalServerError, "valuation failed")
			return
		}

		writeJSON(w, http.StatusOK, result)
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
