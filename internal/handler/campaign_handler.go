package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/smsleopard-dashboard/internal/apperrors"
	"github.com/unclebandit/smsleopard-dashboard/internal/auth"
	"github.com/unclebandit/smsleopard-dashboard/internal/service"
)

// Handler holds the dependencies for the HTTP API
type Handler struct {
	Service   *service.CampaignService
	JWTSecret string
}

// NewRouter mounts every API route behind bearer-token auth.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Use(h.Authenticate)

		r.Get("/campaigns", h.ListCampaigns)
		r.Post("/campaigns", h.CreateCampaign)
		r.Get("/campaigns/active", h.ActiveCampaign)
		r.Post("/campaigns/{id}/start", h.StartCampaign)
		r.Delete("/campaigns/{id}", h.DeleteCampaign)
		r.Get("/stats", h.Stats)
		r.Get("/users/me", h.Me)
	})

	return r
}

type ctxKey int

const claimsKey ctxKey = 0

// Authenticate rejects requests without a valid bearer token.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeMessage(w, http.StatusUnauthorized, "missing credential")
			return
		}
		claims, err := auth.Verify(h.JWTSecret, token)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "invalid or expired credential")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}

// ====================== Campaigns ======================

func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.Service.ListCampaigns(claimsFrom(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

// CreateCampaign accepts the multipart upload: name, messageTemplate,
// file, optional scheduledAt (ISO-8601).
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "missing spreadsheet file")
		return
	}
	defer file.Close()

	var scheduledAt *string
	if v := r.FormValue("scheduledAt"); v != "" {
		scheduledAt = &v
	}

	campaign, err := h.Service.CreateCampaign(
		claimsFrom(r).ID,
		r.FormValue("name"),
		r.FormValue("messageTemplate"),
		scheduledAt,
		fileHeader.Filename,
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (h *Handler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	if err := h.Service.StartCampaign(claimsFrom(r).ID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "sending"})
}

func (h *Handler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	if err := h.Service.DeleteCampaign(claimsFrom(r).ID, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActiveCampaign answers with the in-flight campaign or a JSON null.
func (h *Handler) ActiveCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := h.Service.ActiveCampaign(claimsFrom(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if campaign == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

// ====================== Stats & identity ======================

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	referenceDate := r.URL.Query().Get("referenceDate")

	stats, err := h.Service.Stats(claimsFrom(r).ID, period, referenceDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, claimsFrom(r).User())
}

// ====================== Responses ======================

func campaignID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Println("⚠️ failed to write response:", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeError(w http.ResponseWriter, err error) {
	var notFound *apperrors.ErrCampaignNotFound
	switch {
	case apperrors.IsValidation(err):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	default:
		writeMessage(w, http.StatusInternalServerError, err.Error())
	}
}
