// Package api serves finplan over local HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/finplan/internal/app"
	"github.com/kalambet/finplan/internal/chat"
	"github.com/kalambet/finplan/internal/credential"
	"github.com/kalambet/finplan/internal/dashboard"
	"github.com/kalambet/finplan/internal/gateway"
	"github.com/kalambet/finplan/internal/importer"
	"github.com/kalambet/finplan/internal/plan"
)

const maxRequestBodySize = 1 << 20 // 1MB

// maxUploadSize bounds a multipart import request.
const maxUploadSize = 4 * importer.MaxFileSize

// NewHandler returns the local server's routes.
func NewHandler(a *app.App) http.Handler {
	r := chi.NewRouter()
	r.Use(a.Metrics.InstrumentHandler)

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", a.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/credential", handleCredentialStatus(a))
		r.Post("/credential", handleVerifyCredential(a))
		r.Delete("/credential", handleResetCredential(a))

		r.Get("/profile", handleGetProfile(a))
		r.Patch("/profile", handlePatchProfile(a))
		r.Post("/import", handleImport(a))

		r.Group(func(r chi.Router) {
			r.Use(RequireCredential(a.Unlocked))

			r.Post("/plan", handleGeneratePlan(a))
			r.Get("/plan", handleGetPlan(a))
			r.Get("/plan/dashboard", handleGetDashboard(a))

			r.Get("/chat", handleGetChat(a))
			r.Post("/chat", handlePostChat(a))
			r.Delete("/chat", handleClearChat(a))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// --- credential ---

type credentialRequest struct {
	APIKey string `json:"apiKey"`
}

func handleCredentialStatus(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"present": a.Unlocked()})
	}
}

func handleVerifyCredential(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req credentialRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		err := a.Gate.Verify(r.Context(), req.APIKey)
		switch {
		case errors.Is(err, credential.ErrEmpty):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "apiKey is required")
			return
		case errors.Is(err, credential.ErrInvalid):
			httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
	}
}

func handleResetCredential(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.Reset(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reset failed: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// --- profile ---

func handleGetProfile(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Profiles.GetProfile()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// handlePatchProfile accepts a flat object of field keys. Strings are parsed
// as typed in the form; numbers and arrays are converted first; null clears.
func handlePatchProfile(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		values := make(map[string]string, len(fields))
		for key, v := range fields {
			raw, err := fieldString(v)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "field %q: %v", key, err)
				return
			}
			values[key] = raw
		}
		if err := a.Profiles.SetFields(values); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		p, err := a.Profiles.GetProfile()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func fieldString(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return "", fmt.Errorf("unexpected boolean")
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// --- import ---

func handleImport(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxRequestBodySize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one file is required in field \"files\"")
			return
		}

		files := make([]importer.File, 0, len(headers))
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "reading %s: %v", fh.Filename, err)
				return
			}
			data, err := io.ReadAll(io.LimitReader(f, importer.MaxFileSize+1))
			f.Close()
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "reading %s: %v", fh.Filename, err)
				return
			}
			files = append(files, importer.File{Name: fh.Filename, Data: data})
		}

		text, err := importer.ImportFiles(r.Context(), files)
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
			return
		}

		if r.FormValue("append") == "true" {
			p, err := a.Profiles.GetProfile()
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
				return
			}
			if err := a.Profiles.SetField("current_portfolio", importer.Append(p.CurrentPortfolio, text)); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to update profile: %v", err)
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{"files": len(files), "text": text})
	}
}

// --- plan ---

func handleGeneratePlan(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prof, err := a.Profiles.GetProfile()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}

		p, err := a.GeneratePlan(r.Context(), prof)
		if err != nil {
			writePlanError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func writePlanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrLocked):
		httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
	case errors.Is(err, gateway.ErrEmptyResponse), errors.Is(err, plan.ErrMalformedResponse):
		slog.Warn("plan generation failed", "error", err)
		httpError(w, http.StatusBadGateway, "model_error", "%s", gateway.FriendlyError(err))
	case errors.Is(err, app.ErrInvalidProfile):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		slog.Warn("plan generation failed", "error", err)
		httpError(w, http.StatusBadGateway, "api_error", "%s", gateway.FriendlyError(err))
	}
}

func handleGetPlan(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := a.CurrentPlan()
		if errors.Is(err, app.ErrNoPlan) {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleGetDashboard(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := a.CurrentPlan()
		if errors.Is(err, app.ErrNoPlan) {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		io.WriteString(w, dashboard.Markdown(p))
	}
}

// --- chat ---

type chatRequest struct {
	Message string `json:"message"`
	Ticker  string `json:"ticker"`
}

type chatResponse struct {
	State    string         `json:"state"`
	Messages []chat.Message `json:"messages"`
}

func handleGetChat(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, chatResponse{
			State:    a.Advisor.State().String(),
			Messages: a.Advisor.Messages(),
		})
	}
}

// handlePostChat sends a message, or the canned follow-up for ticker when
// one is given.
func handlePostChat(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		var (
			reply chat.Message
			err   error
		)
		if req.Ticker != "" {
			reply, err = a.AskAbout(r.Context(), req.Ticker)
		} else {
			reply, err = a.Ask(r.Context(), req.Message)
		}

		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, reply)
		case errors.Is(err, chat.ErrEmptyQuestion):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
		case errors.Is(err, app.ErrUnknownTicker):
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
		case errors.Is(err, app.ErrNoPlan):
			httpError(w, http.StatusConflict, "invalid_request_error", "%v", err)
		case errors.Is(err, app.ErrLocked):
			httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
		default:
			httpError(w, http.StatusBadGateway, "api_error", "chat unavailable: %v", err)
		}
	}
}

func handleClearChat(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.Advisor.Clear(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "clearing chat: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
