package lazyload

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/lazyload/horosafe"
	"github.com/hazyhaar/lazyload/shield"
)

// Handler returns the HTTP control API:
//
//	GET  /health
//	GET  /images
//	GET  /viewport
//	GET  /events?limit=50
//	POST /refresh
//	POST /images/{id}/load
//	POST /images/{id}/update?force=true
func (s *Scheduler) Handler() http.Handler {
	ep := s.endpoints()

	r := chi.NewRouter()
	for _, mw := range shield.APIStack(s.logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		select {
		case <-s.done:
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "closed"})
		default:
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
		}
	})

	r.Get("/images", func(w http.ResponseWriter, r *http.Request) {
		resp, err := ep.status(r.Context(), nil)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/viewport", func(w http.ResponseWriter, r *http.Request) {
		resp, err := ep.viewport(r.Context(), nil)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		req := &eventsRequest{}
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 || n > maxEventsLimit {
				writeError(w, http.StatusBadRequest, errors.New("lazyload: invalid limit"))
				return
			}
			req.Limit = n
		}
		resp, err := ep.events(r.Context(), req)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Post("/refresh", func(w http.ResponseWriter, r *http.Request) {
		resp, err := ep.refresh(r.Context(), nil)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Route("/images/{id}", func(r chi.Router) {
		r.Post("/load", func(w http.ResponseWriter, r *http.Request) {
			req := &imageRequest{ID: chi.URLParam(r, "id")}
			resp, err := ep.loadNow(r.Context(), req)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Post("/update", func(w http.ResponseWriter, r *http.Request) {
			req := &imageRequest{ID: chi.URLParam(r, "id")}
			if v := r.URL.Query().Get("force"); v != "" {
				force, err := strconv.ParseBool(v)
				if err != nil {
					writeError(w, http.StatusBadRequest, err)
					return
				}
				req.Force = force
			}
			resp, err := ep.update(r.Context(), req)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})
	})

	return r
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, horosafe.ErrBadIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownImage), errors.Is(err, ErrNoHistory):
		return http.StatusNotFound
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
