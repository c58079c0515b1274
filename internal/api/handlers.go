package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nerrad567/deckd/internal/protocol"
)

// handleHealth returns the daemon health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStatus returns a point-in-time device status snapshot. It never
// touches the device and always succeeds, locked or not.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.broker.State().Snapshot())
}

// handleHistory returns recent device events, newest first. The limit
// query parameter caps the result.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "event history is not enabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := s.history.History(r.Context(), limit)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeInternalError(w, "history query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleDisplay pushes a display update through a transient access
// section.
func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	var update protocol.DisplayUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.broker.UpdateDisplay(update); err != nil {
		writeOpError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// handleAlert raises an alert overlay on one tab.
func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	var alert protocol.AlertRequest
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.broker.Alert(alert); err != nil {
		writeOpError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// handleClearAlert dismisses the alert overlay on one tab.
func (s *Server) handleClearAlert(w http.ResponseWriter, r *http.Request) {
	var req protocol.ClearAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.Tab < 0 || req.Tab >= protocol.MaxTabs {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "tab index out of range")
		return
	}

	if err := s.broker.ClearAlertTab(uint8(req.Tab)); err != nil {
		writeOpError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// handleBrightness sets the panel brightness, optionally persisting it
// as the device preference.
func (s *Server) handleBrightness(w http.ResponseWriter, r *http.Request) {
	var req protocol.BrightnessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.broker.Brightness(req.Level, req.Save); err != nil {
		writeOpError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// handleMode switches the deck's operating mode.
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req protocol.SetModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid mode: "+err.Error())
		return
	}

	if err := s.broker.Mode(req.Mode); err != nil {
		writeOpError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}
