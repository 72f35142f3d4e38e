package web

import (
	"net/http"
	"strings"

	appLog "famcal/internal/log"
)

type verifyRequest struct {
	PIN string `json:"pin"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.PIN) == "" {
		writeError(w, http.StatusBadRequest, codeMissingPIN, "PIN이 필요합니다.")
		return
	}
	if err := s.auth.VerifyPIN(req.PIN); err != nil {
		appLog.Warn("auth: rejected PIN", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, codeInvalidPIN, "PIN이 올바르지 않습니다.")
		return
	}

	token, err := s.auth.IssueToken()
	if err != nil {
		logInternal("issue session token", err)
		writeError(w, http.StatusInternalServerError, codeInternal, msgInternal)
		return
	}
	http.SetCookie(w, s.auth.SessionCookie(token))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": s.auth.Authenticated(r)})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, s.auth.ClearCookie())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
