package web

import (
	"net/http"

	"github.com/e7d/rustdesk-indicator/internal/menu"
	"github.com/e7d/rustdesk-indicator/internal/rustdesk"
)

type menuResponse struct {
	Cycle uint64 `json:"cycle"`
	menu.Menu
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.source.State())
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r) {
		return
	}
	st := s.source.State()
	writeJSON(w, http.StatusOK, s.menuFor(st))
}

func (s *Server) menuFor(st rustdesk.State) menuResponse {
	return menuResponse{Cycle: st.Cycle, Menu: menu.Build(st, s.cfg.Settings())}
}
