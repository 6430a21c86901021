package httpx

import (
	"bytes"
	"io"
	"net/http"
	"net/url"

	"github.com/ariefcatur/go-wholesale-orders/internal/console"
	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"github.com/ariefcatur/go-wholesale-orders/internal/search"
	"github.com/ariefcatur/go-wholesale-orders/internal/spreadsheet"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxUpload = 10 << 20

func (s *Server) registerAdmin(r chi.Router) {
	r.Post("/sessions", s.openSession)
	r.Route("/sessions/{sid}", func(r chi.Router) {
		r.Delete("/", s.closeSession)
		r.Get("/orders", s.withSession(func(w http.ResponseWriter, r *http.Request, cs *console.Session) {
			s.writeView(w, cs)
		}))
		r.Get("/summary", s.withSession(func(w http.ResponseWriter, r *http.Request, cs *console.Session) {
			writeJSON(w, http.StatusOK, cs.Summary())
		}))
		r.Get("/tabs/{tab}", s.withSession(s.tab))
		r.Put("/draft", s.withSession(s.setDraft))
		r.Post("/preset", s.withSession(s.preset))
		r.Post("/search", s.withSession(func(w http.ResponseWriter, r *http.Request, cs *console.Session) {
			cs.Search()
			s.writeView(w, cs)
		}))
		r.Post("/jump", s.withSession(s.jump))
		r.Post("/reset", s.withSession(func(w http.ResponseWriter, r *http.Request, cs *console.Session) {
			cs.Reset()
			s.writeView(w, cs)
		}))
		r.Post("/selection", s.withSession(s.selectOrders))
		r.Delete("/selection", s.withSession(s.deselectOrders))
		r.Post("/batch", s.withSession(s.batch))
		r.Get("/export.xlsx", s.withSession(s.export))
	})

	r.Post("/import", s.importSheet)
	r.Post("/orders/{id}/advance", s.advance)
	r.Put("/orders/{id}/tracking", s.tracking)
	r.Post("/orders/{id}/override", s.override)
	r.Post("/orders/{id}/cancel", s.cancel)
}

func (s *Server) withSession(h func(http.ResponseWriter, *http.Request, *console.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cs, err := s.Consoles.Get(chi.URLParam(r, "sid"), actor(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		h(w, r, cs)
	}
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	cs, err := s.Consoles.Open(r.Context(), actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": cs.ID})
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	if _, err := s.Consoles.Get(sid, actor(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Consoles.Close(sid)
	w.WriteHeader(http.StatusNoContent)
}

type sessionView struct {
	Orders   []orderView     `json:"orders"`
	Draft    search.Criteria `json:"draft"`
	Applied  search.Criteria `json:"applied"`
	Selected []string        `json:"selected"`
	Summary  console.Summary `json:"summary"`
}

func (s *Server) writeView(w http.ResponseWriter, cs *console.Session) {
	draft, applied := cs.Criteria()
	writeJSON(w, http.StatusOK, sessionView{
		Orders:   views(cs.Visible()),
		Draft:    draft,
		Applied:  applied,
		Selected: cs.Selected(),
		Summary:  cs.Summary(),
	})
}

func (s *Server) tab(w http.ResponseWriter, r *http.Request, cs *console.Session) {
	list, err := cs.Tab(console.Tab(chi.URLParam(r, "tab")))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, views(list))
}

func (s *Server) setDraft(w http.ResponseWriter, r *http.Request, cs *console.Session) {
	var c search.Criteria
	if !decode(w, r, &c) {
		return
	}
	if err := cs.SetDraft(c); err != nil {
		badRequest(w, err.Error())
		return
	}
	s.writeView(w, cs)
}

func (s *Server) preset(w http.ResponseWriter, r *http.Request, cs *console.Session) {
	var req struct {
		Preset search.Preset `json:"preset"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := cs.Preset(req.Preset); err != nil {
		badRequest(w, err.Error())
		return
	}
	s.writeView(w, cs)
}

// jump applies criteria at once. A bare {"status": ...} is a summary tile.
func (s *Server) jump(w http.ResponseWriter, r *http.Request, cs *console.Session) {
	var c search.Criteria
	if !decode(w, r, &c) {
		return
	}
	if c.Status != "" {
		st, err := orders.ParseStatus(string(c.Status))
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		c.Status = st
	}
	if err := cs.Jump(c); err != nil {
		badRequest(w, err.Error())
		return
	}
	s.writeView(w, cs)
}

type selectionReq struct {
	IDs []string `json:"ids"`
	All bool     `json:"all"`
}

func (s *Server) selectOrders(w http.ResponseWriter, r *http.Request, cs *console.Session) {
	var req selectionReq
	if !decode(w, r, &req) {
		return
	}
	rejected := []string{}
	if req.All {
		cs.SelectAll()
	} else if rj := cs.Select(req.IDs...); rj != nil {
		rejected = rj
	}
	writeJSON(w, http.StatusOK, map[string][]string{"selected": cs.Selected(), "rejected": rejected})
}

func (s *Server) deselectOrders(w http.ResponseWriter, r *http.Request, cs *console.Session) {
	var req selectionReq
	if r.ContentLength != 0 {
		if !decode(w, r, &req) {
			return
		}
	}
	if req.All || len(req.IDs) == 0 {
		cs.ClearSelection()
	} else {
		cs.Deselect(req.IDs...)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"selected": cs.Selected()})
}

type statusReq struct {
	Status string `json:"status"`
}

func (s *Server) parseStatus(w http.ResponseWriter, r *http.Request) (orders.Status, bool) {
	var req statusReq
	if !decode(w, r, &req) {
		return "", false
	}
	st, err := orders.ParseStatus(req.Status)
	if err != nil {
		badRequest(w, err.Error())
		return "", false
	}
	return st, true
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request, cs *console.Session) {
	to, ok := s.parseStatus(w, r)
	if !ok {
		return
	}
	res, err := cs.BatchSelected(r.Context(), to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		resultView
		Selected []string `json:"selected"`
	}{resultOf(res), cs.Selected()})
}

func (s *Server) export(w http.ResponseWriter, r *http.Request, cs *console.Session) {
	var buf bytes.Buffer
	if err := spreadsheet.Export(&buf, cs.ExportRows(), s.Location, cs); err != nil {
		s.Log.Error("export failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
		return
	}
	name := spreadsheet.FileName(s.now(), s.Location)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// importSheet takes the workbook as multipart field "file" or as the raw body.
func (s *Server) importSheet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	var src io.Reader = r.Body
	if file, _, err := r.FormFile("file"); err == nil {
		defer file.Close()
		src = file
	}
	rep, err := spreadsheet.Import(r.Context(), s.Service, actor(r), src)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		spreadsheet.Report
		resultView
	}{rep, resultOf(rep.Result)})
}

func (s *Server) advance(w http.ResponseWriter, r *http.Request) {
	to, ok := s.parseStatus(w, r)
	if !ok {
		return
	}
	if err := s.Service.Advance(r.Context(), actor(r), chi.URLParam(r, "id"), to); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) override(w http.ResponseWriter, r *http.Request) {
	to, ok := s.parseStatus(w, r)
	if !ok {
		return
	}
	if err := s.Service.Override(r.Context(), actor(r), chi.URLParam(r, "id"), to); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type trackingReq struct {
	Courier        string `json:"courier"`
	TrackingNumber string `json:"trackingNumber"`
}

// tracking ships the order, or reverts it to PENDING when the number is empty.
func (s *Server) tracking(w http.ResponseWriter, r *http.Request) {
	var req trackingReq
	if !decode(w, r, &req) {
		return
	}
	err := s.Service.SetTracking(r.Context(), actor(r), chi.URLParam(r, "id"), req.Courier, req.TrackingNumber)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
