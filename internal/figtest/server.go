// Package figtest runs an in-memory figure server for tests.
package figtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"figdesk/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type Call struct {
	Method string
	Path   string
	Query  string
	Body   string
}

type Server struct {
	*httptest.Server

	mu        sync.Mutex
	figures   []model.Figure
	data      map[model.FigureID]string
	tmp       map[string][]byte
	calls     []Call
	clock     time.Time
	codeErr   map[model.FigureID]string
	canvasErr string
	failList  bool
	listHook  func()
}

// New starts a server seeded with figs. Close it with t.Cleanup(s.Close).
func New(figs ...model.Figure) *Server {
	s := &Server{
		figures: append([]model.Figure(nil), figs...),
		data:    map[model.FigureID]string{},
		tmp:     map[string][]byte{},
		codeErr: map[model.FigureID]string{},
		clock:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Get("/fd_ls", s.handleList)
	r.Get("/fd_str_data", s.handleStrData)
	r.Get("/fd_download_data", s.handlePrepare("csv"))
	r.Get("/fd_download_pdf", s.handlePrepare("pdf"))
	r.Get("/fd_change_name", s.handleChangeName)
	r.Get("/fd_rm", s.handleRemove)
	r.Post("/fd_update_fig", s.handleUpdate)
	r.Get("/fd_canvas", s.handleCanvas)
	r.Get("/figure/{file}", s.handleImage)
	r.Get("/tmp/{file}", s.handleTmp)
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body string
		if r.Body != nil && r.Method == http.MethodPost {
			b, _ := io.ReadAll(r.Body)
			body = string(b)
			r.Body = io.NopCloser(strings.NewReader(body))
		}
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// SetData sets the text returned by /fd_str_data for id.
func (s *Server) SetData(id model.FigureID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = text
}

// RejectCode makes the next code updates for id fail with 400 and msg.
func (s *Server) RejectCode(id model.FigureID, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codeErr[id] = msg
}

// RejectCanvas makes canvas updates fail with 400 and msg ("" to stop).
func (s *Server) RejectCanvas(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canvasErr = msg
}

// FailList makes /fd_ls answer 500.
func (s *Server) FailList(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failList = fail
}

// OnList runs fn (outside the lock) before each list response.
func (s *Server) OnList(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listHook = fn
}

// Remove drops id server-side without a client call.
func (s *Server) Remove(id model.FigureID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Server) Figures() []model.Figure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Figure(nil), s.figures...)
}

func (s *Server) Figure(id model.FigureID) (model.Figure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.figures {
		if f.ID == id {
			return f, true
		}
	}
	return model.Figure{}, false
}

func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo counts recorded requests whose path equals path.
func (s *Server) CallsTo(path string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Server) tickLocked() string {
	s.clock = s.clock.Add(time.Minute)
	return s.clock.Format("2006-01-02 15:04:05")
}

func (s *Server) indexLocked(id model.FigureID) int {
	for i, f := range s.figures {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func (s *Server) removeLocked(id model.FigureID) {
	if i := s.indexLocked(id); i >= 0 {
		s.figures = append(s.figures[:i], s.figures[i+1:]...)
	}
}

// wireFigure mirrors how the server serializes records: numeric ids, numbers for canvas fields.
func wireFigure(f model.Figure) map[string]any {
	var id any = f.ID.String()
	if n, err := strconv.Atoi(f.ID.String()); err == nil {
		id = n
	}
	return map[string]any{
		"id":           id,
		"name":         f.Name,
		"file_name":    f.FileName,
		"code_updated": f.Code,
		"height":       f.Height,
		"width":        f.Width,
		"dpi":          f.DPI,
		"units":        string(f.Units),
		"created_date": f.CreatedDate,
		"updated_date": f.UpdatedDate,
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	hook := s.listHook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		http.Error(w, "list unavailable", http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(s.figures))
	for _, f := range s.figures {
		out = append(out, wireFigure(f))
	}
	render.JSON(w, r, out)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (int, bool) {
	id := model.FigureID(r.URL.Query().Get("id"))
	i := s.indexLocked(id)
	if i < 0 {
		http.Error(w, fmt.Sprintf("figure %s not found", id), http.StatusNotFound)
		return -1, false
	}
	return i, true
}

func (s *Server) handleStrData(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.lookup(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, []string{s.data[s.figures[i].ID]})
}

func (s *Server) handlePrepare(ext string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		i, ok := s.lookup(w, r)
		if !ok {
			return
		}
		f := s.figures[i]
		switch ext {
		case "csv":
			s.tmp[f.Name+".csv"] = []byte("x,y\n1,2\n3,4\n")
		default:
			s.tmp[f.Name+".pdf"] = []byte("%PDF-1.4 " + f.Name)
		}
		render.JSON(w, r, []string{"ok"})
	}
}

func (s *Server) handleChangeName(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.figures[i].Name = r.URL.Query().Get("new_name")
	render.JSON(w, r, []string{"ok"})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.removeLocked(s.figures[i].ID)
	render.JSON(w, r, []string{"ok"})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID     model.FigureID `json:"id"`
		GGCode string         `json:"gg_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.codeErr[body.ID]; ok {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(msg))
		return
	}
	i := s.indexLocked(body.ID)
	if i < 0 {
		http.Error(w, "figure not found", http.StatusNotFound)
		return
	}
	s.figures[i].Code = body.GGCode
	s.figures[i].UpdatedDate = s.tickLocked()
	render.JSON(w, r, []string{"ok"})
}

func (s *Server) handleCanvas(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canvasErr != "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(s.canvasErr))
		return
	}
	i, ok := s.lookup(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	h, errH := strconv.ParseFloat(q.Get("height"), 64)
	wd, errW := strconv.ParseFloat(q.Get("width"), 64)
	dpi, errD := strconv.Atoi(q.Get("dpi"))
	if errH != nil || errW != nil || errD != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad canvas parameters"))
		return
	}
	f := &s.figures[i]
	f.Height, f.Width, f.DPI, f.Units = h, wd, dpi, model.Units(q.Get("units"))
	f.UpdatedDate = s.tickLocked()
	render.JSON(w, r, []string{"ok"})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write([]byte("\x89PNG " + chi.URLParam(r, "file")))
}

func (s *Server) handleTmp(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	b, ok := s.tmp[chi.URLParam(r, "file")]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(b)
}
