// Package web serves the operator panel: arm a run, watch its countdown,
// cancel it, and review screenshots and history.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/yoyaku-dash/internal/auth"
	"github.com/example/yoyaku-dash/internal/booking"
	"github.com/example/yoyaku-dash/internal/db"
	"github.com/example/yoyaku-dash/internal/domain/clinic"
	"github.com/example/yoyaku-dash/internal/history"
	"github.com/example/yoyaku-dash/internal/metrics"
	"github.com/example/yoyaku-dash/internal/runner"
)

//go:embed templates/*.html static/*
var fs embed.FS

// HistoryReader is the read side of the history store. *history.Repo
// implements it.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
	Get(ctx context.Context, id string) (history.Run, error)
	Events(ctx context.Context, runID string) ([]booking.Event, error)
	Shots(ctx context.Context, runID string) ([]history.Shot, error)
	ShotPNG(ctx context.Context, runID string, shotID int64) ([]byte, error)
}

type Server struct {
	Auth    *auth.Store
	Runner  *runner.Runner
	History HistoryReader // nil when no database is configured
	Roster  clinic.Roster
	Opening string
	Loc     *time.Location
	Logger  *zap.Logger
}

type tmplData struct {
	Title      string
	Authed     bool
	HasHistory bool
	Refresh    int

	Flash         string
	Opening       string
	Subjects      []clinic.Subject
	Slots         []clinic.Slot
	CommitAllowed bool

	Run  *runner.Snapshot
	Runs []runner.Snapshot

	History    []history.Run
	HistoryRun history.Run
	Events     []booking.Event
	Shots      []history.Shot
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.FileServer(http.FS(fs)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)

	authed := func(h http.HandlerFunc) http.Handler { return s.Auth.RequireAuth(h) }
	mux.Handle("GET /{$}", authed(s.handleHome))
	mux.Handle("POST /runs", authed(s.handleRunStart))
	mux.Handle("GET /runs/{id}", authed(s.handleRun))
	mux.Handle("POST /runs/{id}/cancel", authed(s.handleRunCancel))
	mux.Handle("GET /runs/{id}/screenshots/{file}", authed(s.handleRunScreenshot))
	mux.Handle("GET /api/status", authed(s.handleStatus))
	mux.Handle("GET /history", authed(s.handleHistory))
	mux.Handle("GET /history/{id}", authed(s.handleHistoryRun))
	mux.Handle("GET /history/{id}/screenshots/{file}", authed(s.handleHistoryScreenshot))

	return mux
}

func (s *Server) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Server) data(title string) tmplData {
	return tmplData{Title: title, Authed: true, HasHistory: s.History != nil}
}

func (s *Server) homeData(flash string) tmplData {
	d := s.data("Home")
	d.Flash = flash
	d.Opening = s.Opening
	d.Subjects = s.Roster.Subjects
	d.Slots = clinic.Slots()
	d.CommitAllowed = s.Runner.CommitAllowed()
	if snap, ok := s.Runner.Active(); ok {
		d.Run = &snap
		d.Refresh = 5
	}
	d.Runs = s.Runner.List()
	return d
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "templates/home.html", s.homeData(""))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, http.StatusOK, "templates/login.html", tmplData{Title: "Login"})
		return
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.Auth.Authenticate(r.FormValue("password")); err != nil {
			s.log().Warn("panel login rejected", zap.String("remote", r.RemoteAddr))
			s.render(w, http.StatusUnauthorized, "templates/login.html", tmplData{Title: "Login", Flash: "Invalid password"})
			return
		}
		if err := s.Auth.SetSession(w, r); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleRunStart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	subject, err := s.Roster.Lookup(strings.TrimSpace(r.FormValue("subject")))
	if err != nil {
		s.render(w, http.StatusBadRequest, "templates/home.html", s.homeData("Choose a patient"))
		return
	}
	slot, err := clinic.ParseSlot(r.FormValue("time"))
	if err != nil {
		s.render(w, http.StatusBadRequest, "templates/home.html", s.homeData(err.Error()))
		return
	}

	commit := r.FormValue("commit") == "1"
	snap, err := s.Runner.Start(booking.Request{Subject: subject, Slot: slot}, commit)
	if errors.Is(err, runner.ErrBusy) {
		s.render(w, http.StatusConflict, "templates/home.html", s.homeData("A run is already armed. Cancel it first."))
		return
	}
	if err != nil {
		s.log().Error("start run failed", zap.Error(err))
		s.render(w, http.StatusInternalServerError, "templates/home.html", s.homeData("Failed to start run"))
		return
	}
	http.Redirect(w, r, "/runs/"+snap.ID, http.StatusFound)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Runner.Get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	d := s.data("Run")
	d.Run = &snap
	if !snap.Done() {
		d.Refresh = 5
	}
	s.render(w, http.StatusOK, "templates/run.html", d)
}

func (s *Server) handleRunCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Runner.Cancel(id); err != nil {
		http.NotFound(w, r)
		return
	}
	s.log().Info("run cancelled from panel", zap.String("run_id", id))
	http.Redirect(w, r, "/runs/"+id, http.StatusFound)
}

func (s *Server) handleRunScreenshot(w http.ResponseWriter, r *http.Request) {
	idx, ok := pngIndex(r.PathValue("file"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	shot, ok := s.Runner.Screenshot(r.PathValue("id"), int(idx))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writePNG(w, shot.PNG)
}

// handleStatus reports the active run, or the latest one if none is active.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Runner.Active()
	if !ok {
		snap, ok = s.Runner.Latest()
	}
	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Active bool             `json:"active"`
		Run    *runner.Snapshot `json:"run"`
	}{}
	if ok {
		resp.Active = !snap.Done()
		resp.Run = &snap
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log().Warn("encode status", zap.Error(err))
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.NotFound(w, r)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.History.Recent(r.Context(), limit)
	if err != nil {
		s.log().Error("history query failed", zap.Error(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	d := s.data("History")
	d.History = runs
	s.render(w, http.StatusOK, "templates/history.html", d)
}

func (s *Server) handleHistoryRun(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.NotFound(w, r)
		return
	}
	id := r.PathValue("id")
	run, err := s.History.Get(r.Context(), id)
	if db.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log().Error("history query failed", zap.String("run", id), zap.Error(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	events, err := s.History.Events(r.Context(), id)
	if err != nil {
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	shots, err := s.History.Shots(r.Context(), id)
	if err != nil {
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	d := s.data("History")
	d.HistoryRun, d.Events, d.Shots = run, events, shots
	s.render(w, http.StatusOK, "templates/history_run.html", d)
}

func (s *Server) handleHistoryScreenshot(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.NotFound(w, r)
		return
	}
	shotID, ok := pngIndex(r.PathValue("file"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	png, err := s.History.ShotPNG(r.Context(), r.PathValue("id"), shotID)
	if db.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log().Error("screenshot query failed", zap.Error(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writePNG(w, png)
}

// pngIndex parses "<n>.png".
func pngIndex(file string) (int64, bool) {
	n, ok := strings.CutSuffix(file, ".png")
	if !ok {
		return 0, false
	}
	i, err := strconv.ParseInt(n, 10, 64)
	return i, err == nil && i >= 0
}

func writePNG(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(b)
}

func (s *Server) funcs() template.FuncMap {
	loc := s.Loc
	if loc == nil {
		loc = time.Local
	}
	return template.FuncMap{
		"stamp": func(t time.Time) string { return t.In(loc).Format("01/02 15:04:05") },
		"clock": func(t time.Time) string { return t.In(loc).Format("15:04:05") },
	}
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data tmplData) {
	t, err := template.New("").Funcs(s.funcs()).ParseFS(fs,
		"templates/base.html",
		"templates/partials.html",
		name,
	)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Start serves h until ctx is done, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("panel listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
