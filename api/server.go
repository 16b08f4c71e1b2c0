package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubertat/ledkit"
)

const httpTimeout = 3 * time.Second
const shutdownTimeout = 5 * time.Second

//go:embed dashboard.html
var dashboardHtml string

var dashboardTemplate = template.Must(template.New("dashboard").Parse(dashboardHtml))

// OutputController is the part of ledkit.Controller the API needs.
type OutputController interface {
	Set(id string, desired bool) (bool, error)
	Get(id string) (bool, error)
	GetAll() map[string]bool
	Lines() []ledkit.OutputLine
}

type Server struct {
	Addr         string
	StatusPrefix string

	ctrl   OutputController
	router *httprouter.Router
	logger *log.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type setRequest struct {
	Status *bool `json:"status"`
}

type setResponse struct {
	Success bool   `json:"success"`
	Led     string `json:"led"`
	Status  bool   `json:"status"`
}

func NewServer(ctrl OutputController, addr string, statusPrefix string) *Server {
	s := &Server{
		Addr:         addr,
		StatusPrefix: statusPrefix,
		ctrl:         ctrl,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "HttpApi 🌐: ",
			Level:  log.GetLevel(),
		}),
	}

	s.router = httprouter.New()
	s.router.GET("/", s.handleDashboard)
	s.router.GET("/api/status", s.handleStatus)
	s.router.POST("/api/led/:id", s.handleSetLed)
	s.router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts the server down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		WriteTimeout:      httpTimeout,
		IdleTimeout:       2 * httpTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()
	s.logger.Info("listening", "addr", s.Addr)

	select {
	case err := <-serverErr:
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}
	return nil
}

func (s *Server) writeJson(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.logger.Error("failed to write response", "err", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.writeJson(w, http.StatusOK, ledkit.StatusMap(s.ctrl.GetAll(), s.StatusPrefix))
}

func (s *Server) handleSetLed(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("id")

	_, err := s.ctrl.Get(id)
	if err != nil {
		s.writeError(w, id, err)
		return
	}

	req := setRequest{}
	err = json.NewDecoder(r.Body).Decode(&req)
	if err != nil || req.Status == nil {
		s.writeJson(w, http.StatusBadRequest, errorResponse{"Status not provided"})
		return
	}

	state, err := s.ctrl.Set(id, *req.Status)
	if err != nil {
		s.writeError(w, id, err)
		return
	}

	s.writeJson(w, http.StatusOK, setResponse{Success: true, Led: id, Status: state})
}

func (s *Server) writeError(w http.ResponseWriter, id string, err error) {
	switch {
	case ledkit.IsNotFound(err):
		s.writeJson(w, http.StatusBadRequest, errorResponse{"Invalid LED ID"})
	case errors.Is(err, ledkit.ErrShutdown):
		s.writeJson(w, http.StatusServiceUnavailable, errorResponse{"Controller shut down"})
	case ledkit.IsDriverError(err):
		s.writeJson(w, http.StatusInternalServerError, errorResponse{"Failed to set LED"})
	default:
		s.logger.Error("unexpected controller error", "led", id, "err", err)
		s.writeJson(w, http.StatusInternalServerError, errorResponse{"Internal error"})
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	err := dashboardTemplate.Execute(w, s.ctrl.Lines())
	if err != nil {
		s.logger.Error("failed to render dashboard", "err", err)
	}
}
