package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"

	"github.com/jwtly10/stratsim/internal/backtest"
	"github.com/jwtly10/stratsim/internal/config"
	"github.com/jwtly10/stratsim/internal/marketdata"
	"github.com/jwtly10/stratsim/internal/runner"
	"github.com/jwtly10/stratsim/internal/types"
)

// RunTTL is how long finished and running backtests stay queryable.
const RunTTL = 6 * time.Hour

var ErrNotFound = errors.New("backtest not found")

type run struct {
	ID       string
	Symbol   string
	progress *backtest.Progress

	mu      sync.RWMutex
	results *backtest.Results
	err     error
}

func (r *run) finish(res *backtest.Results, err error) {
	r.mu.Lock()
	r.results, r.err = res, err
	r.mu.Unlock()
}

func (r *run) state() (*backtest.Results, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.results, r.err
}

// Server starts backtests on request and exposes their progress and results.
type Server struct {
	base      config.Config
	source    marketdata.Source
	newRunner func(cfg config.Config) *runner.Runner

	ctx  context.Context
	runs *cache.Cache
	wg   sync.WaitGroup
}

// New builds a server whose runs start from base and read candles from
// source. Runs are cancelled when ctx is.
func New(ctx context.Context, base config.Config, source marketdata.Source) *Server {
	return &Server{
		base:      base,
		source:    source,
		newRunner: func(cfg config.Config) *runner.Runner { return runner.New(cfg, source, nil) },
		ctx:       ctx,
		runs:      cache.New(RunTTL, 10*time.Minute),
	}
}

// WithRunnerFactory replaces how each request's runner is built.
func (s *Server) WithRunnerFactory(f func(cfg config.Config) *runner.Runner) *Server {
	s.newRunner = f
	return s
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/backtests", s.handleCreate).Methods(http.MethodPost)
	router.HandleFunc("/backtests/{id}", s.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/backtests/{id}/trades", s.handleTrades).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = setResponse(map[string]string{"status": "ok"}, http.StatusOK, w)
	}).Methods(http.MethodGet)
	return router
}

// Wait blocks until every started run has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

type createdRun struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
}

type runResponse struct {
	ID         string                    `json:"id"`
	Symbol     string                    `json:"symbol"`
	Progress   backtest.ProgressSnapshot `json:"progress"`
	Error      string                    `json:"error,omitempty"`
	Statistics *backtest.Statistics      `json:"statistics,omitempty"`
	Results    *backtest.Results         `json:"results,omitempty"`
}

type errorResponse struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// handleCreate decodes a partial run config over the server defaults and
// starts one run per symbol.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	cfg := s.base
	cfg.Symbols = nil
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		setErrorResponse("createBacktest: failed to decode request", http.StatusBadRequest, err, w)
		return
	}
	if err := cfg.Validate(); err != nil {
		setErrorResponse("createBacktest: invalid config", http.StatusBadRequest, err, w)
		return
	}

	rn := s.newRunner(cfg)
	created := make([]createdRun, 0, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		progress := rn.NewProgress()
		rr := &run{ID: progress.Snapshot().RunID, Symbol: symbol, progress: progress}
		s.runs.SetDefault(rr.ID, rr)
		created = append(created, createdRun{ID: rr.ID, Symbol: symbol})

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			res, err := rn.Run(s.ctx, rr.Symbol, rr.progress)
			rr.finish(res, err)
		}()

		slog.Info("Started backtest", "id", rr.ID, "symbol", symbol, "strategy", cfg.Strategy)
	}

	_ = setResponse(created, http.StatusAccepted, w)
}

func (s *Server) lookup(r *http.Request) (*run, error) {
	id := mux.Vars(r)["id"]
	v, ok := s.runs.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return v.(*run), nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rr, err := s.lookup(r)
	if err != nil {
		setErrorResponse("getBacktest: lookup failed", http.StatusNotFound, err, w)
		return
	}

	resp := runResponse{ID: rr.ID, Symbol: rr.Symbol, Progress: rr.progress.Snapshot()}
	res, runErr := rr.state()
	if runErr != nil {
		resp.Error = runErr.Error()
	}
	if res != nil {
		resp.Statistics = res.Calculate()
		resp.Results = res
	}

	_ = setResponse(resp, http.StatusOK, w)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	rr, err := s.lookup(r)
	if err != nil {
		setErrorResponse("getTrades: lookup failed", http.StatusNotFound, err, w)
		return
	}

	res, runErr := rr.state()
	switch {
	case runErr != nil:
		setErrorResponse("getTrades: backtest failed", http.StatusConflict, runErr, w)
	case res == nil:
		setErrorResponse("getTrades: backtest still running", http.StatusConflict, errors.New(string(rr.progress.Snapshot().Phase)), w)
	default:
		trades := res.Trades
		if trades == nil {
			trades = []types.Trade{}
		}
		_ = setResponse(trades, http.StatusOK, w)
	}
}

func setResponse(response any, statusCode int, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		return fmt.Errorf("setResponse: encode: %w", err)
	}
	return nil
}

func setErrorResponse(errType string, statusCode int, err error, w http.ResponseWriter) {
	slog.Warn("Request failed", "type", errType, "status", statusCode, "error", err)
	_ = setResponse(errorResponse{Type: errType, Error: err.Error()}, statusCode, w)
}
