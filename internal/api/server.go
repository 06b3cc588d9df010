package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"

	"github.com/pbaille/nutrilog/internal/domain"
	"github.com/pbaille/nutrilog/internal/logger"
	"github.com/pbaille/nutrilog/internal/nutrition"
	"github.com/pbaille/nutrilog/internal/sources"
	"github.com/pbaille/nutrilog/internal/store"
)

// Options configures a Server. Sources may be nil, which disables search and remote lookups.
type Options struct {
	Addr    string
	Targets nutrition.Targets
	Sources *sources.Registry
	Log     *logger.Logger
}

// Server handles HTTP requests for the nutrition diary API
type Server struct {
	diary     *store.Diary
	foods     *store.FoodRepo
	favorites *store.Favorites
	sources   *sources.Registry
	targets   nutrition.Targets
	addr      string
	log       *logger.Logger

	mu       sync.Mutex
	channels map[string]*channelEntry
	useSeq   uint64
}

// New creates a new API server
func New(s *store.Store, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		diary:     store.NewDiary(s),
		foods:     store.NewFoodRepo(s),
		favorites: store.NewFavorites(s),
		sources:   opts.Sources,
		targets:   opts.Targets,
		addr:      opts.Addr,
		log:       log.With("component", "api"),
		channels:  map[string]*channelEntry{},
	}
}

// Handler returns the routed handler wrapped in CORS and request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Diary
	mux.HandleFunc("GET /diary/{date}", s.getDay)
	mux.HandleFunc("POST /diary", s.addEntry)
	mux.HandleFunc("PUT /diary/{id}", s.updateEntry)
	mux.HandleFunc("DELETE /diary/{id}", s.deleteEntry)

	// Foods
	mux.HandleFunc("GET /foods/frequent", s.frequentFoods)
	mux.HandleFunc("GET /foods/{id}", s.getFood)

	// Favorites
	mux.HandleFunc("GET /favorites", s.listFavorites)
	mux.HandleFunc("POST /favorites", s.addFavorite)
	mux.HandleFunc("GET /favorites/{id}", s.isFavorite)
	mux.HandleFunc("DELETE /favorites/{id}", s.removeFavorite)

	mux.HandleFunc("GET /overview", s.overview)

	// Sources
	mux.HandleFunc("GET /search", s.search)
	mux.HandleFunc("GET /barcode/{code}", s.barcode)

	// Health check
	mux.HandleFunc("GET /health", s.health)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", clientHeader},
	})
	return s.withLogging(c.Handler(mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting server", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps domain, store and source errors to HTTP statuses
func statusFor(err error) int {
	var se *sources.StatusError
	switch {
	case errors.Is(err, sources.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, store.ErrEntryNotFound),
		errors.Is(err, store.ErrFoodNotFound),
		errors.Is(err, sources.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidDate),
		errors.Is(err, domain.ErrInvalidMealType),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidFood),
		errors.Is(err, domain.ErrInvalidFoodID),
		errors.Is(err, sources.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.As(err, &se):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
