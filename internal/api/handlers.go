package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pbaille/nutrilog/internal/domain"
	"github.com/pbaille/nutrilog/internal/nutrition"
	"github.com/pbaille/nutrilog/internal/sources"
	"github.com/pbaille/nutrilog/internal/store"
)

// clientHeader scopes search channels, so one client's searches never supersede another's
const clientHeader = "X-Client-ID"

// EntryRequest is the body of POST /diary and PUT /diary/{id}. The food is given inline, by
// id (looked up locally, then at its source), or as a custom entry name.
type EntryRequest struct {
	Date       string              `json:"date,omitempty"`
	MealType   domain.MealType     `json:"meal_type"`
	Food       *domain.Food        `json:"food,omitempty"`
	FoodID     string              `json:"food_id,omitempty"`
	CustomName string              `json:"custom_name,omitempty"`
	Quantity   float64             `json:"quantity"`
	IsServings bool                `json:"is_servings"`
	Overrides  nutrition.Overrides `json:"overrides"`
}

// FavoriteRequest is the body of POST /favorites
type FavoriteRequest struct {
	Food   *domain.Food `json:"food,omitempty"`
	FoodID string       `json:"food_id,omitempty"`
}

// DayResponse is a day's ledger with its report
type DayResponse struct {
	Day    domain.DayEntries   `json:"day"`
	Report nutrition.DayReport `json:"report"`
}

// OverviewResponse backs the home screen
type OverviewResponse struct {
	Date      domain.Date         `json:"date"`
	Favorites []domain.Food       `json:"favorites"`
	Frequent  []domain.Food       `json:"frequent"`
	Report    nutrition.DayReport `json:"report"`
}

func (s *Server) getDay(w http.ResponseWriter, r *http.Request) {
	date, err := domain.ParseDate(r.PathValue("date"))
	if err != nil {
		s.fail(w, err)
		return
	}
	day, err := s.diary.EntriesForDate(r.Context(), date)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DayResponse{Day: day, Report: nutrition.Report(day, s.targets)})
}

func (s *Server) addEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	date := domain.Today()
	if req.Date != "" {
		d, err := domain.ParseDate(req.Date)
		if err != nil {
			s.fail(w, err)
			return
		}
		date = d
	}

	food, err := s.requestFood(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}

	id, err := s.diary.Add(r.Context(), store.NewEntry{
		Date:       date,
		MealType:   req.MealType,
		Food:       food,
		Quantity:   req.Quantity,
		IsServings: req.IsServings,
		Overrides:  req.Overrides,
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	entry, err := s.diary.Get(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	food, err := s.requestFood(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}

	err = s.diary.Update(r.Context(), store.EntryUpdate{
		ID:         id,
		MealType:   req.MealType,
		Food:       food,
		Quantity:   req.Quantity,
		IsServings: req.IsServings,
		Overrides:  req.Overrides,
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	entry, err := s.diary.Get(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}
	if err := s.diary.Delete(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requestFood picks the food an entry request refers to
func (s *Server) requestFood(ctx context.Context, req EntryRequest) (domain.Food, error) {
	switch {
	case req.Food != nil:
		return req.Food.WithDefaultServing(), nil
	case strings.TrimSpace(req.CustomName) != "":
		return domain.CustomEntryFood(strings.TrimSpace(req.CustomName)), nil
	case req.FoodID != "":
		f, err := s.lookupFood(ctx, req.FoodID)
		if err != nil {
			return domain.Food{}, err
		}
		return *f, nil
	}
	return domain.Food{}, fmt.Errorf("%w: one of food, food_id or custom_name is required", domain.ErrInvalidFood)
}

// lookupFood reads the repository first and falls back to the food's source
func (s *Server) lookupFood(ctx context.Context, id string) (*domain.Food, error) {
	f, err := s.foods.Get(ctx, id)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, store.ErrFoodNotFound) || s.sources == nil {
		return nil, err
	}
	f, err = s.sources.Resolve(ctx, id)
	if errors.Is(err, sources.ErrUnsupported) {
		return nil, fmt.Errorf("%w: %s", store.ErrFoodNotFound, id)
	}
	return f, err
}

func (s *Server) getFood(w http.ResponseWriter, r *http.Request) {
	f, err := s.lookupFood(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) frequentFoods(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	today, err := dateParam(q.Get("today"))
	if err != nil {
		s.fail(w, err)
		return
	}
	days, err := intParam(q.Get("days"), store.DefaultUsageWindowDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid days")
		return
	}
	limit, err := intParam(q.Get("limit"), store.DefaultUsageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	foods, err := s.foods.MostUsed(r.Context(), today, days, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"foods": foods,
		"today": today,
		"days":  days,
	})
}

func (s *Server) listFavorites(w http.ResponseWriter, r *http.Request) {
	foods, err := s.favorites.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"foods": foods})
}

func (s *Server) addFavorite(w http.ResponseWriter, r *http.Request) {
	var req FavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var food domain.Food
	switch {
	case req.Food != nil:
		food = req.Food.WithDefaultServing()
	case req.FoodID != "":
		f, err := s.lookupFood(r.Context(), req.FoodID)
		if err != nil {
			s.fail(w, err)
			return
		}
		food = *f
	default:
		writeError(w, http.StatusBadRequest, "food or food_id is required")
		return
	}

	if err := s.favorites.Add(r.Context(), food); err != nil {
		s.fail(w, err)
		return
	}
	stored, err := s.foods.Get(r.Context(), food.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) isFavorite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.favorites.IsFavorite(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"food_id": id, "is_favorite": ok})
}

func (s *Server) removeFavorite(w http.ResponseWriter, r *http.Request) {
	if err := s.favorites.Remove(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) overview(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r.URL.Query().Get("date"))
	if err != nil {
		s.fail(w, err)
		return
	}

	resp := OverviewResponse{Date: date}
	var day domain.DayEntries

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		resp.Favorites, err = s.favorites.List(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		resp.Frequent, err = s.foods.MostUsed(ctx, date, store.DefaultUsageWindowDays, store.DefaultUsageLimit)
		return err
	})
	g.Go(func() error {
		var err error
		day, err = s.diary.EntriesForDate(ctx, date)
		return err
	})
	if err := g.Wait(); err != nil {
		s.fail(w, err)
		return
	}

	resp.Report = nutrition.Report(day, s.targets)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	if s.sources == nil {
		writeError(w, http.StatusServiceUnavailable, "food sources are not configured")
		return
	}
	q := r.URL.Query()
	source := domain.Source(strings.ToUpper(q.Get("source")))
	if source == "" {
		source = domain.SourceUSDA
	}
	searcher, ok := s.sources.Searcher(source)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown source %q", q.Get("source")))
		return
	}

	res, err := s.channel(clientKey(r), source, searcher).Search(r.Context(), q.Get("q"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// maxChannels bounds the number of live search channels. The least recently used is evicted first.
const maxChannels = 256

type channelEntry struct {
	ch       *sources.Channel
	lastUsed uint64
}

// clientKey identifies the caller of a search: the X-Client-ID header, else the remote host
func clientKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(clientHeader)); id != "" {
		return "id:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

// channel returns the search channel of a client for a source
func (s *Server) channel(client string, source domain.Source, searcher sources.NameSearcher) *sources.Channel {
	key := string(source) + "/" + client
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useSeq++
	if e, ok := s.channels[key]; ok {
		e.lastUsed = s.useSeq
		return e.ch
	}
	if len(s.channels) >= maxChannels {
		var (
			oldest  string
			minUsed uint64
		)
		for k, e := range s.channels {
			if oldest == "" || e.lastUsed < minUsed {
				oldest, minUsed = k, e.lastUsed
			}
		}
		delete(s.channels, oldest)
	}
	e := &channelEntry{ch: sources.NewChannel(searcher), lastUsed: s.useSeq}
	s.channels[key] = e
	return e.ch
}

func (s *Server) barcode(w http.ResponseWriter, r *http.Request) {
	if s.sources == nil {
		writeError(w, http.StatusServiceUnavailable, "food sources are not configured")
		return
	}
	f, err := s.sources.Barcode(r.Context(), r.PathValue("code"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func dateParam(v string) (domain.Date, error) {
	if v == "" {
		return domain.Today(), nil
	}
	return domain.ParseDate(v)
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid number %q", v)
	}
	return n, nil
}
