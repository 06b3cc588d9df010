package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pbaille/nutrilog/internal/domain"
	"github.com/pbaille/nutrilog/internal/logger"
	"github.com/pbaille/nutrilog/internal/nutrition"
	"github.com/pbaille/nutrilog/internal/sources"
	"github.com/pbaille/nutrilog/internal/store"
)

type fakeSource struct{}

func (fakeSource) SearchByName(ctx context.Context, query string) ([]domain.Food, error) {
	return []domain.Food{{ID: "USDA_9", Name: "Result for " + query, ServingQuantity: 100}}, nil
}

func (fakeSource) LookupByID(ctx context.Context, id string) (*domain.Food, error) {
	if id == "404" {
		return nil, sources.ErrNotFound
	}
	return &domain.Food{ID: "USDA_" + id, Name: "Remote food", ServingQuantity: 100, CaloriesPer100g: 50}, nil
}

func (fakeSource) SearchByBarcode(ctx context.Context, code string) (*domain.Food, error) {
	if code != "123" {
		return nil, sources.ErrNotFound
	}
	return &domain.Food{ID: "OPENFOODFACTS_123", Name: "Scanned", ServingQuantity: 30}, nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "diary.db"), logger.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := &sources.Registry{
		Searchers: map[domain.Source]sources.NameSearcher{domain.SourceUSDA: fakeSource{}},
		IDs:       fakeSource{},
		Barcodes:  fakeSource{},
	}
	srv := New(st, Options{
		Targets: nutrition.Targets{Calories: 2000, CarbsPct: 50, ProteinPct: 20, FatPct: 30},
		Sources: reg,
		Log:     logger.Nop(),
	})
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
}

func sampleFood() *domain.Food {
	return &domain.Food{
		ID:              "USDA_1001",
		Name:            "Sample food",
		ServingQuantity: 50,
		CaloriesPer100g: 200,
		ProteinPer100g:  10,
		CarbsPer100g:    20,
		FatPer100g:      5,
	}
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestDiaryLifecycle(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/diary", EntryRequest{
		Date: "2024-01-01", MealType: domain.Breakfast, Food: sampleFood(), Quantity: 2, IsServings: true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: status %d: %s", rec.Code, rec.Body.String())
	}
	var entry domain.DiaryEntry
	decode(t, rec, &entry)
	if entry.KcalTotal != 200 || entry.ProteinTotal != 10 || entry.CarbsTotal != 20 || entry.FatTotal != 5 {
		t.Fatalf("add: unexpected totals %+v", entry)
	}

	rec = do(t, h, http.MethodGet, "/diary/2024-01-01", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("day: status %d", rec.Code)
	}
	var day DayResponse
	decode(t, rec, &day)
	if len(day.Day.All) != 1 || day.Report.Total.Calories != 200 {
		t.Fatalf("day: unexpected %+v", day)
	}
	if day.Report.Remaining == nil || day.Report.Remaining.Calories != 1800 {
		t.Fatalf("day: unexpected remaining %+v", day.Report.Remaining)
	}

	path := "/diary/" + jsonID(entry.ID)
	rec = do(t, h, http.MethodPut, path, EntryRequest{
		MealType: domain.Lunch, FoodID: "USDA_1001", Quantity: 100,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &entry)
	if entry.MealType != domain.Lunch || entry.KcalTotal != 200 || entry.IsServings {
		t.Fatalf("update: unexpected %+v", entry)
	}

	rec = do(t, h, http.MethodPut, "/diary/9999", EntryRequest{MealType: domain.Lunch, FoodID: "USDA_1001", Quantity: 1})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("update missing: status %d", rec.Code)
	}

	for i := 0; i < 2; i++ {
		rec = do(t, h, http.MethodDelete, path, nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("delete #%d: status %d", i, rec.Code)
		}
	}

	rec = do(t, h, http.MethodGet, "/diary/2024-01-01", nil)
	decode(t, rec, &day)
	if len(day.Day.All) != 0 {
		t.Fatalf("entry survived delete: %+v", day.Day.All)
	}
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestAddEntryValidation(t *testing.T) {
	h := newTestServer(t)
	cases := []struct {
		name string
		body interface{}
		want int
	}{
		{"bad meal", EntryRequest{Date: "2024-01-01", MealType: 9, Food: sampleFood(), Quantity: 1}, http.StatusBadRequest},
		{"bad date", EntryRequest{Date: "yesterday", MealType: 1, Food: sampleFood(), Quantity: 1}, http.StatusBadRequest},
		{"no food", EntryRequest{Date: "2024-01-01", MealType: 1, Quantity: 1}, http.StatusBadRequest},
		{"unknown remote food", EntryRequest{Date: "2024-01-01", MealType: 1, FoodID: "USDA_404", Quantity: 1}, http.StatusNotFound},
		{"unknown custom food", EntryRequest{Date: "2024-01-01", MealType: 1, FoodID: "CUSTOM_x", Quantity: 1}, http.StatusNotFound},
	}
	for _, c := range cases {
		if rec := do(t, h, http.MethodPost, "/diary", c.body); rec.Code != c.want {
			t.Errorf("%s: status %d, want %d (%s)", c.name, rec.Code, c.want, rec.Body.String())
		}
	}
	if rec := do(t, h, http.MethodGet, "/diary/2024-13-01", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad path date: status %d", rec.Code)
	}
}

func TestCustomEntryAndRemoteFood(t *testing.T) {
	h := newTestServer(t)

	kcal := 350.0
	rec := do(t, h, http.MethodPost, "/diary", EntryRequest{
		Date: "2024-01-01", MealType: domain.Snacks, CustomName: "Birthday cake",
		Overrides: nutrition.Overrides{Calories: &kcal},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("custom: status %d: %s", rec.Code, rec.Body.String())
	}
	var entry domain.DiaryEntry
	decode(t, rec, &entry)
	if entry.KcalTotal != 350 || !entry.Food.IsCustomEntry || !strings.HasPrefix(entry.Food.ID, "CUSTOM_") {
		t.Fatalf("custom: unexpected %+v", entry)
	}

	rec = do(t, h, http.MethodPost, "/diary", EntryRequest{
		Date: "2024-01-01", MealType: domain.Lunch, FoodID: "USDA_77", Quantity: 200,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("remote: status %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &entry)
	if entry.Food.Name != "Remote food" || entry.KcalTotal != 100 {
		t.Fatalf("remote: unexpected %+v", entry)
	}

	rec = do(t, h, http.MethodGet, "/foods/USDA_77", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get food: status %d", rec.Code)
	}
	var f domain.Food
	decode(t, rec, &f)
	if f.IsFavorite == nil || *f.IsFavorite {
		t.Fatalf("stored food should resolve favorite status: %+v", f)
	}
}

func TestFavoritesAndOverview(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/favorites", FavoriteRequest{Food: sampleFood()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add favorite: status %d: %s", rec.Code, rec.Body.String())
	}
	do(t, h, http.MethodPost, "/favorites", FavoriteRequest{FoodID: "USDA_1001"})

	rec = do(t, h, http.MethodGet, "/favorites/USDA_1001", nil)
	var fav struct {
		IsFavorite bool `json:"is_favorite"`
	}
	decode(t, rec, &fav)
	if !fav.IsFavorite {
		t.Fatalf("expected favorite")
	}

	do(t, h, http.MethodPost, "/diary", EntryRequest{
		Date: "2024-03-10", MealType: domain.Dinner, FoodID: "USDA_1001", Quantity: 1, IsServings: true,
	})

	rec = do(t, h, http.MethodGet, "/overview?date=2024-03-10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("overview: status %d: %s", rec.Code, rec.Body.String())
	}
	var ov OverviewResponse
	decode(t, rec, &ov)
	if len(ov.Favorites) != 1 || len(ov.Frequent) != 1 || ov.Report.Total.Calories != 100 {
		t.Fatalf("overview: unexpected %+v", ov)
	}

	rec = do(t, h, http.MethodGet, "/foods/frequent?today=2024-05-01", nil)
	var freq struct {
		Foods []domain.Food `json:"foods"`
	}
	decode(t, rec, &freq)
	if len(freq.Foods) != 0 {
		t.Fatalf("frequent outside window: %+v", freq.Foods)
	}
	if rec := do(t, h, http.MethodGet, "/foods/frequent?days=-1", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("frequent bad days: status %d", rec.Code)
	}

	if rec := do(t, h, http.MethodDelete, "/favorites/USDA_1001", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("remove favorite: status %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/favorites", nil)
	var list struct {
		Foods []domain.Food `json:"foods"`
	}
	decode(t, rec, &list)
	if len(list.Foods) != 0 {
		t.Fatalf("favorites not empty: %+v", list.Foods)
	}
}

func TestSearchAndBarcode(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/search?source=usda&q=apple", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status %d: %s", rec.Code, rec.Body.String())
	}
	var res sources.Result
	decode(t, rec, &res)
	if res.Generation != 1 || len(res.Foods) != 1 || res.Foods[0].Name != "Result for apple" {
		t.Fatalf("search: unexpected %+v", res)
	}

	if rec := do(t, h, http.MethodGet, "/search?source=openfoodfacts&q=apple", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unregistered source: status %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/barcode/123", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("barcode: status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/barcode/999", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown barcode: status %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/diary", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{sources.ErrSuperseded, http.StatusConflict},
		{store.ErrEntryNotFound, http.StatusNotFound},
		{domain.ErrInvalidFoodID, http.StatusBadRequest},
		{store.ErrNotInitialized, http.StatusServiceUnavailable},
		{&sources.StatusError{Source: "usda", StatusCode: 429}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Errorf("statusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestInlineFoodDefaultsServing(t *testing.T) {
	h := newTestServer(t)
	noServing := &domain.Food{ID: "USDA_55", Name: "Lentils", CaloriesPer100g: 120}

	rec := do(t, h, http.MethodPost, "/diary", EntryRequest{
		Date: "2024-01-01", MealType: domain.Lunch, Food: noServing, Quantity: 2, IsServings: true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: status %d: %s", rec.Code, rec.Body.String())
	}
	var entry domain.DiaryEntry
	decode(t, rec, &entry)
	if entry.Food.ServingQuantity != domain.DefaultServingQuantity || entry.KcalTotal != 240 {
		t.Fatalf("serving not defaulted: %+v", entry)
	}

	rec = do(t, h, http.MethodPost, "/favorites", FavoriteRequest{
		Food: &domain.Food{ID: "USDA_56", Name: "Beans", CaloriesPer100g: 90},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("favorite: status %d: %s", rec.Code, rec.Body.String())
	}
	var fav domain.Food
	decode(t, rec, &fav)
	if fav.ServingQuantity != domain.DefaultServingQuantity {
		t.Fatalf("favorite serving not defaulted: %+v", fav)
	}

	rec = do(t, h, http.MethodGet, "/foods/frequent?today=2024-01-02", nil)
	var freq struct {
		Foods []domain.Food `json:"foods"`
	}
	decode(t, rec, &freq)
	if len(freq.Foods) != 1 || freq.Foods[0].ID != "USDA_55" {
		t.Fatalf("defaulted food missing from most used: %+v", freq.Foods)
	}
}

func TestSearchChannelsAreBounded(t *testing.T) {
	srv := New(nil, Options{Log: logger.Nop()})
	src := fakeSource{}

	first := srv.channel("id:first", domain.SourceUSDA, src)
	for i := 0; i < maxChannels+20; i++ {
		srv.channel("id:"+jsonID(int64(i)), domain.SourceUSDA, src)
		// keep the first client active
		if got := srv.channel("id:first", domain.SourceUSDA, src); got != first {
			t.Fatalf("active channel was evicted at %d", i)
		}
	}
	if n := len(srv.channels); n != maxChannels {
		t.Fatalf("expected %d channels, got %d", maxChannels, n)
	}
	if _, ok := srv.channels[string(domain.SourceUSDA)+"/id:0"]; ok {
		t.Fatalf("least recently used channel was kept")
	}
}

func TestClientKey(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "/search?q=x", nil)
	a.RemoteAddr = "10.0.0.1:5000"
	b := httptest.NewRequest(http.MethodGet, "/search?q=x", nil)
	b.RemoteAddr = "10.0.0.2:5000"
	if clientKey(a) == clientKey(b) {
		t.Fatalf("clients without a header share a channel: %q", clientKey(a))
	}

	a.Header.Set(clientHeader, "phone")
	b.Header.Set(clientHeader, "phone")
	if clientKey(a) != clientKey(b) || clientKey(a) != "id:phone" {
		t.Fatalf("header identity not used: %q %q", clientKey(a), clientKey(b))
	}
}
