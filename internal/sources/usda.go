package sources

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pbaille/nutrilog/internal/domain"
)

const (
	USDABaseURL    = "https://api.nal.usda.gov/fdc"
	USDADefaultKey = "DEMO_KEY"
)

var usdaDataTypes = []string{"Foundation", "SR Legacy"}

// USDA searches the FoodData Central database. Every result is a generic food measured per 100g.
type USDA struct {
	c       *client
	apiKey  string
	baseURL string
}

// NewUSDA creates a client. An empty key falls back to DEMO_KEY, which the upstream throttles hard.
func NewUSDA(apiKey string, opts Options) *USDA {
	if strings.TrimSpace(apiKey) == "" {
		apiKey = USDADefaultKey
	}
	base := opts.BaseURL
	if base == "" {
		base = USDABaseURL
	}
	return &USDA{
		c:       newClient("usda", opts, rate.Limit(2), 4),
		apiKey:  apiKey,
		baseURL: strings.TrimRight(base, "/"),
	}
}

type usdaNutrient struct {
	NutrientName string  `json:"nutrientName"`
	UnitName     string  `json:"unitName"`
	Value        float64 `json:"value"`
	// the single-food endpoint nests the nutrient and calls the value "amount"
	Nutrient *struct {
		Name     string `json:"name"`
		UnitName string `json:"unitName"`
	} `json:"nutrient,omitempty"`
	Amount float64 `json:"amount"`
}

func (n usdaNutrient) normalized() (name, unit string, value float64) {
	if n.Nutrient != nil {
		return strings.ToLower(n.Nutrient.Name), strings.ToLower(n.Nutrient.UnitName), n.Amount
	}
	return strings.ToLower(n.NutrientName), strings.ToLower(n.UnitName), n.Value
}

type usdaFood struct {
	FdcID         int64          `json:"fdcId"`
	Description   string         `json:"description"`
	FoodNutrients []usdaNutrient `json:"foodNutrients"`
}

type usdaSearchResponse struct {
	Foods []usdaFood `json:"foods"`
}

// SearchByName queries Foundation and SR Legacy foods
func (u *USDA) SearchByName(ctx context.Context, query string) ([]domain.Food, error) {
	params := url.Values{}
	params.Set("api_key", u.apiKey)
	params.Set("query", strings.TrimSpace(query))
	params.Set("dataType", strings.Join(usdaDataTypes, ","))

	var resp usdaSearchResponse
	if err := u.c.getJSON(ctx, u.baseURL+"/v1/foods/search?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("usda search: %w", err)
	}

	foods := make([]domain.Food, 0, len(resp.Foods))
	for _, item := range resp.Foods {
		foods = append(foods, item.toFood())
	}
	return foods, nil
}

// LookupByID fetches one food by its fdcId
func (u *USDA) LookupByID(ctx context.Context, nativeID string) (*domain.Food, error) {
	if _, err := strconv.ParseInt(nativeID, 10, 64); err != nil {
		return nil, fmt.Errorf("usda lookup %q: %w", nativeID, ErrNotFound)
	}
	params := url.Values{}
	params.Set("api_key", u.apiKey)

	var item usdaFood
	endpoint := u.baseURL + "/v1/food/" + url.PathEscape(nativeID) + "?" + params.Encode()
	if err := u.c.getJSON(ctx, endpoint, nil, &item); err != nil {
		return nil, fmt.Errorf("usda lookup %s: %w", nativeID, err)
	}
	food := item.toFood()
	return &food, nil
}

func (item usdaFood) toFood() domain.Food {
	var energy float64
	nutrients := make(map[string]float64, len(item.FoodNutrients))
	for _, n := range item.FoodNutrients {
		name, unit, value := n.normalized()
		if (name == "energy" || name == "energy (atwater specific factors)") && unit == "kcal" && energy == 0 {
			energy = value
		}
		nutrients[name] = value
	}

	brand := "Generic"
	return domain.Food{
		ID:              domain.NewFoodID(domain.SourceUSDA, strconv.FormatInt(item.FdcID, 10)),
		Name:            capitalize(item.Description),
		Brand:           &brand,
		ServingQuantity: domain.DefaultServingQuantity,
		CaloriesPer100g: math.Round(energy),
		ProteinPer100g:  nutrients["protein"],
		FatPer100g:      nutrients["total lipid (fat)"],
		CarbsPer100g:    nutrients["carbohydrate, by difference"],
	}
}
