package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pbaille/nutrilog/internal/domain"
)

const (
	OpenFoodFactsBaseURL = "https://world.openfoodfacts.org"

	offAppName    = "nutrilog"
	offAppVersion = "1.0"
	offPageSize   = 10
	kjPerKcal     = 4.184
)

var offFields = []string{
	"id",
	"product_name",
	"brands",
	"energy_100g",
	"proteins_100g",
	"fat_100g",
	"carbohydrates_100g",
	"serving_quantity",
	"serving_quantity_unit",
}

// OpenFoodFacts searches the crowd-sourced packaged product database
type OpenFoodFacts struct {
	c       *client
	appUUID string
	baseURL string
}

// NewOpenFoodFacts creates a client identifying itself with appUUID
func NewOpenFoodFacts(appUUID string, opts Options) *OpenFoodFacts {
	base := opts.BaseURL
	if base == "" {
		base = OpenFoodFactsBaseURL
	}
	// the search endpoint allows about 10 requests per minute
	return &OpenFoodFacts{
		c:       newClient("openfoodfacts", opts, rate.Every(6*time.Second), 3),
		appUUID: appUUID,
		baseURL: strings.TrimRight(base, "/"),
	}
}

// offID accepts both the string and the numeric form of a product id
type offID string

func (id *offID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = offID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = offID(n.String())
	return nil
}

type offProduct struct {
	ID                  offID    `json:"id"`
	ProductName         string   `json:"product_name"`
	Brands              string   `json:"brands"`
	Energy100g          *float64 `json:"energy_100g"`
	Proteins100g        *float64 `json:"proteins_100g"`
	Fat100g             *float64 `json:"fat_100g"`
	Carbohydrates100g   *float64 `json:"carbohydrates_100g"`
	ServingQuantity     *float64 `json:"serving_quantity"`
	ServingQuantityUnit string   `json:"serving_quantity_unit"`
}

type offSearchResponse struct {
	Products []offProduct `json:"products"`
}

type offProductResponse struct {
	Status  int         `json:"status"`
	Product *offProduct `json:"product"`
}

func (o *OpenFoodFacts) headers() http.Header {
	h := http.Header{}
	h.Set("app_name", offAppName)
	h.Set("app_version", offAppVersion)
	h.Set("app_uuid", o.appUUID)
	return h
}

func offParams() url.Values {
	params := url.Values{}
	params.Set("fields", strings.Join(offFields, ","))
	params.Set("json", "1")
	params.Set("page_size", fmt.Sprint(offPageSize))
	return params
}

// SearchByName returns the first page of products, skipping those without usable nutrients
func (o *OpenFoodFacts) SearchByName(ctx context.Context, query string) ([]domain.Food, error) {
	params := offParams()
	params.Set("search_terms", strings.TrimSpace(query))

	var resp offSearchResponse
	if err := o.c.getJSON(ctx, o.baseURL+"/cgi/search.pl?"+params.Encode(), o.headers(), &resp); err != nil {
		return nil, fmt.Errorf("openfoodfacts search: %w", err)
	}

	foods := make([]domain.Food, 0, len(resp.Products))
	for _, p := range resp.Products {
		if !p.usable() {
			continue
		}
		foods = append(foods, p.toFood())
	}
	return foods, nil
}

// SearchByBarcode returns ErrNotFound for unknown or unusable products
func (o *OpenFoodFacts) SearchByBarcode(ctx context.Context, code string) (*domain.Food, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("openfoodfacts barcode: %w", ErrNotFound)
	}

	var resp offProductResponse
	u := o.baseURL + "/api/v2/product/" + url.PathEscape(code) + "?" + offParams().Encode()
	if err := o.c.getJSON(ctx, u, o.headers(), &resp); err != nil {
		return nil, fmt.Errorf("openfoodfacts barcode %s: %w", code, err)
	}
	if resp.Product == nil || !resp.Product.usable() {
		return nil, fmt.Errorf("openfoodfacts barcode %s: %w", code, ErrNotFound)
	}
	food := resp.Product.toFood()
	return &food, nil
}

func (p offProduct) usable() bool {
	return strings.TrimSpace(string(p.ID)) != "" &&
		strings.TrimSpace(p.ProductName) != "" &&
		p.Energy100g != nil &&
		p.Proteins100g != nil &&
		p.Fat100g != nil &&
		p.Carbohydrates100g != nil
}

func (p offProduct) toFood() domain.Food {
	serving := float64(domain.DefaultServingQuantity)
	if p.ServingQuantityUnit == "g" && p.ServingQuantity != nil {
		serving = *p.ServingQuantity
	}

	brand := "Generic"
	for _, b := range strings.Split(p.Brands, ",") {
		b = strings.TrimSpace(b)
		if b != "" && !strings.EqualFold(b, strings.TrimSpace(p.ProductName)) {
			brand = b
			break
		}
	}
	brand = capitalize(brand)

	return domain.Food{
		ID:              domain.NewFoodID(domain.SourceOpenFoodFacts, strings.TrimSpace(string(p.ID))),
		Name:            capitalize(p.ProductName),
		Brand:           &brand,
		ServingQuantity: serving,
		CaloriesPer100g: math.Round(*p.Energy100g / kjPerKcal),
		ProteinPer100g:  roundTenth(*p.Proteins100g),
		FatPer100g:      roundTenth(*p.Fat100g),
		CarbsPer100g:    roundTenth(*p.Carbohydrates100g),
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
