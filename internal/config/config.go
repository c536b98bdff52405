// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"marketplace-listing-api/internal/fetchers"
	"marketplace-listing-api/pkg/credentials"
)

const (
	DefaultPort      = "8085"
	DefaultAPIURL    = "http://localhost:5000/api"
	DefaultViews     = "products,orders,customers"
	DefaultRateRPS   = 10
	DefaultRateBurst = 20
)

type Config struct {
	Port           string `validate:"required,numeric"`
	APIURL         string `validate:"required,url"`
	Token          string
	AuthCookie     string        `validate:"required"`
	HTTPTimeout    time.Duration `validate:"gt=0"`
	RateLimitRPS   float64       `validate:"gt=0"`
	RateLimitBurst int           `validate:"gt=0"`
	Views          []ViewConfig  `validate:"required,min=1,dive"`
}

// ViewConfig describes one listing view and the backend collection behind it.
type ViewConfig struct {
	Name              string `validate:"required,alphanum"`
	Path              string `validate:"required"`
	Schema            fetchers.Schema
	NewestByTimestamp bool
}

// Endpoint joins the backend URL and the view path.
func (v ViewConfig) Endpoint(apiURL string) string {
	return strings.TrimRight(apiURL, "/") + "/" + strings.TrimLeft(v.Path, "/")
}

func (v ViewConfig) FetcherConfig(apiURL string, timeout time.Duration) fetchers.FetcherConfig {
	return fetchers.FetcherConfig{
		Name:              v.Name,
		Endpoint:          v.Endpoint(apiURL),
		Timeout:           timeout,
		Schema:            v.Schema,
		NewestByTimestamp: v.NewestByTimestamp,
	}
}

// presets are the collections the marketplace admin screens list.
var presets = map[string]ViewConfig{
	"products": {
		Name:   "products",
		Path:   "admin/products",
		Schema: fetchers.DefaultSchema(),
	},
	"orders": {
		Name: "orders",
		Path: "admin/orders",
		Schema: fetchers.Schema{
			IDKeys:       []string{"_id", "id"},
			NameKeys:     []string{"orderNumber", "user.name"},
			PriceKey:     "totalAmount",
			CategoryKey:  "status",
			StatusKey:    "status",
			CreatedAtKey: "createdAt",
			TextKeys:     []string{"user.name", "user.email", "shippingAddress.city"},
		},
	},
	"customers": {
		Name: "customers",
		Path: "admin/users",
		Schema: fetchers.Schema{
			IDKeys:       []string{"_id", "id"},
			NameKeys:     []string{"name", "email"},
			CategoryKey:  "role",
			StatusKey:    "status",
			CreatedAtKey: "createdAt",
			TextKeys:     []string{"email", "phone"},
		},
	},
}

var validate = validator.New()

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:           withDefault(getenv("PORT"), DefaultPort),
		APIURL:         strings.TrimRight(withDefault(getenv("MARKETPLACE_API_URL"), DefaultAPIURL), "/"),
		Token:          strings.TrimSpace(getenv("MARKETPLACE_TOKEN")),
		AuthCookie:     withDefault(getenv("AUTH_COOKIE"), credentials.DefaultCookieName),
		HTTPTimeout:    fetchers.DefaultTimeout,
		RateLimitRPS:   DefaultRateRPS,
		RateLimitBurst: DefaultRateBurst,
	}

	if v := getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT_SECONDS %q", v)
		}
		cfg.HTTPTimeout = time.Duration(seconds) * time.Second
	}
	if v := getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS %q: %w", v, err)
		}
		cfg.RateLimitRPS = rps
	}
	if v := getenv("RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_BURST %q: %w", v, err)
		}
		cfg.RateLimitBurst = burst
	}

	seen := make(map[string]bool)
	for _, name := range strings.Split(withDefault(getenv("VIEWS"), DefaultViews), ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		view, err := viewFromEnv(name, getenv)
		if err != nil {
			return nil, err
		}
		cfg.Views = append(cfg.Views, view)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func viewFromEnv(name string, getenv func(string) string) (ViewConfig, error) {
	view, ok := presets[name]
	if !ok {
		view = ViewConfig{Name: name, Path: "admin/" + name, Schema: fetchers.DefaultSchema()}
	}
	view.Schema.TextKeys = append([]string(nil), view.Schema.TextKeys...)

	prefix := "VIEW_" + strings.ToUpper(name) + "_"
	if v := getenv(prefix + "PATH"); v != "" {
		view.Path = v
	}
	if v, ok := lookupSet(getenv, prefix+"CATEGORY_KEY"); ok {
		view.Schema.CategoryKey = v
	}
	if v, ok := lookupSet(getenv, prefix+"PRICE_KEY"); ok {
		view.Schema.PriceKey = v
	}
	if v, ok := lookupSet(getenv, prefix+"TEXT_KEYS"); ok {
		view.Schema.TextKeys = splitList(v)
	}
	if v := getenv(prefix + "NEWEST_BY_TIMESTAMP"); v != "" {
		newest, err := strconv.ParseBool(v)
		if err != nil {
			return view, fmt.Errorf("invalid %sNEWEST_BY_TIMESTAMP %q: %w", prefix, v, err)
		}
		view.NewestByTimestamp = newest
	}
	return view, nil
}

// lookupSet treats "-" as an explicit empty value so a key can be switched off.
func lookupSet(getenv func(string) string, key string) (string, bool) {
	v := strings.TrimSpace(getenv(key))
	switch v {
	case "":
		return "", false
	case "-":
		return "", true
	default:
		return v, true
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func withDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
