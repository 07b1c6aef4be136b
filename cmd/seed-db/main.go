// Command seed-db loads the product catalog from a JSON file and optionally
// provisions an admin API key.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/infinitecrafts/storefront/internal/domain/auth"
	"github.com/infinitecrafts/storefront/internal/repository"
)

type productJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	PricingType string `json:"pricing_type"`

	Price          decimal.Decimal `json:"price"`
	DefaultColor   string          `json:"default_color"`
	ColorPriceDiff decimal.Decimal `json:"color_price_diff"`

	Fabrics       json.RawMessage `json:"fabrics"`
	QuantityTiers json.RawMessage `json:"quantity_tiers"`

	MinimumOrderQty int      `json:"minimum_order_qty"`
	Colors          []string `json:"colors"`
	Sizes           []string `json:"sizes"`
}

const upsertProductSQL = `INSERT INTO products
	(id, name, category, pricing_type, price, default_color, color_price_diff,
	 fabrics, quantity_tiers, minimum_order_qty, colors, sizes)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		category = EXCLUDED.category,
		pricing_type = EXCLUDED.pricing_type,
		price = EXCLUDED.price,
		default_color = EXCLUDED.default_color,
		color_price_diff = EXCLUDED.color_price_diff,
		fabrics = EXCLUDED.fabrics,
		quantity_tiers = EXCLUDED.quantity_tiers,
		minimum_order_qty = EXCLUDED.minimum_order_qty,
		colors = EXCLUDED.colors,
		sizes = EXCLUDED.sizes`

const insertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (key_hash) DO NOTHING`

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("STORE_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("STORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, apiKeyPepper string) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if apiKey != "" {
		if err := seedAPIKey(ctx, pool, apiKey, apiKeyPepper); err != nil {
			return errors.Wrap(err, "seed api key")
		}
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products file")
	}

	for _, p := range products {
		fabrics := p.Fabrics
		if len(fabrics) == 0 {
			fabrics = json.RawMessage("[]")
		}
		tiers := p.QuantityTiers
		if len(tiers) == 0 {
			tiers = json.RawMessage("[]")
		}
		colors := p.Colors
		if colors == nil {
			colors = []string{}
		}
		sizes := p.Sizes
		if sizes == nil {
			sizes = []string{}
		}

		_, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Category, p.PricingType, p.Price,
			p.DefaultColor, p.ColorPriceDiff,
			[]byte(fabrics), []byte(tiers), p.MinimumOrderQty, colors, sizes,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("seeded product", slog.String("id", p.ID))
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, key, pepper string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))
	hash := hex.EncodeToString(mac.Sum(nil))

	scopes := []string{auth.ScopeReadOrders, auth.ScopeUpdateOrders}
	_, err := pool.Exec(ctx, insertAPIKeySQL, uuid.New().String(), hash, "admin", scopes)
	if err != nil {
		return errors.Wrap(err, "insert api key")
	}
	slog.Info("seeded admin api key", slog.String("scopes", "read_orders,update_orders"))
	return nil
}
