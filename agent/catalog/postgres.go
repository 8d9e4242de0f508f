package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

type PostgresConfig struct {
	DSN         string        `envconfig:"DSN" split_words:"true"`
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT" split_words:"true" default:"5s"`
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"10s"`
}

type providerRow struct {
	bun.BaseModel `bun:"table:providers,alias:p"`

	Vertical       string    `bun:"vertical,pk"`
	ID             string    `bun:"id,pk"`
	Position       int       `bun:"position,notnull,default:0"`
	Name           string    `bun:"name,notnull"`
	Rating         float64   `bun:"rating,notnull,default:0"`
	PriceRangeLow  float64   `bun:"price_range_low,notnull,default:0"`
	PriceRangeHigh float64   `bun:"price_range_high,notnull,default:0"`
	Specialties    []string  `bun:"specialties,array"`
	Phone          string    `bun:"phone"`
	UpdatedAt      time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func (r providerRow) provider() contractx.Provider {
	return contractx.Provider{
		ID:             r.ID,
		Name:           r.Name,
		Rating:         r.Rating,
		PriceRangeLow:  r.PriceRangeLow,
		PriceRangeHigh: r.PriceRangeHigh,
		Specialties:    r.Specialties,
		Phone:          r.Phone,
	}
}

// BunSource reads provider catalogs from a Postgres "providers" table.
type BunSource struct {
	db *bun.DB
}

var _ contractx.CatalogSource = (*BunSource)(nil)

func NewBunSource(db *bun.DB) (*BunSource, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &BunSource{db: db}, nil
}

// OpenPostgres connects with pgdriver and returns a BunSource owning the pool.
func OpenPostgres(cfg PostgresConfig) (*BunSource, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("catalog postgres dsn is required")
	}

	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if cfg.DialTimeout > 0 {
		opts = append(opts, pgdriver.WithDialTimeout(cfg.DialTimeout))
	}
	if cfg.ReadTimeout > 0 {
		opts = append(opts, pgdriver.WithReadTimeout(cfg.ReadTimeout))
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	return NewBunSource(bun.NewDB(sqldb, pgdialect.New()))
}

func (s *BunSource) Load(ctx context.Context, vertical string) ([]contractx.Provider, error) {
	var rows []providerRow
	if err := loadQuery(s.db, &rows, vertical).Scan(ctx); err != nil {
		return nil, fmt.Errorf("query catalog %s: %w", vertical, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", contractx.ErrCatalogNotFound, vertical)
	}

	providers := make([]contractx.Provider, 0, len(rows))
	for _, row := range rows {
		providers = append(providers, row.provider())
	}
	return providers, nil
}

func (s *BunSource) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*providerRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create providers table: %w", err)
	}
	return nil
}

// Import replaces a vertical's providers in one transaction: rows are
// upserted with their order as position and rows missing from providers are
// deleted.
func (s *BunSource) Import(ctx context.Context, vertical string, providers []contractx.Provider) error {
	vertical = strings.TrimSpace(vertical)
	if vertical == "" {
		return errors.New("vertical is required")
	}
	if err := validateCatalog(providers); err != nil {
		return err
	}

	rows := make([]providerRow, 0, len(providers))
	for i, p := range providers {
		rows = append(rows, providerRow{
			Vertical:       vertical,
			ID:             strings.TrimSpace(p.ID),
			Position:       i,
			Name:           p.Name,
			Rating:         p.Rating,
			PriceRangeLow:  p.PriceRangeLow,
			PriceRangeHigh: p.PriceRangeHigh,
			Specialties:    p.Specialties,
			Phone:          p.Phone,
			UpdatedAt:      time.Now().UTC(),
		})
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := upsertQuery(tx, &rows).Exec(ctx); err != nil {
			return fmt.Errorf("import catalog %s: %w", vertical, err)
		}
		if _, err := pruneQuery(tx, vertical, ids).Exec(ctx); err != nil {
			return fmt.Errorf("prune catalog %s: %w", vertical, err)
		}
		return nil
	})
}

func loadQuery(db bun.IDB, rows *[]providerRow, vertical string) *bun.SelectQuery {
	return db.NewSelect().
		Model(rows).
		Where("p.vertical = ?", strings.TrimSpace(vertical)).
		OrderExpr("p.position ASC, p.id ASC")
}

func upsertQuery(db bun.IDB, rows *[]providerRow) *bun.InsertQuery {
	return db.NewInsert().
		Model(rows).
		On("CONFLICT (vertical, id) DO UPDATE").
		Set("position = EXCLUDED.position").
		Set("name = EXCLUDED.name").
		Set("rating = EXCLUDED.rating").
		Set("price_range_low = EXCLUDED.price_range_low").
		Set("price_range_high = EXCLUDED.price_range_high").
		Set("specialties = EXCLUDED.specialties").
		Set("phone = EXCLUDED.phone").
		Set("updated_at = EXCLUDED.updated_at")
}

// pruneQuery deletes the vertical's providers that are not in keep.
func pruneQuery(db bun.IDB, vertical string, keep []string) *bun.DeleteQuery {
	return db.NewDelete().
		Model((*providerRow)(nil)).
		Where("p.vertical = ?", vertical).
		Where("p.id NOT IN (?)", bun.In(keep))
}

// Seed copies every listed vertical from src, skipping verticals src lacks.
func (s *BunSource) Seed(ctx context.Context, src contractx.CatalogSource, verticals []string) (int, error) {
	imported := 0
	for _, vertical := range verticals {
		providers, err := src.Load(ctx, vertical)
		if errors.Is(err, contractx.ErrCatalogNotFound) {
			continue
		}
		if err != nil {
			return imported, err
		}
		if err := s.Import(ctx, vertical, providers); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

func (s *BunSource) Close() error {
	return s.db.Close()
}
