// Package sqlx is the SQL-backed CatalogSource, covering catalog fetch,
// coupon code redemption, per-reward usage limits, and coupon lifecycle
// markers. It supports postgres and mysql through jmoiron/sqlx.
package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	libsqlx "github.com/jmoiron/sqlx"

	// Drivers for the supported dialects.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"promokit/core"
	"promokit/engine"
)

// Driver selects the SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection configuration.
type Config struct {
	Driver          Driver        `json:"driver"`
	DSN             string        `json:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// DefaultConfig returns sensible defaults for the given driver.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Source is the SQL CatalogSource.
type Source struct {
	db     *libsqlx.DB
	driver Driver
}

// New opens a database connection and verifies it.
func New(cfg Config) (*Source, error) {
	db, err := libsqlx.Connect(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return NewWithDB(db, cfg.Driver), nil
}

// NewWithDB wraps an existing connection (useful for testing).
func NewWithDB(db *libsqlx.DB, driver Driver) *Source {
	return &Source{db: db, driver: driver}
}

// Close closes the underlying connection pool.
func (s *Source) Close() error { return s.db.Close() }

type programRow struct {
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	Trigger         string         `db:"trigger_kind"`
	Applicability   string         `db:"applicability"`
	IsNominative    bool           `db:"is_nominative"`
	Pricelists      sql.NullString `db:"pricelists"`
	MaxUsage        int            `db:"max_usage"`
	TotalUsed       int            `db:"total_used"`
	IsMandatory     bool           `db:"is_mandatory"`
	AppliesByBoxes  bool           `db:"applies_by_boxes"`
	BoxUnit         float64        `db:"box_unit"`
	MaxBoxes        int            `db:"max_boxes"`
	Payment         sql.NullString `db:"payment"`
	SecondUnitPromo bool           `db:"second_unit_promo"`
	DateFrom        sql.NullTime   `db:"date_from"`
	DateTo          sql.NullTime   `db:"date_to"`
}

type ruleRow struct {
	ID            string  `db:"id"`
	ProgramID     string  `db:"program_id"`
	MinAmount     float64 `db:"minimum_amount"`
	MinAmountIncl bool    `db:"minimum_amount_tax_incl"`
	MinQty        float64 `db:"minimum_qty"`
	Mode          string  `db:"mode"`
	PointAmount   float64 `db:"point_amount"`
	SplitPerUnit  bool    `db:"split_per_unit"`
	ProductID     sql.NullString `db:"product_id"`
}

type rewardRow struct {
	ID             string          `db:"id"`
	ProgramID      string          `db:"program_id"`
	Kind           string          `db:"kind"`
	RequiredPoints float64         `db:"required_points"`
	IsMain         bool            `db:"is_main"`
	IsGlobal       bool            `db:"is_global_discount"`
	ClearWallet    bool            `db:"clear_wallet"`
	Description    sql.NullString  `db:"description"`
	DiscApplic     sql.NullString  `db:"disc_applicability"`
	DiscMode       sql.NullString  `db:"disc_mode"`
	DiscValue      sql.NullFloat64 `db:"disc_value"`
	DiscMax        sql.NullFloat64 `db:"disc_max_amount"`
	DiscLimit      sql.NullFloat64 `db:"disc_limit_per_order"`
	ProductQty     sql.NullFloat64 `db:"product_qty"`
	MultiProduct   bool            `db:"multi_product"`
	ProductID      sql.NullString  `db:"product_id"`
}

const selectProgramsByProduct = `
SELECT DISTINCT p.id, p.name, p.trigger_kind, p.applicability, p.is_nominative,
       p.pricelists, p.max_usage, p.total_used, p.is_mandatory,
       p.applies_by_boxes, p.box_unit, p.max_boxes, p.payment,
       p.second_unit_promo, p.date_from, p.date_to
  FROM loyalty_programs p
  JOIN loyalty_rules r ON r.program_id = p.id
  JOIN loyalty_rule_products rp ON rp.rule_id = r.id
 WHERE p.active AND rp.product_id IN (?)`

const selectGeneralPrograms = `
SELECT p.id, p.name, p.trigger_kind, p.applicability, p.is_nominative,
       p.pricelists, p.max_usage, p.total_used, p.is_mandatory,
       p.applies_by_boxes, p.box_unit, p.max_boxes, p.payment,
       p.second_unit_promo, p.date_from, p.date_to
  FROM loyalty_programs p
 WHERE p.active AND NOT EXISTS (
       SELECT 1 FROM loyalty_rules r
         JOIN loyalty_rule_products rp ON rp.rule_id = r.id
        WHERE r.program_id = p.id)`

const selectRules = `
SELECT r.id, r.program_id, r.minimum_amount, r.minimum_amount_tax_incl,
       r.minimum_qty, r.mode, r.point_amount, r.split_per_unit,
       rp.product_id
  FROM loyalty_rules r
  LEFT JOIN loyalty_rule_products rp ON rp.rule_id = r.id
 WHERE r.program_id IN (?)
 ORDER BY r.id`

const selectRewards = `
SELECT w.id, w.program_id, w.kind, w.required_points, w.is_main,
       w.is_global_discount, w.clear_wallet, w.description,
       w.disc_applicability, w.disc_mode, w.disc_value, w.disc_max_amount,
       w.disc_limit_per_order, w.product_qty, w.multi_product,
       wp.product_id
  FROM loyalty_rewards w
  LEFT JOIN loyalty_reward_products wp ON wp.reward_id = w.id
 WHERE w.program_id IN (?)
 ORDER BY w.id`

// FetchPrograms answers the "per product" and "general" result sets in
// two queries, merged and deduplicated by id, then hydrates rules and
// rewards.
func (s *Source) FetchPrograms(ctx context.Context, productIDs []core.ProductID) ([]*core.Program, error) {
	var perProduct []programRow
	if len(productIDs) > 0 {
		ids := make([]string, len(productIDs))
		for i, p := range productIDs {
			ids[i] = string(p)
		}
		query, args, err := libsqlx.In(selectProgramsByProduct, ids)
		if err != nil {
			return nil, err
		}
		if err := s.db.SelectContext(ctx, &perProduct, s.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("fetch per-product programs: %w", err)
		}
	}
	var general []programRow
	if err := s.db.SelectContext(ctx, &general, selectGeneralPrograms); err != nil {
		return nil, fmt.Errorf("fetch general programs: %w", err)
	}

	programs := core.MergePrograms(toPrograms(perProduct), toPrograms(general))
	if len(programs) == 0 {
		return nil, nil
	}
	if err := s.hydrate(ctx, programs); err != nil {
		return nil, err
	}
	return programs, nil
}

func (s *Source) hydrate(ctx context.Context, programs []*core.Program) error {
	byID := make(map[core.ProgramID]*core.Program, len(programs))
	ids := make([]string, 0, len(programs))
	for _, p := range programs {
		byID[p.ID] = p
		ids = append(ids, string(p.ID))
	}

	query, args, err := libsqlx.In(selectRules, ids)
	if err != nil {
		return err
	}
	var rules []ruleRow
	if err := s.db.SelectContext(ctx, &rules, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("fetch rules: %w", err)
	}
	ruleIndex := make(map[core.RuleID]*core.Rule)
	for _, row := range rules {
		p := byID[core.ProgramID(row.ProgramID)]
		if p == nil {
			continue
		}
		r, ok := ruleIndex[core.RuleID(row.ID)]
		if !ok {
			r = &core.Rule{
				ID:                   core.RuleID(row.ID),
				ProgramID:            core.ProgramID(row.ProgramID),
				MinimumAmount:        row.MinAmount,
				MinimumAmountTaxIncl: row.MinAmountIncl,
				MinimumQty:           row.MinQty,
				Mode:                 core.PointMode(row.Mode),
				PointAmount:          row.PointAmount,
				SplitPerUnit:         row.SplitPerUnit,
			}
			ruleIndex[r.ID] = r
			p.Rules = append(p.Rules, r)
		}
		if row.ProductID.Valid {
			r.ProductIDs = append(r.ProductIDs, core.ProductID(row.ProductID.String))
		}
	}

	query, args, err = libsqlx.In(selectRewards, ids)
	if err != nil {
		return err
	}
	var rewards []rewardRow
	if err := s.db.SelectContext(ctx, &rewards, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("fetch rewards: %w", err)
	}
	rewardIndex := make(map[core.RewardID]*core.Reward)
	for _, row := range rewards {
		p := byID[core.ProgramID(row.ProgramID)]
		if p == nil {
			continue
		}
		w, ok := rewardIndex[core.RewardID(row.ID)]
		if !ok {
			w = toReward(row)
			rewardIndex[w.ID] = w
			p.Rewards = append(p.Rewards, w)
		}
		if row.ProductID.Valid {
			switch w.Kind {
			case core.RewardDiscount:
				w.Discount.ProductIDs = append(w.Discount.ProductIDs, core.ProductID(row.ProductID.String))
			case core.RewardProduct:
				w.Product.ProductIDs = append(w.Product.ProductIDs, core.ProductID(row.ProductID.String))
			}
		}
	}
	return nil
}

func toPrograms(rows []programRow) []*core.Program {
	out := make([]*core.Program, 0, len(rows))
	for _, row := range rows {
		p := &core.Program{
			ID:              core.ProgramID(row.ID),
			Name:            row.Name,
			Trigger:         core.ProgramTrigger(row.Trigger),
			Applicability:   core.ProgramApplicability(row.Applicability),
			IsNominative:    row.IsNominative,
			MaxUsage:        row.MaxUsage,
			TotalUsed:       row.TotalUsed,
			IsMandatory:     row.IsMandatory,
			AppliesByBoxes:  row.AppliesByBoxes,
			BoxUnit:         row.BoxUnit,
			MaxBoxes:        row.MaxBoxes,
			SecondUnitPromo: row.SecondUnitPromo,
		}
		if row.Payment.Valid {
			p.Payment = core.PaymentKind(row.Payment.String)
		}
		if row.Pricelists.Valid && row.Pricelists.String != "" {
			p.PricelistIDs = splitCSV(row.Pricelists.String)
		}
		if row.DateFrom.Valid {
			p.DateFrom = row.DateFrom.Time
		}
		if row.DateTo.Valid {
			p.DateTo = row.DateTo.Time
		}
		out = append(out, p)
	}
	return out
}

func toReward(row rewardRow) *core.Reward {
	w := &core.Reward{
		ID:               core.RewardID(row.ID),
		ProgramID:        core.ProgramID(row.ProgramID),
		Kind:             core.RewardKind(row.Kind),
		RequiredPoints:   row.RequiredPoints,
		IsMain:           row.IsMain,
		IsGlobalDiscount: row.IsGlobal,
		ClearWallet:      row.ClearWallet,
		Description:      row.Description.String,
	}
	switch w.Kind {
	case core.RewardDiscount:
		w.Discount = &core.DiscountReward{
			Applicability: core.DiscountApplicability(row.DiscApplic.String),
			Mode:          core.DiscountMode(row.DiscMode.String),
			Value:         row.DiscValue.Float64,
			MaxAmount:     row.DiscMax.Float64,
			LimitPerOrder: row.DiscLimit.Float64,
		}
	case core.RewardProduct:
		w.Product = &core.ProductReward{
			Quantity:     row.ProductQty.Float64,
			MultiProduct: row.MultiProduct,
		}
	}
	return w
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

type couponRow struct {
	ID         string          `db:"id"`
	ProgramID  string          `db:"program_id"`
	PartnerID  sql.NullString  `db:"partner_id"`
	Points     float64         `db:"points"`
	Expiration sql.NullTime    `db:"expiration"`
	State      string          `db:"state"`
}

// RedeemCode reserves the coupon behind a code inside a transaction so a
// code cannot be redeemed twice.
func (s *Source) RedeemCode(ctx context.Context, req engine.RedeemRequest) (engine.RedeemResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return engine.RedeemResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var row couponRow
	err = tx.GetContext(ctx, &row,
		s.db.Rebind(`SELECT id, program_id, partner_id, points, expiration, state
		               FROM loyalty_coupons WHERE code = ? AND state = 'new'`), req.Code)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.RedeemResult{}, engine.ErrCodeInvalid
	}
	if err != nil {
		return engine.RedeemResult{}, fmt.Errorf("lookup code: %w", err)
	}
	if row.Expiration.Valid && req.OrderDate.After(row.Expiration.Time) {
		return engine.RedeemResult{}, engine.ErrCodeInvalid
	}
	if row.PartnerID.Valid && row.PartnerID.String != "" && row.PartnerID.String != string(req.PartnerID) {
		return engine.RedeemResult{}, engine.ErrCodeInvalid
	}

	if _, err := tx.ExecContext(ctx,
		s.db.Rebind(`UPDATE loyalty_coupons SET state = 'reserved' WHERE id = ?`), row.ID); err != nil {
		return engine.RedeemResult{}, fmt.Errorf("reserve coupon: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return engine.RedeemResult{}, err
	}

	res := engine.RedeemResult{
		CouponID:  core.CouponID(row.ID),
		ProgramID: core.ProgramID(row.ProgramID),
		PartnerID: core.PartnerID(row.PartnerID.String),
		Points:    row.Points,
	}
	if row.Expiration.Valid {
		res.Expiration = row.Expiration.Time
	}
	return res, nil
}

type limitRow struct {
	Limit      sql.NullInt64 `db:"usage_limit"`
	LimitItems sql.NullInt64 `db:"limit_items"`
	LimitLocal sql.NullInt64 `db:"limit_local"`
	Unlimited  bool          `db:"unlimited"`
}

// UsageLimit looks the per-reward usage budget up; an absent row means
// unlimited.
func (s *Source) UsageLimit(ctx context.Context, req engine.UsageLimitRequest) (engine.UsageLimitResult, error) {
	var row limitRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT usage_limit, limit_items, limit_local, unlimited
		               FROM loyalty_reward_limits
		              WHERE reward_id = ? AND (partner_id = ? OR partner_id IS NULL)
		              ORDER BY partner_id DESC LIMIT 1`),
		string(req.RewardID), string(req.PartnerID))
	if errors.Is(err, sql.ErrNoRows) {
		return engine.UsageLimitResult{Unlimited: true}, nil
	}
	if err != nil {
		return engine.UsageLimitResult{}, fmt.Errorf("usage limit: %w", err)
	}
	return engine.UsageLimitResult{
		Limit:      int(row.Limit.Int64),
		LimitItems: int(row.LimitItems.Int64),
		LimitLocal: int(row.LimitLocal.Int64),
		Unlimited:  row.Unlimited,
	}, nil
}

// MarkCouponUsed flags the coupon behind a code as used. Fire-and-forget
// from the engine's perspective.
func (s *Source) MarkCouponUsed(ctx context.Context, code string) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE loyalty_coupons SET state = 'used' WHERE code = ?`), code)
	return err
}

// ReleaseCoupon returns a reserved coupon to the redeemable pool.
func (s *Source) ReleaseCoupon(ctx context.Context, id core.CouponID) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE loyalty_coupons SET state = 'new' WHERE id = ?`), string(id))
	return err
}

var _ engine.CatalogSource = (*Source)(nil)
