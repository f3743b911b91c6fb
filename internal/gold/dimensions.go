package gold

import (
	"context"
	"sort"
	"time"

	"shoplake/internal/domain"
)

// Classification boundaries for the dimensions.
const (
	priceTierStandard = 20.0
	priceTierPremium  = 100.0

	highMarginPercent = 40.0

	valueTierSilver   = 100.0
	valueTierGold     = 500.0
	valueTierPlatinum = 1000.0
)

// DimCustomerFields is the customer dimension layout. The order metrics are
// computed over the silver orders snapshot the dimension was built with.
var DimCustomerFields = []domain.FieldDef{
	{Name: "customer_key", Type: domain.TypeInt},
	{Name: "customer_id", Type: domain.TypeString},
	{Name: "email", Type: domain.TypeString, Nullable: true},
	{Name: "email_domain", Type: domain.TypeString, Nullable: true},
	{Name: "full_name", Type: domain.TypeString, Nullable: true},
	{Name: "country", Type: domain.TypeString, Nullable: true},
	{Name: "city", Type: domain.TypeString, Nullable: true},
	{Name: "is_valid_email", Type: domain.TypeBool, Nullable: true},
	{Name: "total_orders", Type: domain.TypeInt},
	{Name: "total_spend", Type: domain.TypeDouble},
	{Name: "first_order_date", Type: domain.TypeTimestamp, Nullable: true},
	{Name: "last_order_date", Type: domain.TypeTimestamp, Nullable: true},
	{Name: "avg_order_value", Type: domain.TypeDouble},
	{Name: "value_tier", Type: domain.TypeString},
	{Name: "customer_status", Type: domain.TypeString},
}

// DimProductFields is the product dimension layout.
var DimProductFields = []domain.FieldDef{
	{Name: "product_key", Type: domain.TypeInt},
	{Name: "product_id", Type: domain.TypeString},
	{Name: "sku", Type: domain.TypeString, Nullable: true},
	{Name: "name", Type: domain.TypeString, Nullable: true},
	{Name: "category", Type: domain.TypeString, Nullable: true},
	{Name: "subcategory", Type: domain.TypeString, Nullable: true},
	{Name: "brand", Type: domain.TypeString, Nullable: true},
	{Name: "price", Type: domain.TypeDouble, Nullable: true},
	{Name: "cost", Type: domain.TypeDouble, Nullable: true},
	{Name: "margin_percent", Type: domain.TypeDouble, Nullable: true},
	{Name: "is_high_margin", Type: domain.TypeBool, Nullable: true},
	{Name: "price_tier", Type: domain.TypeString, Nullable: true},
	{Name: "stock_quantity", Type: domain.TypeInt, Nullable: true},
	{Name: "stock_status", Type: domain.TypeString, Nullable: true},
	{Name: "is_active", Type: domain.TypeBool, Nullable: true},
}

// orderStats accumulates one customer's order history.
type orderStats struct {
	count int64
	spend float64
	first time.Time
	last  time.Time
}

// BuildDimCustomer builds the customer dimension from the silver customers
// batch, enriched with order metrics from the silver orders batch. Surrogate
// keys come from the registry: existing customers keep their key across
// rebuilds, new ones get fresh keys. The status classification is computed
// against asOf, the run's processing date, so rebuilds of the same run are
// byte identical. Rows are sorted by natural key.
func BuildDimCustomer(ctx context.Context, keys domain.KeyRegistry, silver, orders *domain.Batch, asOf time.Time) (*domain.Batch, error) {
	silver = collapseByKey(silver, "customer_id", "updated_at", "created_at")
	assigned, err := assignKeys(ctx, keys, "dim_customer", silver, "customer_id")
	if err != nil {
		return nil, err
	}
	stats := orderStatsByCustomer(orders)

	out := &domain.Batch{Table: "dim_customer", Fields: DimCustomerFields}
	for r := range silver.Rows {
		id, _ := silver.Value(r, "customer_id").(string)

		var totalOrders int64
		var spend, avgOrder float64
		var first, last any
		status := "prospect"
		if st, ok := stats[id]; ok && st.count > 0 {
			totalOrders = st.count
			spend = domain.Round2(st.spend)
			avgOrder = domain.Round2(st.spend / float64(st.count))
			first, last = st.first, st.last
			status = customerStatus(st.last, asOf)
		}

		out.Rows = append(out.Rows, []any{
			assigned[id],
			id,
			silver.Value(r, "email"),
			silver.Value(r, "email_domain"),
			silver.Value(r, "full_name"),
			silver.Value(r, "country"),
			silver.Value(r, "city"),
			silver.Value(r, "is_valid_email"),
			totalOrders,
			spend,
			first,
			last,
			avgOrder,
			valueTier(spend),
			status,
		})
	}
	sortByKey(out, 1)
	return out, nil
}

// BuildDimProduct builds the product dimension from the silver batch,
// classifying each product by price tier, margin and stock level.
func BuildDimProduct(ctx context.Context, keys domain.KeyRegistry, silver *domain.Batch) (*domain.Batch, error) {
	silver = collapseByKey(silver, "product_id", "created_at")
	assigned, err := assignKeys(ctx, keys, "dim_product", silver, "product_id")
	if err != nil {
		return nil, err
	}

	out := &domain.Batch{Table: "dim_product", Fields: DimProductFields}
	for r := range silver.Rows {
		id, _ := silver.Value(r, "product_id").(string)
		var tier, highMargin, stockStatus any
		if price, ok := silver.Value(r, "price").(float64); ok {
			tier = priceTier(price)
		}
		if margin, ok := silver.Value(r, "margin_percent").(float64); ok {
			highMargin = margin >= highMarginPercent
		}
		if qty, ok := silver.Value(r, "stock_quantity").(int64); ok {
			stockStatus = stockLevel(qty)
		}
		out.Rows = append(out.Rows, []any{
			assigned[id],
			id,
			silver.Value(r, "sku"),
			silver.Value(r, "name"),
			silver.Value(r, "category"),
			silver.Value(r, "subcategory"),
			silver.Value(r, "brand"),
			silver.Value(r, "price"),
			silver.Value(r, "cost"),
			silver.Value(r, "margin_percent"),
			highMargin,
			tier,
			silver.Value(r, "stock_quantity"),
			stockStatus,
			silver.Value(r, "is_active"),
		})
	}
	sortByKey(out, 1)
	return out, nil
}

// orderStatsByCustomer folds the orders batch into per-customer totals.
// Orders with a null total count toward order counts and dates only.
func orderStatsByCustomer(orders *domain.Batch) map[string]*orderStats {
	out := map[string]*orderStats{}
	if orders == nil {
		return out
	}
	for r := range orders.Rows {
		id, ok := orders.Value(r, "customer_id").(string)
		if !ok {
			continue
		}
		date, ok := orders.Value(r, "order_date").(time.Time)
		if !ok {
			continue
		}
		st := out[id]
		if st == nil {
			st = &orderStats{first: date, last: date}
			out[id] = st
		}
		st.count++
		if total, ok := orders.Value(r, "total_amount").(float64); ok {
			st.spend += total
		}
		if date.Before(st.first) {
			st.first = date
		}
		if date.After(st.last) {
			st.last = date
		}
	}
	return out
}

func customerStatus(lastOrder, asOf time.Time) string {
	days := int(asOf.Sub(lastOrder).Hours() / 24)
	switch {
	case days > 365:
		return "churned"
	case days > 90:
		return "at_risk"
	default:
		return "active"
	}
}

func valueTier(spend float64) string {
	switch {
	case spend >= valueTierPlatinum:
		return "platinum"
	case spend >= valueTierGold:
		return "gold"
	case spend >= valueTierSilver:
		return "silver"
	default:
		return "bronze"
	}
}

func priceTier(price float64) string {
	switch {
	case price < priceTierStandard:
		return "budget"
	case price < priceTierPremium:
		return "standard"
	default:
		return "premium"
	}
}

func stockLevel(qty int64) string {
	switch {
	case qty <= 0:
		return "out_of_stock"
	case qty < 10:
		return "low_stock"
	case qty < 50:
		return "normal"
	default:
		return "well_stocked"
	}
}

// collapseByKey keeps one row per natural key. The silver layer already
// dedups within a run, but reading the dimension source back from the lake
// can surface the same key across partitions when its business date moved.
// The row with the greater ordering values wins (compared field by field,
// nulls lowest); the first-seen row wins ties.
func collapseByKey(batch *domain.Batch, idField string, orderFields ...string) *domain.Batch {
	idCol := batch.FieldIndex(idField)
	if idCol < 0 {
		return batch
	}
	var orderCols []int
	for _, f := range orderFields {
		if c := batch.FieldIndex(f); c >= 0 {
			orderCols = append(orderCols, c)
		}
	}

	best := map[string]int{}
	var seen []string
	for r, row := range batch.Rows {
		id, ok := row[idCol].(string)
		if !ok {
			continue
		}
		prev, dup := best[id]
		if !dup {
			best[id] = r
			seen = append(seen, id)
			continue
		}
		if moreRecent(row, batch.Rows[prev], orderCols) {
			best[id] = r
		}
	}
	if len(seen) == len(batch.Rows) {
		return batch
	}

	out := &domain.Batch{Table: batch.Table, Fields: batch.Fields}
	for _, id := range seen {
		out.Rows = append(out.Rows, batch.Rows[best[id]])
	}
	return out
}

func moreRecent(candidate, current []any, orderCols []int) bool {
	for _, c := range orderCols {
		if cmp := domain.CompareValues(candidate[c], current[c]); cmp != 0 {
			return cmp > 0
		}
	}
	return false
}

// assignKeys collects the batch's natural keys and resolves surrogates.
func assignKeys(ctx context.Context, keys domain.KeyRegistry, dimension string, silver *domain.Batch, idField string) (map[string]int64, error) {
	col := silver.FieldIndex(idField)
	if col < 0 {
		return nil, domain.ErrSchema("dimension %q: silver batch lacks field %q", dimension, idField)
	}
	naturals := make([]string, 0, silver.NumRows())
	for _, row := range silver.Rows {
		if id, ok := row[col].(string); ok {
			naturals = append(naturals, id)
		}
	}
	return keys.Assign(ctx, dimension, naturals)
}

// sortByKey orders dimension rows by the natural-key column.
func sortByKey(batch *domain.Batch, col int) {
	sort.SliceStable(batch.Rows, func(i, j int) bool {
		return domain.CompareValues(batch.Rows[i][col], batch.Rows[j][col]) < 0
	})
}
