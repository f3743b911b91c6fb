package gold

import (
	"sort"

	"shoplake/internal/domain"
)

// AggDailySalesFields is the per-day sales rollup layout.
var AggDailySalesFields = []domain.FieldDef{
	{Name: "date_key", Type: domain.TypeInt},
	{Name: "order_count", Type: domain.TypeInt},
	{Name: "item_count", Type: domain.TypeInt},
	{Name: "total_revenue", Type: domain.TypeDouble},
	{Name: "avg_order_value", Type: domain.TypeDouble},
}

// AggProductPerformanceFields is the per-product rollup layout.
var AggProductPerformanceFields = []domain.FieldDef{
	{Name: "product_key", Type: domain.TypeInt},
	{Name: "order_count", Type: domain.TypeInt},
	{Name: "total_quantity", Type: domain.TypeInt},
	{Name: "total_revenue", Type: domain.TypeDouble},
}

type dailyAgg struct {
	orders  map[string]bool
	items   int64
	revenue float64
}

// BuildAggDailySales rolls the fact batch up by date_key.
func BuildAggDailySales(facts *domain.Batch) *domain.Batch {
	byDate := map[int64]*dailyAgg{}
	for r := range facts.Rows {
		key, _ := facts.Value(r, "date_key").(int64)
		agg, ok := byDate[key]
		if !ok {
			agg = &dailyAgg{orders: map[string]bool{}}
			byDate[key] = agg
		}
		orderID, _ := facts.Value(r, "order_id").(string)
		agg.orders[orderID] = true
		qty, _ := facts.Value(r, "quantity").(int64)
		agg.items += qty
		rev, _ := facts.Value(r, "revenue").(float64)
		agg.revenue += rev
	}

	out := &domain.Batch{Table: "agg_daily_sales", Fields: AggDailySalesFields}
	for _, key := range sortedInt64Keys(byDate) {
		agg := byDate[key]
		orders := int64(len(agg.orders))
		out.Rows = append(out.Rows, []any{
			key,
			orders,
			agg.items,
			domain.Round2(agg.revenue),
			domain.Round2(agg.revenue / float64(orders)),
		})
	}
	return out
}

type productAgg struct {
	orders   map[string]bool
	quantity int64
	revenue  float64
}

// BuildAggProductPerformance rolls the fact batch up by product_key.
func BuildAggProductPerformance(facts *domain.Batch) *domain.Batch {
	byProduct := map[int64]*productAgg{}
	for r := range facts.Rows {
		key, _ := facts.Value(r, "product_key").(int64)
		agg, ok := byProduct[key]
		if !ok {
			agg = &productAgg{orders: map[string]bool{}}
			byProduct[key] = agg
		}
		orderID, _ := facts.Value(r, "order_id").(string)
		agg.orders[orderID] = true
		qty, _ := facts.Value(r, "quantity").(int64)
		agg.quantity += qty
		rev, _ := facts.Value(r, "revenue").(float64)
		agg.revenue += rev
	}

	out := &domain.Batch{Table: "agg_product_performance", Fields: AggProductPerformanceFields}
	for _, key := range sortedInt64Keys(byProduct) {
		agg := byProduct[key]
		out.Rows = append(out.Rows, []any{
			key,
			int64(len(agg.orders)),
			agg.quantity,
			domain.Round2(agg.revenue),
		})
	}
	return out
}

func sortedInt64Keys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
