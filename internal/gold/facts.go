package gold

import (
	"sort"
	"time"

	"shoplake/internal/domain"
)

// FactSalesFields is the sales fact layout, one row per valid order item.
var FactSalesFields = []domain.FieldDef{
	{Name: "sale_key", Type: domain.TypeString},
	{Name: "order_id", Type: domain.TypeString},
	{Name: "date_key", Type: domain.TypeInt},
	{Name: "customer_key", Type: domain.TypeInt},
	{Name: "product_key", Type: domain.TypeInt},
	{Name: "quantity", Type: domain.TypeInt},
	{Name: "unit_price", Type: domain.TypeDouble},
	{Name: "discount", Type: domain.TypeDouble},
	{Name: "gross_revenue", Type: domain.TypeDouble},
	{Name: "revenue", Type: domain.TypeDouble},
	{Name: "cost_of_goods", Type: domain.TypeDouble, Nullable: true},
	{Name: "profit", Type: domain.TypeDouble, Nullable: true},
	{Name: "profit_margin_pct", Type: domain.TypeDouble, Nullable: true},
}

// RejectFields is the layout of the rejects set: the offending item's keys
// plus the reject category.
var RejectFields = []domain.FieldDef{
	{Name: "sale_key", Type: domain.TypeString},
	{Name: "order_id", Type: domain.TypeString, Nullable: true},
	{Name: "product_id", Type: domain.TypeString, Nullable: true},
	{Name: "reason", Type: domain.TypeString},
}

// FactInput carries the silver batches and dimension snapshots the fact
// build joins against.
type FactInput struct {
	Items       *domain.Batch // silver order_items
	Orders      *domain.Batch // silver orders
	DimDate     *domain.Batch
	DimCustomer *domain.Batch
	DimProduct  *domain.Batch
}

// FactOutput is the fact build result: valid fact rows, the rejects set,
// and reject counts per category.
type FactOutput struct {
	Facts   *domain.Batch
	Rejects *domain.Batch
	Counts  map[string]int
}

// BuildFacts joins order items against orders and the dimension snapshots,
// computes revenue, and routes violations to the rejects set instead of
// aborting. Every emitted foreign key resolves in the snapshot it was built
// from, date_key included: orders dated outside the dim_date calendar are
// rejected. Output is sorted by (date_key, sale_key) so identical inputs
// produce identical bytes.
func BuildFacts(in FactInput) (*FactOutput, error) {
	orderIdx, err := indexBy(in.Orders, "order_id")
	if err != nil {
		return nil, err
	}
	customerKeys, err := surrogatesBy(in.DimCustomer, "customer_id", "customer_key")
	if err != nil {
		return nil, err
	}
	productKeys, err := surrogatesBy(in.DimProduct, "product_id", "product_key")
	if err != nil {
		return nil, err
	}
	productCosts := costsBy(in.DimProduct)
	minDateKey, maxDateKey, err := dateKeyRange(in.DimDate)
	if err != nil {
		return nil, err
	}

	out := &FactOutput{
		Facts:   &domain.Batch{Table: "fact_sales", Fields: FactSalesFields},
		Rejects: &domain.Batch{Table: "fact_sales_rejects", Fields: RejectFields},
		Counts:  map[string]int{},
	}

	for r := range in.Items.Rows {
		itemID, _ := in.Items.Value(r, "order_item_id").(string)
		orderID, _ := in.Items.Value(r, "order_id").(string)
		productID, _ := in.Items.Value(r, "product_id").(string)

		orderRow, ok := orderIdx[orderID]
		if !ok {
			out.reject(itemID, orderID, productID, domain.RejectReferential)
			continue
		}
		customerID, _ := in.Orders.Value(orderRow, "customer_id").(string)
		customerKey, ok := customerKeys[customerID]
		if !ok {
			out.reject(itemID, orderID, productID, domain.RejectReferential)
			continue
		}
		productKey, ok := productKeys[productID]
		if !ok {
			out.reject(itemID, orderID, productID, domain.RejectReferential)
			continue
		}
		orderDate, ok := in.Orders.Value(orderRow, "order_date").(time.Time)
		if !ok {
			out.reject(itemID, orderID, productID, domain.RejectReferential)
			continue
		}
		dateKey := DateKey(orderDate)
		if dateKey < minDateKey || dateKey > maxDateKey {
			// Orders dated outside the calendar dimension have no
			// dim_date row to join to.
			out.reject(itemID, orderID, productID, domain.RejectReferential)
			continue
		}

		quantity, _ := in.Items.Value(r, "quantity").(int64)
		if quantity <= 0 {
			out.reject(itemID, orderID, productID, domain.RejectNonPositiveQy)
			continue
		}
		unitPrice, _ := in.Items.Value(r, "unit_price").(float64)
		discount := floatOrZero(in.Items.Value(r, "discount_amount"))
		gross := domain.Round2(float64(quantity) * unitPrice)
		revenue := domain.Round2(gross - discount)
		if revenue < 0 {
			out.reject(itemID, orderID, productID, domain.RejectNegativeRev)
			continue
		}

		// Profit measures are null when the product has no recorded cost.
		var costOfGoods, profit, marginPct any
		if cost, ok := productCosts[productID]; ok {
			c := domain.Round2(float64(quantity) * cost)
			p := domain.Round2(revenue - c)
			costOfGoods, profit = c, p
			if revenue > 0 {
				marginPct = domain.Round2(p / revenue * 100)
			}
		}

		out.Facts.Rows = append(out.Facts.Rows, []any{
			itemID,
			orderID,
			dateKey,
			customerKey,
			productKey,
			quantity,
			unitPrice,
			discount,
			gross,
			revenue,
			costOfGoods,
			profit,
			marginPct,
		})
	}

	sort.SliceStable(out.Facts.Rows, func(i, j int) bool {
		a, b := out.Facts.Rows[i], out.Facts.Rows[j]
		if a[2].(int64) != b[2].(int64) {
			return a[2].(int64) < b[2].(int64)
		}
		return a[0].(string) < b[0].(string)
	})
	sort.SliceStable(out.Rejects.Rows, func(i, j int) bool {
		return out.Rejects.Rows[i][0].(string) < out.Rejects.Rows[j][0].(string)
	})
	return out, nil
}

func (o *FactOutput) reject(itemID, orderID, productID, reason string) {
	o.Counts[reason]++
	o.Rejects.Rows = append(o.Rejects.Rows, []any{itemID, anyOrNil(orderID), anyOrNil(productID), reason})
}

func anyOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func floatOrZero(v any) float64 {
	f, _ := v.(float64)
	return f
}

// indexBy maps each row's value in the named field to its row number.
func indexBy(batch *domain.Batch, field string) (map[string]int, error) {
	col := batch.FieldIndex(field)
	if col < 0 {
		return nil, domain.ErrSchema("batch %q lacks field %q", batch.Table, field)
	}
	idx := make(map[string]int, len(batch.Rows))
	for r, row := range batch.Rows {
		if s, ok := row[col].(string); ok {
			idx[s] = r
		}
	}
	return idx, nil
}

// dateKeyRange returns the calendar bounds of the dim_date snapshot.
// BuildDimDate emits days in order, so the first and last rows carry the
// bounds.
func dateKeyRange(dim *domain.Batch) (int64, int64, error) {
	if dim == nil || dim.NumRows() == 0 {
		return 0, 0, domain.ErrSchema("fact build requires a non-empty dim_date snapshot")
	}
	col := dim.FieldIndex("date_key")
	if col < 0 {
		return 0, 0, domain.ErrSchema("dimension %q lacks field %q", dim.Table, "date_key")
	}
	lo, _ := dim.Rows[0][col].(int64)
	hi, _ := dim.Rows[dim.NumRows()-1][col].(int64)
	return lo, hi, nil
}

// costsBy maps product IDs to their unit cost, skipping products whose
// cost is null.
func costsBy(dim *domain.Batch) map[string]float64 {
	idCol := dim.FieldIndex("product_id")
	costCol := dim.FieldIndex("cost")
	out := map[string]float64{}
	if idCol < 0 || costCol < 0 {
		return out
	}
	for _, row := range dim.Rows {
		id, iok := row[idCol].(string)
		cost, cok := row[costCol].(float64)
		if iok && cok {
			out[id] = cost
		}
	}
	return out
}

// surrogatesBy maps a dimension's natural keys to its surrogate keys.
func surrogatesBy(dim *domain.Batch, naturalField, keyField string) (map[string]int64, error) {
	ncol := dim.FieldIndex(naturalField)
	kcol := dim.FieldIndex(keyField)
	if ncol < 0 || kcol < 0 {
		return nil, domain.ErrSchema("dimension %q lacks %q or %q", dim.Table, naturalField, keyField)
	}
	out := make(map[string]int64, len(dim.Rows))
	for _, row := range dim.Rows {
		natural, nok := row[ncol].(string)
		key, kok := row[kcol].(int64)
		if nok && kok {
			out[natural] = key
		}
	}
	return out, nil
}
