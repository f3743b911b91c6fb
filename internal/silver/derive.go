package silver

import (
	"regexp"
	"strings"
	"time"

	"shoplake/internal/domain"
)

// toleranceCents is the comparison tolerance for recomputed money totals.
const toleranceCents = 0.01

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// derive standardizes text fields and fills every derived field in place.
// Both are pure functions of the row, so re-running them is a no-op on
// already-derived data.
func derive(ts *domain.TableSchema, batch *domain.Batch) error {
	switch ts.Name {
	case "customers":
		deriveCustomers(batch)
	case "products":
		deriveProducts(batch)
	case "orders":
		deriveOrders(batch)
	case "order_items":
		deriveOrderItems(batch)
	default:
		// Tables without derivations pass through unchanged.
	}
	return nil
}

func deriveCustomers(batch *domain.Batch) {
	email := batch.FieldIndex("email")
	domainIdx := batch.FieldIndex("email_domain")
	valid := batch.FieldIndex("is_valid_email")
	first := batch.FieldIndex("first_name")
	last := batch.FieldIndex("last_name")
	full := batch.FieldIndex("full_name")
	country := batch.FieldIndex("country")
	city := batch.FieldIndex("city")

	for _, row := range batch.Rows {
		standardize(row, strings.ToLower, email)
		standardize(row, strings.ToUpper, country)
		standardize(row, nil, first, last, city)

		if addr, ok := row[email].(string); ok {
			row[valid] = emailPattern.MatchString(addr)
			if at := strings.LastIndex(addr, "@"); at >= 0 && at < len(addr)-1 {
				row[domainIdx] = addr[at+1:]
			}
		}

		var parts []string
		if s, ok := row[first].(string); ok && s != "" {
			parts = append(parts, s)
		}
		if s, ok := row[last].(string); ok && s != "" {
			parts = append(parts, s)
		}
		if len(parts) > 0 {
			row[full] = strings.Join(parts, " ")
		}
	}
}

func deriveProducts(batch *domain.Batch) {
	price := batch.FieldIndex("price")
	cost := batch.FieldIndex("cost")
	margin := batch.FieldIndex("margin_percent")
	sku := batch.FieldIndex("sku")
	name := batch.FieldIndex("name")
	category := batch.FieldIndex("category")
	subcategory := batch.FieldIndex("subcategory")
	brand := batch.FieldIndex("brand")

	for _, row := range batch.Rows {
		standardize(row, strings.ToUpper, sku)
		standardize(row, strings.ToLower, category)
		standardize(row, nil, name, subcategory, brand)

		p, pok := row[price].(float64)
		c, cok := row[cost].(float64)
		if pok && cok && p > 0 {
			row[margin] = domain.Round2((p - c) / p * 100)
		}
	}
}

func deriveOrders(batch *domain.Batch) {
	date := batch.FieldIndex("order_date")
	year := batch.FieldIndex("order_year")
	month := batch.FieldIndex("order_month")
	day := batch.FieldIndex("order_day")
	subtotal := batch.FieldIndex("subtotal")
	tax := batch.FieldIndex("tax_amount")
	shipping := batch.FieldIndex("shipping_amount")
	discount := batch.FieldIndex("discount_amount")
	total := batch.FieldIndex("total_amount")
	calculated := batch.FieldIndex("calculated_total")
	totalValid := batch.FieldIndex("is_total_valid")
	status := batch.FieldIndex("status")
	payment := batch.FieldIndex("payment_method")
	shipCountry := batch.FieldIndex("shipping_country")
	shipCity := batch.FieldIndex("shipping_city")

	for _, row := range batch.Rows {
		standardize(row, strings.ToLower, status, payment)
		standardize(row, strings.ToUpper, shipCountry)
		standardize(row, nil, shipCity)

		if d, ok := row[date].(time.Time); ok {
			row[year] = int64(d.Year())
			row[month] = int64(d.Month())
			row[day] = int64(d.Day())
		}

		sub, ok := row[subtotal].(float64)
		if !ok {
			continue
		}
		calc := sub + floatOrZero(row[tax]) + floatOrZero(row[shipping]) - floatOrZero(row[discount])
		calc = domain.Round2(calc)
		row[calculated] = calc
		if tot, ok := row[total].(float64); ok {
			row[totalValid] = abs(tot-calc) < toleranceCents
		}
	}
}

func deriveOrderItems(batch *domain.Batch) {
	quantity := batch.FieldIndex("quantity")
	unitPrice := batch.FieldIndex("unit_price")
	discountPct := batch.FieldIndex("discount_percent")
	gross := batch.FieldIndex("gross_amount")
	discountAmt := batch.FieldIndex("discount_amount")
	lineTotal := batch.FieldIndex("line_total")
	calculated := batch.FieldIndex("calculated_line_total")
	lineValid := batch.FieldIndex("is_line_total_valid")

	for _, row := range batch.Rows {
		qty, qok := row[quantity].(int64)
		price, pok := row[unitPrice].(float64)
		if !qok || !pok {
			continue
		}
		g := domain.Round2(float64(qty) * price)
		row[gross] = g
		d := domain.Round2(g * floatOrZero(row[discountPct]) / 100)
		row[discountAmt] = d
		calc := domain.Round2(g - d)
		row[calculated] = calc
		if lt, ok := row[lineTotal].(float64); ok {
			row[lineValid] = abs(lt-calc) < toleranceCents
		}
	}
}

// standardize trims the string value of each column in place, applying fold
// (ToLower / ToUpper) when given. Missing columns and non-string cells pass
// through untouched.
func standardize(row []any, fold func(string) string, cols ...int) {
	for _, col := range cols {
		if col < 0 {
			continue
		}
		s, ok := row[col].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if fold != nil {
			s = fold(s)
		}
		row[col] = s
	}
}

func floatOrZero(v any) float64 {
	f, _ := v.(float64)
	return f
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
