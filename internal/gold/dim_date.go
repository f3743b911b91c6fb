// Package gold builds the star schema: conformed dimensions, the sales fact
// and its aggregates, on top of cleaned silver batches.
package gold

import (
	"time"

	"shoplake/internal/domain"
)

// DimDateFields is the calendar dimension layout. date_key is the smart key
// YYYYMMDD used by the fact table.
var DimDateFields = []domain.FieldDef{
	{Name: "date_key", Type: domain.TypeInt},
	{Name: "full_date", Type: domain.TypeDate},
	{Name: "year", Type: domain.TypeInt},
	{Name: "quarter", Type: domain.TypeInt},
	{Name: "month", Type: domain.TypeInt},
	{Name: "month_name", Type: domain.TypeString},
	{Name: "week_of_year", Type: domain.TypeInt},
	{Name: "day_of_month", Type: domain.TypeInt},
	{Name: "day_of_week", Type: domain.TypeInt},
	{Name: "day_name", Type: domain.TypeString},
	{Name: "is_weekend", Type: domain.TypeBool},
	{Name: "fiscal_year", Type: domain.TypeInt},
	{Name: "fiscal_quarter", Type: domain.TypeInt},
}

// BuildDimDate generates the calendar dimension for [startYear, endYear],
// one row per day. The output depends only on the year range, so rebuilds
// are byte identical.
func BuildDimDate(startYear, endYear int) *domain.Batch {
	batch := &domain.Batch{Table: "dim_date", Fields: DimDateFields}

	day := time.Date(startYear, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(endYear, 12, 31, 0, 0, 0, 0, time.UTC)
	for !day.After(end) {
		_, week := day.ISOWeek()
		// time.Weekday is Sunday-based; day_of_week is 1=Monday..7=Sunday.
		dow := int64(day.Weekday())
		if dow == 0 {
			dow = 7
		}
		quarter := int64((int(day.Month())-1)/3 + 1)
		// The fiscal calendar follows the civil calendar.
		batch.Rows = append(batch.Rows, []any{
			DateKey(day),
			day,
			int64(day.Year()),
			quarter,
			int64(day.Month()),
			day.Month().String(),
			int64(week),
			int64(day.Day()),
			dow,
			day.Weekday().String(),
			dow >= 6,
			int64(day.Year()),
			quarter,
		})
		day = day.AddDate(0, 0, 1)
	}
	return batch
}

// DateKey renders a timestamp as the YYYYMMDD smart key.
func DateKey(t time.Time) int64 {
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}
