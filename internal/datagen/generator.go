// Package datagen generates seeded sample e-commerce extracts for the
// landing zone. The output is deterministic for a given seed and carries a
// controlled dose of quality defects so the silver stage has something to
// catch: duplicate rows, missing optional fields, unparseable numerics, and
// orphan foreign keys.
package datagen

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"shoplake/internal/domain"
)

// Config controls dataset sizes and the defect dose.
type Config struct {
	Seed      int64
	Customers int
	Products  int
	Orders    int

	// StartDate and EndDate bound customer signups and order dates.
	StartDate time.Time
	EndDate   time.Time

	// DefectRate is the per-row probability of an injected defect. Kept low
	// by default so fail-severity rules still pass and only warn rules trip.
	DefectRate float64
}

// DefaultConfig mirrors the historical sample sizes.
func DefaultConfig() Config {
	return Config{
		Seed:       42,
		Customers:  1000,
		Products:   200,
		Orders:     5000,
		StartDate:  time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		DefectRate: 0.02,
	}
}

// Dataset holds the generated extracts, one row per record, cells already
// encoded as CSV text. An empty cell means NULL.
type Dataset struct {
	Customers  []map[string]string
	Products   []map[string]string
	Orders     []map[string]string
	OrderItems []map[string]string
}

type productInfo struct {
	id    string
	price float64
}

// Generator produces a Dataset from a seeded PRNG.
type Generator struct {
	cfg Config
	rng *rand.Rand

	customerIDs []string
	products    []productInfo
	cities      map[string]string // customer_id -> city
	countries   map[string]string // customer_id -> country
}

func New(cfg Config) *Generator {
	if cfg.Customers <= 0 {
		cfg.Customers = 1
	}
	if cfg.Products <= 0 {
		cfg.Products = 1
	}
	if cfg.EndDate.Before(cfg.StartDate) {
		cfg.EndDate = cfg.StartDate
	}
	return &Generator{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		cities:    make(map[string]string),
		countries: make(map[string]string),
	}
}

// Generate builds all four extracts. Customers and products come first so
// orders can reference them.
func (g *Generator) Generate() *Dataset {
	ds := &Dataset{}
	g.generateCustomers(ds)
	g.generateProducts(ds)
	g.generateOrders(ds)
	return ds
}

// WriteCSV writes each non-empty extract as <dir>/<table>.csv.
func (ds *Dataset) WriteCSV(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tables := []struct {
		name    string
		columns []string
		rows    []map[string]string
	}{
		{"customers", customerColumns, ds.Customers},
		{"products", productColumns, ds.Products},
		{"orders", orderColumns, ds.Orders},
		{"order_items", orderItemColumns, ds.OrderItems},
	}
	for _, t := range tables {
		if len(t.rows) == 0 {
			continue
		}
		if err := writeTable(filepath.Join(dir, t.name+".csv"), t.columns, t.rows); err != nil {
			return fmt.Errorf("write %s: %w", t.name, err)
		}
	}
	return nil
}

func writeTable(path string, columns []string, rows []map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = row[col]
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

var (
	customerColumns = []string{
		"customer_id", "email", "first_name", "last_name", "phone",
		"country", "city", "address", "created_at", "updated_at",
	}
	productColumns = []string{
		"product_id", "sku", "name", "description", "category", "subcategory",
		"brand", "price", "cost", "stock_quantity", "is_active", "created_at",
	}
	orderColumns = []string{
		"order_id", "customer_id", "order_date", "status", "payment_method",
		"subtotal", "tax_amount", "shipping_amount", "discount_amount",
		"total_amount", "currency", "shipping_country", "shipping_city",
	}
	orderItemColumns = []string{
		"order_item_id", "order_id", "product_id", "quantity", "unit_price",
		"discount_percent", "line_total",
	}
)

var firstNames = []string{
	"Anna", "Ben", "Clara", "David", "Emma", "Felix", "Greta", "Hugo",
	"Ines", "Jonas", "Katrin", "Lukas", "Marie", "Nico", "Olivia", "Paul",
	"Rosa", "Stefan", "Tessa", "Victor",
}

var lastNames = []string{
	"Müller", "Schmidt", "Dubois", "Rossi", "García", "Jansen", "Kowalski",
	"Smith", "Novak", "Silva", "Weber", "Martin", "Bianchi", "López",
	"de Vries", "Nowak", "Brown", "Fischer", "Moreau", "Costa",
}

var countries = []struct {
	code   string
	weight int
}{
	{"DE", 25}, {"FR", 20}, {"GB", 15}, {"ES", 12}, {"IT", 10},
	{"NL", 8}, {"PL", 5}, {"BE", 3}, {"AT", 1}, {"PT", 1},
}

var citiesByCountry = map[string][]string{
	"DE": {"Berlin", "Hamburg", "Munich", "Cologne"},
	"FR": {"Paris", "Lyon", "Marseille", "Lille"},
	"GB": {"London", "Manchester", "Leeds", "Bristol"},
	"ES": {"Madrid", "Barcelona", "Valencia", "Seville"},
	"IT": {"Rome", "Milan", "Naples", "Turin"},
	"NL": {"Amsterdam", "Rotterdam", "Utrecht", "Eindhoven"},
	"PL": {"Warsaw", "Krakow", "Gdansk", "Wroclaw"},
	"BE": {"Brussels", "Antwerp", "Ghent", "Bruges"},
	"AT": {"Vienna", "Graz", "Linz", "Salzburg"},
	"PT": {"Lisbon", "Porto", "Braga", "Coimbra"},
}

type productTemplate struct {
	category string
	brands   []string
	items    []struct {
		name     string
		min, max float64
	}
}

var productTemplates = []productTemplate{
	{
		category: "electronics",
		brands:   []string{"Samsung", "Sony", "Philips", "Xiaomi"},
		items: []struct {
			name     string
			min, max float64
		}{
			{"Smartphone", 299, 899}, {"Laptop", 499, 1999}, {"Headphones", 29, 349},
			{"Smart Watch", 99, 499}, {"Speaker", 49, 399},
		},
	},
	{
		category: "clothing",
		brands:   []string{"Nike", "Adidas", "Zara", "Uniqlo"},
		items: []struct {
			name     string
			min, max float64
		}{
			{"T-Shirt", 15, 59}, {"Jeans", 39, 129}, {"Jacket", 59, 249},
			{"Sneakers", 49, 199}, {"Hoodie", 35, 99},
		},
	},
	{
		category: "home_garden",
		brands:   []string{"IKEA", "Bosch", "Dyson", "Gardena"},
		items: []struct {
			name     string
			min, max float64
		}{
			{"Vacuum Cleaner", 99, 599}, {"Coffee Machine", 49, 399},
			{"Lamp", 19, 149}, {"Chair", 49, 299},
		},
	},
	{
		category: "sports",
		brands:   []string{"Puma", "Under Armour", "Reebok", "Decathlon"},
		items: []struct {
			name     string
			min, max float64
		}{
			{"Running Shoes", 59, 199}, {"Yoga Mat", 15, 79},
			{"Bicycle", 199, 999}, {"Fitness Tracker", 49, 249},
		},
	},
	{
		category: "books",
		brands:   []string{"Penguin", "HarperCollins", "Macmillan", "Hachette"},
		items: []struct {
			name     string
			min, max float64
		}{
			{"Fiction Novel", 9, 29}, {"Technical Manual", 29, 89},
			{"Cookbook", 15, 45}, {"Biography", 14, 34},
		},
	},
}

var orderStatuses = []string{"pending", "processing", "shipped", "delivered", "cancelled", "refunded"}

var paymentMethods = []string{"credit_card", "debit_card", "paypal", "bank_transfer", "gift_card"}

func (g *Generator) id(prefix string) string {
	u := uuid.Must(uuid.NewRandomFromReader(g.rng))
	return fmt.Sprintf("%s-%X", prefix, u[:4])
}

func (g *Generator) defect() bool {
	return g.rng.Float64() < g.cfg.DefectRate
}

func (g *Generator) dateBetween() time.Time {
	span := int(g.cfg.EndDate.Sub(g.cfg.StartDate).Hours() / 24)
	if span <= 0 {
		return g.cfg.StartDate
	}
	return g.cfg.StartDate.AddDate(0, 0, g.rng.Intn(span+1))
}

func (g *Generator) pickCountry() string {
	total := 0
	for _, c := range countries {
		total += c.weight
	}
	n := g.rng.Intn(total)
	for _, c := range countries {
		n -= c.weight
		if n < 0 {
			return c.code
		}
	}
	return countries[0].code
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func (g *Generator) generateCustomers(ds *Dataset) {
	for i := 0; i < g.cfg.Customers; i++ {
		id := g.id("CUST")
		first := firstNames[g.rng.Intn(len(firstNames))]
		last := lastNames[g.rng.Intn(len(lastNames))]
		country := g.pickCountry()
		cities := citiesByCountry[country]
		city := cities[g.rng.Intn(len(cities))]
		created := g.dateBetween()

		row := map[string]string{
			"customer_id": id,
			"email":       fmt.Sprintf("%s.%s%d@example.com", lower(first), lower(last), g.rng.Intn(1000)),
			"first_name":  first,
			"last_name":   last,
			"phone":       fmt.Sprintf("+%d %d", 30+g.rng.Intn(20), 100000000+g.rng.Intn(900000000)),
			"country":     country,
			"city":        city,
			"address":     fmt.Sprintf("%d %s Street", 1+g.rng.Intn(200), city),
			"created_at":  created.Format(time.RFC3339),
			"updated_at":  "",
		}
		if g.rng.Float64() < 0.3 {
			row["phone"] = ""
		}
		if g.defect() {
			// Missing email; caught by the completeness rule as a warning
			// dose well under its failure threshold.
			row["email"] = ""
		}

		ds.Customers = append(ds.Customers, row)
		g.customerIDs = append(g.customerIDs, id)
		g.cities[id] = city
		g.countries[id] = country

		if g.defect() {
			// Full duplicate, dropped by silver dedup.
			dup := make(map[string]string, len(row))
			for k, v := range row {
				dup[k] = v
			}
			ds.Customers = append(ds.Customers, dup)
		}
	}
}

func (g *Generator) generateProducts(ds *Dataset) {
	count := 0
	for count < g.cfg.Products {
		tpl := productTemplates[g.rng.Intn(len(productTemplates))]
		item := tpl.items[g.rng.Intn(len(tpl.items))]
		brand := tpl.brands[g.rng.Intn(len(tpl.brands))]

		id := g.id("PROD")
		price := round2(item.min + g.rng.Float64()*(item.max-item.min))
		cost := round2(price * (0.4 + g.rng.Float64()*0.3))

		row := map[string]string{
			"product_id":     id,
			"sku":            fmt.Sprintf("%s-%s-%04d", upper3(brand), upper3(tpl.category), count),
			"name":           fmt.Sprintf("%s %s", brand, item.name),
			"description":    fmt.Sprintf("%s %s by %s.", tpl.category, item.name, brand),
			"category":       tpl.category,
			"subcategory":    item.name,
			"brand":          brand,
			"price":          money(price),
			"cost":           money(cost),
			"stock_quantity": strconv.Itoa(g.rng.Intn(501)),
			"is_active":      strconv.FormatBool(g.rng.Float64() > 0.1),
			"created_at":     g.dateBetween().Format(time.RFC3339),
		}
		if g.defect() {
			// Unparseable cost; the silver cast turns it into NULL.
			row["cost"] = "n/a"
		}

		ds.Products = append(ds.Products, row)
		g.products = append(g.products, productInfo{id: id, price: price})
		count++
	}
}

func (g *Generator) generateOrders(ds *Dataset) {
	// 20% of customers place 80% of orders.
	vipCut := len(g.customerIDs) / 5
	if vipCut == 0 {
		vipCut = 1
	}

	for i := 0; i < g.cfg.Orders; i++ {
		orderID := g.id("ORD")

		var customerID string
		if g.rng.Float64() < 0.8 {
			customerID = g.customerIDs[g.rng.Intn(vipCut)]
		} else {
			customerID = g.customerIDs[g.rng.Intn(len(g.customerIDs))]
		}

		orderDate := g.dateBetween()
		numItems := 1 + g.rng.Intn(5)

		subtotal := 0.0
		for j := 0; j < numItems; j++ {
			p := g.products[g.rng.Intn(len(g.products))]

			quantity := 1 + g.rng.Intn(5)
			discount := 0.0
			if g.rng.Float64() < 0.2 {
				discount = float64(5 * (1 + g.rng.Intn(5)))
			}
			lineTotal := round2(float64(quantity) * p.price * (1 - discount/100))
			subtotal += lineTotal

			item := map[string]string{
				"order_item_id":    g.id("ITEM"),
				"order_id":         orderID,
				"product_id":       p.id,
				"quantity":         strconv.Itoa(quantity),
				"unit_price":       money(p.price),
				"discount_percent": money(discount),
				"line_total":       money(lineTotal),
			}
			switch {
			case g.defect():
				// Orphan product reference, rejected at the fact stage.
				item["product_id"] = g.id("PROD")
			case g.defect():
				// Zero quantity, rejected at the fact stage.
				item["quantity"] = "0"
			}
			ds.OrderItems = append(ds.OrderItems, item)
		}

		country := g.countries[customerID]
		taxRate := 0.19
		if country == "NL" || country == "BE" {
			taxRate = 0.21
		}
		tax := round2(subtotal * taxRate)
		shipping := 0.0
		if subtotal <= 50 {
			shipping = round2(3.99 + g.rng.Float64()*6)
		}
		discount := 0.0
		if subtotal > 200 {
			discount = round2(subtotal * 0.05)
		}
		total := round2(subtotal + tax + shipping - discount)

		row := map[string]string{
			"order_id":         orderID,
			"customer_id":      customerID,
			"order_date":       orderDate.Format(time.RFC3339),
			"status":           orderStatuses[g.rng.Intn(len(orderStatuses))],
			"payment_method":   paymentMethods[g.rng.Intn(len(paymentMethods))],
			"subtotal":         money(round2(subtotal)),
			"tax_amount":       money(tax),
			"shipping_amount":  money(shipping),
			"discount_amount":  money(discount),
			"total_amount":     money(total),
			"currency":         "EUR",
			"shipping_country": country,
			"shipping_city":    g.cities[customerID],
		}
		if g.defect() {
			// Orphan customer reference, flagged by the referential warn rule.
			row["customer_id"] = g.id("CUST")
		}
		ds.Orders = append(ds.Orders, row)
	}
}

func round2(v float64) float64 {
	return domain.Round2(v)
}

func lower(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			out = append(out, r)
		}
	}
	return string(out)
}

func upper3(s string) string {
	out := make([]rune, 0, 3)
	for _, r := range s {
		if len(out) == 3 {
			break
		}
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if r >= 'A' && r <= 'Z' {
			out = append(out, r)
		}
	}
	return string(out)
}
