package ingest

import (
	"strings"
)

type column struct {
	name    string
	aliases []string
}

// Headers are matched after normalizeHeader, so "Unit Price", "unit_price"
// and "UNIT-PRICE" are the same column. The Bosnian aliases are the headers of
// the spreadsheet exports the dashboard was first built against.
var transactionColumns = []column{
	{name: "entity_id", aliases: []string{"entity", "firm id", "firm", "id firme", "firma", "jib"}},
	{name: "date", aliases: []string{"timestamp", "day", "datum"}},
	{name: "product", aliases: []string{"item", "proizvod", "artikal"}},
	{name: "unit_price", aliases: []string{"price", "cijena", "cijena (km)"}},
	{name: "quantity", aliases: []string{"qty", "količina", "kolicina"}},
}

var firmColumns = []column{
	{name: "entity_id", aliases: []string{"id", "firm id", "id firme", "jib"}},
	{name: "name", aliases: []string{"firm name", "naziv firme", "naziv"}},
	{name: "historical_revenue", aliases: []string{"historical revenue km", "revenue", "pos promet km", "pos promet"}},
	{name: "industry", aliases: []string{"sector", "djelatnost"}},
	{name: "bank", aliases: []string{"banka"}},
	{name: "package", aliases: []string{"plan", "paket"}},
	{name: "balance", aliases: []string{"stanje", "stanje km", "saldo"}},
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("_", " ", "-", " ").Replace(h)
	return strings.Join(strings.Fields(h), " ")
}

// resolve maps each column name to its index in header. All columns are
// required; the first matching header wins.
func resolve(source string, header []string, columns []column) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, seen := positions[key]; !seen {
			positions[key] = i
		}
	}

	idx := make(map[string]int, len(columns))
	var missing []string
	for _, c := range columns {
		found := false
		for _, candidate := range append([]string{c.name}, c.aliases...) {
			if i, ok := positions[normalizeHeader(candidate)]; ok {
				idx[c.name] = i
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, c.name)
		}
	}

	if len(missing) > 0 {
		return nil, &SchemaError{Source: source, Missing: missing}
	}
	return idx, nil
}
