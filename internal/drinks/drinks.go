// Package drinks turns the DRINKS section into the grouped menu shown on
// the drinks page.
package drinks

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"eventsite/internal/configstore"
	"eventsite/internal/logger"
)

const (
	Section = "DRINKS"

	FieldSeparator  = ", "
	DefaultAmount   = "N/A"
	DefaultCategory = "Other"
)

var ErrPriceFormat = errors.New("invalid price")

// separator splits on a comma followed by whitespace, so "3,50" stays one
// field.
var separator = regexp.MustCompile(`,\s+`)

// pricePattern is a plain decimal after currency symbols are stripped and
// the decimal comma is replaced. Signs, exponents and hex are rejected.
var pricePattern = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)

// Drink is one menu item. Stored as "price, amount, category".
type Drink struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	RawPrice string  `json:"raw_price"`
	Amount   string  `json:"amount"`
	Category string  `json:"category"`
}

// Group is one category of the menu.
type Group struct {
	Category string  `json:"category"`
	Drinks   []Drink `json:"drinks"`
}

// Catalog is the menu grouped by category in ascending order.
type Catalog struct {
	Groups []Group `json:"groups"`
}

func (c Catalog) Empty() bool { return len(c.Groups) == 0 }

// Fields holds the raw positional fields of a stored drink value.
type Fields struct {
	Price    string
	Amount   string
	Category string
}

// SplitFields splits a stored value without interpreting it.
func SplitFields(raw string) Fields {
	parts := separator.Split(strings.TrimSpace(raw), -1)
	field := func(i int) string {
		if i < len(parts) {
			return strings.TrimSpace(parts[i])
		}
		return ""
	}
	return Fields{Price: field(0), Amount: field(1), Category: field(2)}
}

// Value serializes the fields, dropping trailing empty ones.
func (f Fields) Value() string {
	fields := []string{f.Price, f.Amount, f.Category}
	for len(fields) > 1 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, FieldSeparator)
}

// Set updates the named field ("price", "amount", "category").
func (f *Fields) Set(name, value string) bool {
	switch name {
	case "price":
		f.Price = value
	case "amount":
		f.Amount = value
	case "category":
		f.Category = value
	default:
		return false
	}
	return true
}

func (f Fields) Get(name string) (string, bool) {
	switch name {
	case "price":
		return f.Price, true
	case "amount":
		return f.Amount, true
	case "category":
		return f.Category, true
	}
	return "", false
}

// FieldNames lists the editable field names in storage order.
func FieldNames() []string {
	return []string{"price", "amount", "category"}
}

// ParsePrice accepts "3,50", "€3.50", "3.50 $" and similar.
func ParsePrice(raw string) (float64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Sc, r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if !pricePattern.MatchString(cleaned) {
		return 0, fmt.Errorf("%w: %q", ErrPriceFormat, raw)
	}
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrPriceFormat, raw)
	}
	return price, nil
}

// ParseEntry parses one stored drink. Blank amount and category take
// their defaults.
func ParseEntry(name, raw string) (Drink, error) {
	f := SplitFields(raw)
	price, err := ParsePrice(f.Price)
	if err != nil {
		return Drink{}, fmt.Errorf("drink %q: %w", name, err)
	}
	d := Drink{Name: name, Price: price, RawPrice: f.Price, Amount: f.Amount, Category: f.Category}
	if d.Amount == "" {
		d.Amount = DefaultAmount
	}
	if d.Category == "" {
		d.Category = DefaultCategory
	}
	return d, nil
}

// BuildCatalog parses every entry, sorts by category then price and groups
// by category. Entries with equal keys keep their stored order. A single
// bad entry fails the whole catalog.
func BuildCatalog(entries []configstore.Entry) (Catalog, error) {
	items := make([]Drink, 0, len(entries))
	for _, e := range entries {
		d, err := ParseEntry(e.Key, e.Value)
		if err != nil {
			return Catalog{}, err
		}
		items = append(items, d)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return items[i].Price < items[j].Price
	})

	var cat Catalog
	for _, d := range items {
		n := len(cat.Groups)
		if n == 0 || cat.Groups[n-1].Category != d.Category {
			cat.Groups = append(cat.Groups, Group{Category: d.Category})
			n++
		}
		cat.Groups[n-1].Drinks = append(cat.Groups[n-1].Drinks, d)
	}
	return cat, nil
}

// View is what the drinks page renders.
type View struct {
	Catalog Catalog `json:"catalog"`
	Note    string  `json:"note,omitempty"`
}

// BuildView is BuildCatalog with the failure folded into an empty
// catalog and a note; partial menus are never shown.
func BuildView(entries []configstore.Entry) View {
	cat, err := BuildCatalog(entries)
	if err != nil {
		logger.LogWarn("Error loading drinks: %v", err)
		return View{Note: "Error loading drinks: " + err.Error()}
	}
	return View{Catalog: cat}
}
