// Package catalog holds the operator-configured products and plans. Plans
// are read-only to the rest of the code: the entitlement engine takes its
// access duration from here, the payment flow takes its price.
package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Plan struct {
	Product string
	Name    string
	// Days of access; 0 means unlimited.
	Days  int
	Price int64
}

func (p Plan) Unlimited() bool {
	return p.Days == 0
}

func (p Plan) Duration() time.Duration {
	return time.Duration(p.Days) * 24 * time.Hour
}

type Catalog struct {
	plans    []Plan
	products []string
}

// Parse reads a catalog spec of the form
// "product:plan:days:price;product:plan:days:price". Whitespace around
// entries is ignored, empty entries are skipped.
func Parse(spec string) (*Catalog, error) {
	c := &Catalog{}
	seen := map[string]bool{}
	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("catalog entry %q: want product:plan:days:price", entry)
		}
		product := strings.TrimSpace(parts[0])
		name := strings.TrimSpace(parts[1])
		if product == "" || name == "" {
			return nil, fmt.Errorf("catalog entry %q: empty product or plan", entry)
		}
		days, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || days < 0 {
			return nil, fmt.Errorf("catalog entry %q: bad days", entry)
		}
		price, err := strconv.ParseInt(strings.TrimSpace(parts[3]), 10, 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("catalog entry %q: bad price", entry)
		}
		c.plans = append(c.plans, Plan{Product: product, Name: name, Days: days, Price: price})
		if !seen[product] {
			seen[product] = true
			c.products = append(c.products, product)
		}
	}
	return c, nil
}

func (c *Catalog) Find(product, plan string) (Plan, bool) {
	for _, p := range c.plans {
		if p.Product == product && p.Name == plan {
			return p, true
		}
	}
	return Plan{}, false
}

func (c *Catalog) PlansFor(product string) []Plan {
	var out []Plan
	for _, p := range c.plans {
		if p.Product == product {
			out = append(out, p)
		}
	}
	return out
}

func (c *Catalog) Products() []string {
	return c.products
}

func (c *Catalog) HasProduct(product string) bool {
	for _, p := range c.products {
		if p == product {
			return true
		}
	}
	return false
}
