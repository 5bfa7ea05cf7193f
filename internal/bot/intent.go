package bot

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/musika/commerce/internal/commerce"
)

var quantityRegex = regexp.MustCompile(`(\d+)\s*x?\s+`)

type productMatch struct {
	id       string
	quantity int
}

// processOrderIntent matches catalog products against the words of a
// free-form purchase message and adds every match to the cart. A single
// leading quantity applies to all matches; each add is independent, so one
// failure does not abort the rest.
func (d *Dispatcher) processOrderIntent(ctx context.Context, phone, text, merchantID string) ([]Message, error) {
	products, err := d.api.ListProducts(ctx, merchantID)
	if err != nil {
		return []Message{Text("Could not load products. Please try again.")}, nil
	}

	matches := findProductMatches(text, products)
	if len(matches) == 0 {
		return []Message{Text("I could not find matching products. Type !menu to see what we offer.")}, nil
	}

	added := 0
	for _, m := range matches {
		if _, err := d.api.AddToCart(ctx, phone, merchantID, m.id, m.quantity); err == nil {
			added++
		}
	}

	return []Message{Text("✅ Added " + strconv.Itoa(added) + " item(s) to your cart! Type !cart to review or !checkout to proceed.")}, nil
}

// findProductMatches selects products whose name shares a word with the
// message, case-insensitively. The first number in the message becomes the
// quantity for every match, defaulting to one.
func findProductMatches(text string, products []commerce.Product) []productMatch {
	messageLower := strings.ToLower(text)

	qty := 1
	if m := quantityRegex.FindStringSubmatch(messageLower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			qty = n
		}
	}

	var matches []productMatch
	for _, p := range products {
		for _, word := range strings.Fields(strings.ToLower(p.Name)) {
			if strings.Contains(messageLower, word) {
				matches = append(matches, productMatch{id: p.ID, quantity: qty})
				break
			}
		}
	}
	return matches
}
