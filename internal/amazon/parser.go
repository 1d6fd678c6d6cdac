package amazon

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/calvinlock/tally/internal/common"
	"github.com/calvinlock/tally/internal/model"
)

// The order history page has no stable markup contract, so extraction is
// anchored on the one reliable signal: spans whose text is an order id.
// Date and total are pulled from the nearest ancestor that mentions both.

var (
	orderIDRe      = regexp.MustCompile(`^\d{3}-\d{7}-\d{7}$`)
	anyOrderIDRe   = regexp.MustCompile(`\d{3}-\d{7}-\d{7}`)
	blockOrderIDRe = regexp.MustCompile(`Order\s*#\s*(\d{3}-\d{7}-\d{7})`)
	orderPlacedRe  = regexp.MustCompile(`Order placed\s*(\w+\s+\d{1,2},?\s+\d{4})`)
	orderTotalRe   = regexp.MustCompile(`Total\s*\$\s*([0-9,.]+)`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// maxAncestorHops bounds the climb from an order id span to its order card.
const maxAncestorHops = 15

// ParseOrders extracts orders from an order history page snapshot.
func ParseOrders(pageHTML string) ([]model.Order, error) {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, err
	}

	var orders []model.Order
	seen := make(map[string]bool)

	for _, span := range findOrderIDSpans(doc) {
		orderID := strings.TrimSpace(nodeText(span))
		if seen[orderID] {
			continue
		}

		dateStr, totalCents := findOrderHeader(span)
		if dateStr == "" {
			continue
		}

		seen[orderID] = true
		orders = append(orders, model.Order{
			OrderID:    orderID,
			Date:       parseOrderDate(dateStr),
			TotalCents: totalCents,
		})
	}

	attachItems(doc, orders)
	return orders, nil
}

func findOrderIDSpans(doc *html.Node) []*html.Node {
	var spans []*html.Node
	walk(doc, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "span" &&
			orderIDRe.MatchString(strings.TrimSpace(nodeText(n))) {
			spans = append(spans, n)
		}
	})
	return spans
}

// findOrderHeader climbs from the order id span looking for the ancestor
// whose text carries the "Order placed" date and the charged total.
func findOrderHeader(span *html.Node) (string, int64) {
	var dateStr string
	var totalCents int64

	container := span.Parent
	for i := 0; i < maxAncestorHops && container != nil; i++ {
		text := nodeText(container)
		// An ancestor holding several order ids has crossed into a shared
		// container; its date and total would belong to a different order.
		if ids := anyOrderIDRe.FindAllString(text, -1); countDistinct(ids) > 1 {
			break
		}
		if strings.Contains(text, "Order placed") && strings.Contains(text, "Total") {
			if m := orderPlacedRe.FindStringSubmatch(text); m != nil {
				dateStr = strings.TrimSpace(m[1])
			}
			if m := orderTotalRe.FindStringSubmatch(text); m != nil {
				totalCents = parsePriceCents(m[1])
			}
			if dateStr != "" && totalCents > 0 {
				break
			}
		}
		container = container.Parent
	}
	return dateStr, totalCents
}

// attachItems fills in item names by scanning blocks whose class mentions
// "order" for product links. Prices per item are not exposed on the history
// page, only the order total.
func attachItems(doc *html.Node, orders []model.Order) {
	byID := make(map[string]*model.Order, len(orders))
	for i := range orders {
		byID[orders[i].OrderID] = &orders[i]
	}

	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || !strings.Contains(attrValue(n, "class"), "order") {
			return
		}

		m := blockOrderIDRe.FindStringSubmatch(nodeText(n))
		if m == nil {
			return
		}
		order, ok := byID[m[1]]
		if !ok {
			return
		}

		walk(n, func(link *html.Node) {
			if link.Type != html.ElementNode || link.Data != "a" ||
				!strings.Contains(attrValue(link, "href"), "/dp/") {
				return
			}

			name := strings.TrimSpace(whitespaceRe.ReplaceAllString(nodeText(link), " "))
			if len(name) <= 5 || len(name) >= 250 {
				return
			}
			lower := strings.ToLower(name)
			if strings.Contains(lower, "buy it again") || strings.Contains(lower, "view your item") {
				return
			}
			for _, existing := range order.Items {
				if existing.Name == name {
					return
				}
			}

			if len(name) > 200 {
				name = name[:200]
			}
			order.Items = append(order.Items, model.OrderItem{Name: name, Quantity: 1})
		})
	})
}

// parseOrderDate handles the "December 10, 2024" and "Dec 10, 2024" formats.
// Unparseable dates come back zero, which keeps the order out of matching.
func parseOrderDate(dateStr string) time.Time {
	cleaned := strings.TrimSpace(whitespaceRe.ReplaceAllString(dateStr, " "))
	for _, layout := range []string{"January 2, 2006", "Jan 2, 2006", "January 2 2006", "Jan 2 2006"} {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t
		}
	}
	common.LogInfo("Could not parse order date", common.Fields{"date": dateStr})
	return time.Time{}
}

func parsePriceCents(priceStr string) int64 {
	cleaned := strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(priceStr))
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(value * 100))
}

func countDistinct(values []string) int {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return len(set)
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
	})
	return b.String()
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
