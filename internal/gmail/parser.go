package gmail

import (
	"math"
	"net/mail"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/calvinlock/tally/internal/model"
)

// Receipt emails arrive as marketing-grade HTML. Parsing works on the
// flattened plain text: strip tags, decode entities, collapse whitespace,
// then pick line items and the charged total out with regexes.

var (
	priceRe     = regexp.MustCompile(`\$(\d+\.\d{2})`)
	appleCareRe = regexp.MustCompile(`(?i)(AppleCare\+[^$]*?)(?:Monthly Plan|Yearly|Annual)`)
	// Coverage name minus the plan words and surrounding boilerplate.
	appleCareNameRe = regexp.MustCompile(`(?i)AppleCare\+(?:\s+with\s+(?:Theft\s+(?:&|and)\s+Loss))?`)
	subscriptionRe  = regexp.MustCompile(`(?i)([A-Za-z][A-Za-z0-9\s\-:.&+]+?)\s*\((\d+\s*Days?|\d+\s*Weeks?|Monthly|Yearly|Annual|Weekly)\)[^(]*$`)
	inlineRenewRe   = regexp.MustCompile(`(?i)([A-Za-z][A-Za-z0-9\s\-:.&+]+?)\s+(Monthly|Yearly|Annual)\s+Renews`)

	totalRe       = regexp.MustCompile(`(?i)\bTOTAL\s*\$(\d+\.?\d*)`)
	paymentCardRe = regexp.MustCompile(`(?i)(?:American Express|Amex|Visa|Mastercard|Discover|Card)[^$]*\$(\d+\.\d{2})`)
	subtotalRe    = regexp.MustCompile(`(?i)Subtotal\s*\$(\d+\.?\d*)`)
	anyAmountRe   = regexp.MustCompile(`\$(\d+\.?\d*)`)

	whitespaceRe = regexp.MustCompile(`\s+`)
	digitsOnlyRe = regexp.MustCompile(`^\d+$`)
	segmentRe    = regexp.MustCompile(`\s{2,}|\n`)

	// Boilerplate the store mixes into the text next to item names. Applied
	// repeatedly until the name stops changing.
	nameCleanupRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)DOCUMENT\s+NO\.\s*\d+\s*`),
		regexp.MustCompile(`(?i)(?:App Store|Mac App Store|iPhone|iPad|Report a Problem)\s*`),
		regexp.MustCompile(`(?i)(?:Renews|Billing|Order ID|APPLE ACCOUNT|Apple Account)[^A-Z]*`),
		regexp.MustCompile(`(?i)^.*?gmail\.com\s*`),
		regexp.MustCompile(`(?i)^.*?@[a-z]+\.[a-z]+\s*`),
		regexp.MustCompile(`^[A-Z0-9]{8,}\s+NO\.\s*\d+\s*`),
		regexp.MustCompile(`^[A-Z0-9]{8,}\s+`),
		regexp.MustCompile(`^\s*\d+\s*`),
	}

	subscriptionPlanWords = []string{"monthly", "yearly", "annual", "days", "week"}
)

type lineItem struct {
	Name        string
	PlanType    string
	AmountCents int64
}

// htmlToText flattens an HTML document (or passes plain text through) into a
// single whitespace-normalized line.
func htmlToText(raw string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(raw))

	var b strings.Builder
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return whitespaceRe.ReplaceAllString(strings.TrimSpace(b.String()), " ")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "style" || tag == "script" {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); (tag == "style" || tag == "script") && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.WriteString(tokenizer.Token().Data)
				b.WriteByte(' ')
			}
		}
	}
}

func dollarsToCents(s string) int64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

// extractLineItems walks the text in (preceding text, price) pairs and pulls
// a purchase name out of each chunk that looks like a line item.
func extractLineItems(text string) []lineItem {
	var items []lineItem

	prev := 0
	for _, m := range priceRe.FindAllStringSubmatchIndex(text, -1) {
		beforePrice := text[prev:m[0]]
		cents := dollarsToCents(text[m[2]:m[3]])
		prev = m[1]

		if cents <= 0 {
			continue
		}

		// AppleCare receipts put the plan words after the coverage name
		// instead of in parentheses.
		if acMatch := appleCareRe.FindStringSubmatch(beforePrice); acMatch != nil {
			name := "AppleCare+"
			if clean := appleCareNameRe.FindString(acMatch[1]); clean != "" {
				name = strings.TrimSpace(clean)
			}
			planType := "(Yearly)"
			if strings.Contains(strings.ToLower(beforePrice), "monthly") {
				planType = "(Monthly)"
			}
			items = append(items, lineItem{Name: name, PlanType: planType, AmountCents: cents})
			continue
		}

		match := subscriptionRe.FindStringSubmatch(beforePrice)
		if match == nil {
			match = inlineRenewRe.FindStringSubmatch(beforePrice)
		}
		if match == nil {
			continue
		}

		name := cleanItemName(match[1])
		if len(name) < 3 || digitsOnlyRe.MatchString(name) {
			continue
		}
		items = append(items, lineItem{
			Name:        name,
			PlanType:    "(" + match[2] + ")",
			AmountCents: cents,
		})
	}
	return items
}

func cleanItemName(name string) string {
	name = strings.TrimSpace(name)
	prev := ""
	for prev != name {
		prev = name
		for _, re := range nameCleanupRes {
			name = re.ReplaceAllString(name, "")
		}
		name = strings.TrimSpace(name)
	}

	// Over-long names mean the chunk swallowed unrelated text; keep the last
	// visually separated segment.
	if len(name) > 80 {
		segments := segmentRe.Split(name, -1)
		if last := segments[len(segments)-1]; last != "" {
			name = last
		}
	}
	return strings.TrimSpace(name)
}

// chargedAmountCents finds what was actually billed. Precedence: the TOTAL
// line (includes tax, which is what the bank sees), then the payment card
// line, then the first line item, then subtotal, then any dollar figure.
func chargedAmountCents(text string, items []lineItem) int64 {
	if m := totalRe.FindStringSubmatch(text); m != nil {
		return dollarsToCents(m[1])
	}
	if m := paymentCardRe.FindStringSubmatch(text); m != nil {
		return dollarsToCents(m[1])
	}
	if len(items) > 0 {
		return items[0].AmountCents
	}
	if m := subtotalRe.FindStringSubmatch(text); m != nil {
		return dollarsToCents(m[1])
	}
	if m := anyAmountRe.FindStringSubmatch(text); m != nil {
		return dollarsToCents(m[1])
	}
	return 0
}

// parseReceipt assembles a Receipt from a message's subject, RFC 2822 date
// header, and body. Returns nil when the date header is unusable.
func parseReceipt(messageID, subject, dateHeader, body string) *model.Receipt {
	date, err := mail.ParseDate(dateHeader)
	if err != nil {
		return nil
	}

	text := htmlToText(body)
	items := extractLineItems(text)

	itemName := subject
	itemType := model.ReceiptTypeOther

	if len(items) > 0 {
		first := items[0]
		itemName = first.Name

		plan := strings.ToLower(first.PlanType)
		for _, word := range subscriptionPlanWords {
			if strings.Contains(plan, word) {
				itemType = model.ReceiptTypeSubscription
				break
			}
		}
	}

	// Known services trump the line-item classification.
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "icloud"):
		itemType = model.ReceiptTypeICloud
		if itemName == subject {
			itemName = "iCloud Storage"
		}
	case strings.Contains(lower, "apple music"):
		itemType = model.ReceiptTypeMusic
		if itemName == subject {
			itemName = "Apple Music"
		}
	}

	if len(itemName) > 200 {
		itemName = itemName[:200]
	}

	return &model.Receipt{
		MessageID:   messageID,
		Date:        date,
		AmountCents: chargedAmountCents(text, items),
		ItemName:    itemName,
		ItemType:    itemType,
		RawSubject:  subject,
	}
}
