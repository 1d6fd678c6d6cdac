package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/calvinlock/tally/internal/model"
	"github.com/calvinlock/tally/internal/suggest"
)

// ErrQuit is returned when the user ends the session early.
var ErrQuit = errors.New("session ended by user")

// maxSearchResults bounds the category picker list.
const maxSearchResults = 8

// Decision is the user's verdict on one transaction.
type Decision struct {
	Transaction  model.Transaction
	CategoryID   string
	CategoryName string
	// Accepted is false only when a shown suggestion was overridden with a
	// different category.
	Accepted bool
	Skipped  bool
}

// Prompter runs the interactive categorization conversation on a terminal.
type Prompter struct {
	reader     *NonBlockingReader
	writer     io.Writer
	categories []model.Category
}

// NewPrompter creates a prompter over the given streams and category list.
func NewPrompter(reader io.Reader, writer io.Writer, categories []model.Category) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Prompter{
		reader:     NewNonBlockingReader(reader),
		writer:     writer,
		categories: categories,
	}
}

// Decide shows one transaction with its purchase context and suggestion, and
// collects the user's category decision.
func (p *Prompter) Decide(ctx context.Context, txn model.Transaction, purchaseContext string, suggestion *suggest.Suggestion) (Decision, error) {
	select {
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	default:
	}

	fmt.Fprintln(p.writer, RenderBox("Transaction", p.formatTransaction(txn, purchaseContext)))

	if suggestion != nil {
		fmt.Fprintf(p.writer, "  [a] Accept suggestion: %s %s %s\n",
			ConfidenceIcon(suggestion.Confidence),
			SuccessStyle.Render(suggestion.CategoryName),
			SubtleStyle.Render(fmt.Sprintf("(seen %d times)", suggestion.MatchCount)))
	}
	fmt.Fprintln(p.writer, "  [c] Choose a category")
	fmt.Fprintln(p.writer, "  [s] Skip")
	fmt.Fprintln(p.writer, "  [q] Quit")
	fmt.Fprintln(p.writer)

	valid := []string{"c", "s", "q"}
	if suggestion != nil {
		valid = append([]string{"a"}, valid...)
	}

	choice, err := p.promptChoice(ctx, valid)
	if err != nil {
		return Decision{}, err
	}

	switch choice {
	case "a":
		return Decision{
			Transaction:  txn,
			CategoryID:   suggestion.CategoryID,
			CategoryName: suggestion.CategoryName,
			Accepted:     true,
		}, nil
	case "c":
		category, err := p.pickCategory(ctx)
		if err != nil {
			return Decision{}, err
		}
		if category == nil {
			return Decision{Transaction: txn, Skipped: true}, nil
		}
		accepted := suggestion == nil || suggestion.CategoryID == category.ID
		return Decision{
			Transaction:  txn,
			CategoryID:   category.ID,
			CategoryName: category.Name,
			Accepted:     accepted,
		}, nil
	case "q":
		return Decision{}, ErrQuit
	default:
		return Decision{Transaction: txn, Skipped: true}, nil
	}
}

func (p *Prompter) formatTransaction(txn model.Transaction, purchaseContext string) string {
	lines := []string{
		fmt.Sprintf("%s  %s", BoldStyle.Render(txn.PayeeName), FormatMilliunits(txn.Amount)),
		SubtleStyle.Render(FormatDate(txn.Date)),
	}
	if txn.Memo != "" {
		lines = append(lines, SubtleStyle.Render(txn.Memo))
	}
	if purchaseContext != "" {
		lines = append(lines, InfoStyle.Render(LinkIcon+" "+purchaseContext))
	}
	return strings.Join(lines, "\n")
}

func (p *Prompter) promptChoice(ctx context.Context, valid []string) (string, error) {
	for {
		fmt.Fprint(p.writer, FormatPrompt("Choice ["+strings.Join(valid, "/")+"]"))

		line, err := p.reader.ReadLine(ctx)
		if err != nil {
			return "", err
		}
		line = strings.ToLower(strings.TrimSpace(line))

		for _, v := range valid {
			if line == v {
				return line, nil
			}
		}
		fmt.Fprintln(p.writer, FormatWarning("Invalid choice"))
	}
}

// pickCategory runs the fuzzy search loop. A nil category means the user
// backed out.
func (p *Prompter) pickCategory(ctx context.Context) (*model.Category, error) {
	for {
		fmt.Fprint(p.writer, FormatPrompt("Search categories (empty to cancel)"))

		query, err := p.reader.ReadLine(ctx)
		if err != nil {
			return nil, err
		}
		if query == "" {
			return nil, nil
		}

		matches := p.searchCategories(query)
		if len(matches) == 0 {
			fmt.Fprintln(p.writer, FormatWarning("No categories match "+strconv.Quote(query)))
			continue
		}

		for i, cat := range matches {
			fmt.Fprintf(p.writer, "  [%d] %s\n", i+1, cat.FullName())
		}
		fmt.Fprint(p.writer, FormatPrompt("Pick a number (empty to search again)"))

		answer, err := p.reader.ReadLine(ctx)
		if err != nil {
			return nil, err
		}
		if answer == "" {
			continue
		}

		idx, err := strconv.Atoi(answer)
		if err != nil || idx < 1 || idx > len(matches) {
			fmt.Fprintln(p.writer, FormatWarning("Invalid selection"))
			continue
		}
		return &matches[idx-1], nil
	}
}

// searchCategories ranks categories against the query, fuzzy and
// case-insensitive, best matches first.
func (p *Prompter) searchCategories(query string) []model.Category {
	names := make([]string, len(p.categories))
	for i, cat := range p.categories {
		names[i] = cat.FullName()
	}

	ranks := fuzzy.RankFindNormalizedFold(query, names)
	sort.Sort(ranks)

	matches := make([]model.Category, 0, min(len(ranks), maxSearchResults))
	for _, rank := range ranks {
		if len(matches) == maxSearchResults {
			break
		}
		matches = append(matches, p.categories[rank.OriginalIndex])
	}
	return matches
}
