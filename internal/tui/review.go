// Package tui implements the card-style review interface: one uncategorized
// transaction at a time, accept or reject its suggestion with single
// keystrokes, with a fuzzy category picker for rejections.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/calvinlock/tally/internal/cli"
	"github.com/calvinlock/tally/internal/model"
	"github.com/calvinlock/tally/internal/suggest"
)

// Item is one transaction queued for review.
type Item struct {
	Suggestion      *suggest.Suggestion
	PurchaseContext string
	Transaction     model.Transaction
}

type state int

const (
	stateCard state = iota
	statePicker
	stateDone
)

const pickerSize = 8

// Model is the bubbletea model for a review session.
type Model struct {
	filter     textinput.Model
	keymap     KeyMap
	items      []Item
	categories []model.Category
	decisions  []cli.Decision
	filtered   []model.Category
	index      int
	cursor     int
	state      state
	quitting   bool
}

// NewModel creates a review session over the queued items.
func NewModel(items []Item, categories []model.Category) Model {
	filter := textinput.New()
	filter.Placeholder = "type to filter categories"
	filter.CharLimit = 64

	return Model{
		items:      items,
		categories: categories,
		keymap:     DefaultKeyMap(),
		filter:     filter,
		filtered:   topCategories(categories, ""),
	}
}

// Decisions returns what the user decided, in order. Skipped transactions are
// absent.
func (m Model) Decisions() []cli.Decision {
	return m.decisions
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch m.state {
	case statePicker:
		return m.updatePicker(keyMsg)
	case stateDone:
		return m.quit()
	default:
		return m.updateCard(keyMsg)
	}
}

func (m Model) updateCard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	item := m.current()

	switch {
	case key.Matches(msg, m.keymap.Quit):
		return m.quit()

	case key.Matches(msg, m.keymap.Accept):
		if item == nil || item.Suggestion == nil {
			return m, nil
		}
		m.decisions = append(m.decisions, cli.Decision{
			Transaction:  item.Transaction,
			CategoryID:   item.Suggestion.CategoryID,
			CategoryName: item.Suggestion.CategoryName,
			Accepted:     true,
		})
		return m.advance()

	case key.Matches(msg, m.keymap.Reject):
		if item == nil {
			return m, nil
		}
		m.state = statePicker
		m.cursor = 0
		m.filter.SetValue("")
		m.filter.Focus()
		m.filtered = topCategories(m.categories, "")
		return m, textinput.Blink

	case key.Matches(msg, m.keymap.Skip):
		return m.advance()
	}
	return m, nil
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Cancel):
		m.state = stateCard
		m.filter.Blur()
		return m, nil

	case key.Matches(msg, m.keymap.Select):
		if len(m.filtered) == 0 {
			return m, nil
		}
		chosen := m.filtered[m.cursor]
		item := m.current()
		accepted := item.Suggestion == nil || item.Suggestion.CategoryID == chosen.ID
		m.decisions = append(m.decisions, cli.Decision{
			Transaction:  item.Transaction,
			CategoryID:   chosen.ID,
			CategoryName: chosen.Name,
			Accepted:     accepted,
		})
		m.state = stateCard
		m.filter.Blur()
		return m.advance()

	case msg.String() == "up":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case msg.String() == "down":
		if m.cursor < len(m.filtered)-1 {
			m.cursor++
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.filtered = topCategories(m.categories, m.filter.Value())
	if m.cursor >= len(m.filtered) {
		m.cursor = 0
	}
	return m, cmd
}

func (m Model) advance() (tea.Model, tea.Cmd) {
	m.index++
	if m.index >= len(m.items) {
		m.state = stateDone
		return m.quit()
	}
	m.state = stateCard
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	return m, tea.Quit
}

func (m Model) current() *Item {
	if m.index < 0 || m.index >= len(m.items) {
		return nil
	}
	return &m.items[m.index]
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	item := m.current()
	if item == nil {
		return cli.FormatSuccess("Nothing left to review") + "\n"
	}

	var b strings.Builder
	b.WriteString(cli.FormatTitle(fmt.Sprintf("Review %d of %d", m.index+1, len(m.items))))
	b.WriteString("\n")
	b.WriteString(cli.RenderBox("Transaction", m.cardContent(item)))
	b.WriteString("\n")

	if m.state == statePicker {
		b.WriteString(m.pickerView())
	} else {
		b.WriteString(m.cardHelp(item))
	}
	return b.String()
}

func (m Model) cardContent(item *Item) string {
	txn := item.Transaction
	lines := []string{
		fmt.Sprintf("%s  %s", cli.BoldStyle.Render(txn.PayeeName), cli.FormatMilliunits(txn.Amount)),
		cli.SubtleStyle.Render(cli.FormatDate(txn.Date)),
	}
	if txn.Memo != "" {
		lines = append(lines, cli.SubtleStyle.Render(txn.Memo))
	}
	if item.PurchaseContext != "" {
		lines = append(lines, cli.InfoStyle.Render(cli.LinkIcon+" "+item.PurchaseContext))
	}
	if item.Suggestion != nil {
		lines = append(lines, fmt.Sprintf("%s %s %s",
			cli.ConfidenceIcon(item.Suggestion.Confidence),
			cli.SuccessStyle.Render(item.Suggestion.CategoryName),
			cli.SubtleStyle.Render(fmt.Sprintf("(seen %d times)", item.Suggestion.MatchCount))))
	}
	return strings.Join(lines, "\n")
}

func (m Model) cardHelp(item *Item) string {
	keys := []string{}
	if item.Suggestion != nil {
		keys = append(keys, "a accept")
	}
	keys = append(keys, "r pick category", "s skip", "q quit")
	return cli.SubtleStyle.Render(strings.Join(keys, "  ·  "))
}

func (m Model) pickerView() string {
	var b strings.Builder
	b.WriteString(m.filter.View())
	b.WriteString("\n")

	if len(m.filtered) == 0 {
		b.WriteString(cli.SubtleStyle.Render("no matching categories"))
		b.WriteString("\n")
	}
	for i, cat := range m.filtered {
		cursor := "  "
		line := cat.FullName()
		if i == m.cursor {
			cursor = "> "
			line = cli.BoldStyle.Render(line)
		}
		b.WriteString(cursor + line + "\n")
	}
	b.WriteString(cli.SubtleStyle.Render("enter select  ·  esc back"))
	return b.String()
}

// topCategories ranks categories against the filter text; an empty filter
// shows the first page unranked.
func topCategories(categories []model.Category, query string) []model.Category {
	if strings.TrimSpace(query) == "" {
		if len(categories) > pickerSize {
			return categories[:pickerSize]
		}
		return categories
	}

	names := make([]string, len(categories))
	for i, cat := range categories {
		names[i] = cat.FullName()
	}
	ranks := fuzzy.RankFindNormalizedFold(query, names)
	sort.Sort(ranks)

	out := make([]model.Category, 0, pickerSize)
	for _, rank := range ranks {
		if len(out) == pickerSize {
			break
		}
		out = append(out, categories[rank.OriginalIndex])
	}
	return out
}

// Run drives a review session on the terminal and returns the decisions.
func Run(ctx context.Context, items []Item, categories []model.Category) ([]cli.Decision, error) {
	program := tea.NewProgram(NewModel(items, categories), tea.WithContext(ctx))

	final, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("review session failed: %w", err)
	}

	m, ok := final.(Model)
	if !ok {
		return nil, fmt.Errorf("unexpected model type %T", final)
	}
	return m.Decisions(), nil
}
