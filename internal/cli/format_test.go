package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/calvinlock/tally/internal/suggest"
)

func TestFormatMilliunits(t *testing.T) {
	tests := []struct {
		want   string
		amount int64
	}{
		{want: "-$42.99", amount: -42990},
		{want: "$42.99", amount: 42990},
		{want: "$0.00", amount: 0},
		{want: "-$0.01", amount: -10},
		{want: "$1234.56", amount: 1234560},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMilliunits(tt.amount))
	}
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "$42.99", FormatCents(4299))
	assert.Equal(t, "-$2.99", FormatCents(-299))
	assert.Equal(t, "$0.05", FormatCents(5))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "Dec 10, 2024", FormatDate(time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "unknown date", FormatDate(time.Time{}))
}

func TestConfidenceIcon(t *testing.T) {
	assert.Equal(t, "🟢", ConfidenceIcon(suggest.ConfidenceHigh))
	assert.Equal(t, "🟡", ConfidenceIcon(suggest.ConfidenceMedium))
	assert.Equal(t, "🔴", ConfidenceIcon(suggest.ConfidenceLow))
}
