package amazon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderHistoryHTML = `<html><body>
<div class="order-card">
  <div class="order-header">
    <span>Order placed December 10, 2024</span>
    <span>Total $42.99</span>
    <span>114-8783566-8829822</span>
  </div>
  <div>Order # 114-8783566-8829822</div>
  <div class="order-items">
    <a href="/dp/B0ABCDEF12">USB-C Charging Cable, 6ft Braided</a>
    <a href="/dp/B0ABCDEF12">Buy it again today</a>
  </div>
</div>
<div class="order-card">
  <div class="order-header">
    <span>Order placed Dec 3, 2024</span>
    <span>Total $1,234.56</span>
    <span>113-1111111-2222222</span>
  </div>
</div>
<div class="order-card">
  <div class="order-header">
    <span>No placed date here</span>
    <span>112-3333333-4444444</span>
  </div>
</div>
</body></html>`

func TestParseOrders(t *testing.T) {
	orders, err := ParseOrders(orderHistoryHTML)
	require.NoError(t, err)

	// The card without an order header is dropped.
	require.Len(t, orders, 2)

	first := orders[0]
	assert.Equal(t, "114-8783566-8829822", first.OrderID)
	assert.Equal(t, time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, int64(4299), first.TotalCents)

	require.Len(t, first.Items, 1)
	assert.Equal(t, "USB-C Charging Cable, 6ft Braided", first.Items[0].Name)
	assert.Equal(t, 1, first.Items[0].Quantity)

	second := orders[1]
	assert.Equal(t, "113-1111111-2222222", second.OrderID)
	assert.Equal(t, int64(123456), second.TotalCents)
	assert.Empty(t, second.Items)
}

func TestParseOrdersDeduplicatesIDs(t *testing.T) {
	page := `<html><body><div class="order">
	  <span>Order placed December 10, 2024</span><span>Total $10.00</span>
	  <span>114-8783566-8829822</span>
	  <span>114-8783566-8829822</span>
	</div></body></html>`

	orders, err := ParseOrders(page)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestParseOrderDate(t *testing.T) {
	assert.Equal(t, time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC), parseOrderDate("December 10, 2024"))
	assert.Equal(t, time.Date(2024, 12, 3, 0, 0, 0, 0, time.UTC), parseOrderDate("Dec  3,  2024"))
	assert.True(t, parseOrderDate("sometime last week").IsZero())
}

func TestParsePriceCents(t *testing.T) {
	assert.Equal(t, int64(1599), parsePriceCents("$15.99"))
	assert.Equal(t, int64(1599), parsePriceCents("15.99"))
	assert.Equal(t, int64(123456), parsePriceCents("$1,234.56"))
	assert.Equal(t, int64(0), parsePriceCents("free"))
}
