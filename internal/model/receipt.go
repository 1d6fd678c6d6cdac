package model

import "time"

// ReceiptType classifies what kind of purchase an email receipt covers.
type ReceiptType string

// Receipt type constants.
const (
	ReceiptTypeApp          ReceiptType = "app"
	ReceiptTypeSubscription ReceiptType = "subscription"
	ReceiptTypeICloud       ReceiptType = "icloud"
	ReceiptTypeMusic        ReceiptType = "music"
	ReceiptTypeOther        ReceiptType = "other"
)

// Receipt represents a purchase receipt parsed from an email. The Gmail
// message id is the stable identity used for deduplication.
type Receipt struct {
	Date                 time.Time
	MessageID            string
	ItemName             string
	RawSubject           string
	MatchedTransactionID string
	ItemType             ReceiptType
	AmountCents          int64
}
