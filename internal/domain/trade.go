package domain

// TradeRecord is the journal row written when a position closes. One record
// per round trip, keyed by the originating order id.
type TradeRecord struct {
	OrderID    string
	Symbol     string
	Side       Side
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	PnL        float64
	Commission float64
	Reason     string
	OpenedAt   int64 // ms
	ClosedAt   int64 // ms
}
