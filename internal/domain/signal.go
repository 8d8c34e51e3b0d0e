package domain

// Signal is a trade entry decision produced by confluence matching.
type Signal struct {
	Side       Side
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	RiskReward float64
	Confidence float64 // 0-100
	Zone       OrderZone
	Gap        PriceGap
	Reason     string
	CreatedAt  int64 // signal time (ms)
}

// Order is a simulated order record built from an accepted signal.
type Order struct {
	ID         string
	Symbol     string
	Side       Side
	Type       string // always "MARKET" in the simulated fill model
	EntryPrice float64
	Size       float64
	StopLoss   float64
	TakeProfit float64
	Status     OrderStatus
	Confidence float64
	Reason     string
	Commission float64 // charged on fill, zero until filled
	PlacedAt   int64   // ms
	FilledAt   int64   // ms, zero until filled
}

// OrderStatus tracks the order lifecycle state.
type OrderStatus string

const (
	OrderStatusPlaced OrderStatus = "PLACED"
	OrderStatusFilled OrderStatus = "FILLED"
	OrderStatusClosed OrderStatus = "CLOSED"
)

// OrderTypeMarket is the only order type in the simulated fill model.
const OrderTypeMarket = "MARKET"

// Close reason codes for PositionClosed events.
const (
	CloseReasonAutoClose = "AUTO_CLOSE"
	CloseReasonShutdown  = "SHUTDOWN"
)
