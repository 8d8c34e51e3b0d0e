package domain

// Side represents the direction of a trading position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// String returns the string representation of Side.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is a valid value.
func (s Side) IsValid() bool {
	return s == SideLong || s == SideShort
}

// Position tracks an open trading position. Positions are mutable: trailing
// stops or partial exits may adjust levels while the position is open.
type Position struct {
	Symbol     string
	Side       Side
	EntryPrice float64
	Size       float64
	StopLoss   float64
	TakeProfit float64
	OpenedAt   int64 // fill time (ms)
}

// NewPosition constructs a validated Position. Stop loss and take profit must
// bracket the entry price for the stated side: long requires
// stopLoss < entry < takeProfit, short requires takeProfit < entry < stopLoss.
func NewPosition(symbol string, side Side, entryPrice, size, stopLoss, takeProfit float64, openedAt int64) (*Position, error) {
	if !validSymbol(symbol) {
		return nil, ErrInvalidSymbol
	}
	if !side.IsValid() {
		return nil, ErrInvalidSide
	}
	if entryPrice <= 0 || stopLoss <= 0 || takeProfit <= 0 {
		return nil, ErrInvalidPrice
	}
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	switch side {
	case SideLong:
		if stopLoss >= entryPrice || takeProfit <= entryPrice {
			return nil, ErrInvalidStops
		}
	case SideShort:
		if stopLoss <= entryPrice || takeProfit >= entryPrice {
			return nil, ErrInvalidStops
		}
	}

	return &Position{
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entryPrice,
		Size:       size,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		OpenedAt:   openedAt,
	}, nil
}

// RiskReward returns reward/risk for the position. Returns 0 if risk is zero.
func (p *Position) RiskReward() float64 {
	risk := p.EntryPrice - p.StopLoss
	if risk < 0 {
		risk = -risk
	}
	reward := p.TakeProfit - p.EntryPrice
	if reward < 0 {
		reward = -reward
	}
	if risk == 0 {
		return 0
	}
	return reward / risk
}

// validSymbol reports whether symbol is a non-empty uppercase token (A-Z only).
func validSymbol(symbol string) bool {
	if symbol == "" {
		return false
	}
	for _, r := range symbol {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
