package domain

import "time"

// Pub/sub channels and streams used across the engine. The WebSocket hub
// relays the ch:* channels to connected clients; the readings stream is the
// hand-off point where the wearable collaborator drops daily measurements.
const (
	ChannelStakes  = "ch:stakes"
	ChannelMarkets = "ch:markets"
	StreamReadings = "stream:readings"
)

// Reading is one daily wearable measurement delivered by the oracle data
// collaborator.
type Reading struct {
	StakeID  string   `json:"stake_id"`
	SourceID SourceID `json:"source_id"`
	DayIndex int      `json:"day_index"`
	RawValue int64    `json:"raw_value"`
	Date     string   `json:"date"` // YYYY-MM-DD, informational
}

// StakeEvent is published on ChannelStakes after a stake changes state.
type StakeEvent struct {
	Type        string      `json:"type"` // "stake_created", "day_recorded", "stake_settled"
	StakeID     string      `json:"stake_id"`
	AccountID   string      `json:"account_id"`
	Status      StakeStatus `json:"status"`
	CurrentDay  int         `json:"current_day"`
	Confidence  int         `json:"confidence"`
	PayoutCents int64       `json:"payout_cents,omitempty"`
	At          time.Time   `json:"at"`
}

// MarketEvent is published on ChannelMarkets after a market changes state.
type MarketEvent struct {
	Type         string       `json:"type"` // "market_created", "wager_placed", "market_resolved"
	MarketID     string       `json:"market_id"`
	Status       MarketStatus `json:"status"`
	YesPoolCents int64        `json:"yes_pool_cents"`
	NoPoolCents  int64        `json:"no_pool_cents"`
	At           time.Time    `json:"at"`
}
