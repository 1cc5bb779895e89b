package domain

// Signal bus channels carrying ledger events as JSON.
const (
	ChannelTrades    = "trades"
	ChannelPositions = "positions"
	ChannelPlans     = "plans"
	ChannelTriggers  = "triggers"
	ChannelPrices    = "prices"

	// StreamTriggers keeps trigger events for replay.
	StreamTriggers = "stream:triggers"
)
