package api

// Request and response types for the REST endpoints and the WebSocket stream.

// PriceLevel is one aggregated book level.
type PriceLevel struct {
	Price  int64 `json:"price"`
	Orders int   `json:"orders"`
}

// OrderbookSnapshot is the current resting book state.
type OrderbookSnapshot struct {
	Bids      []PriceLevel `json:"bids"` // sorted high to low
	Asks      []PriceLevel `json:"asks"` // sorted low to high
	BuyDepth  int          `json:"buyDepth"`
	SellDepth int          `json:"sellDepth"`
	Timestamp int64        `json:"timestamp"` // unix milliseconds
}

// SubmitOrderRequest rests a new order in the book. Amount is a decimal
// string in base units so arbitrary-precision amounts survive JSON.
type SubmitOrderRequest struct {
	Side   string `json:"side"` // "buy" or "sell"
	Price  int64  `json:"price"`
	Amount string `json:"amount"`
}

// SubmitOrderResponse returns the venue order id assigned on ingestion.
type SubmitOrderResponse struct {
	ID string `json:"id"`
}

// CancelOrderRequest removes a resting order.
type CancelOrderRequest struct {
	ID string `json:"id"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
