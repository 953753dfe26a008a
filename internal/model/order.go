package model

import "main/internal/model/enum"

// OrderRequest is a single-leg broker order. Quantity is
// lotSize × numLots, identical across all legs of one position.
type OrderRequest struct {
	Leg      enum.Leg
	ScripID  string
	Side     enum.OrderSide
	Quantity int
	Style    enum.OrderStyle
}

// OrderResponse is the broker's reply to one placement attempt.
type OrderResponse struct {
	OK      bool
	OrderID string
	Reason  string
}

// LegResult records the outcome of one leg after all retries.
type LegResult struct {
	OrderID  string
	Attempts int
	Err      error
}
