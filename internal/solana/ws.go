package solana

import "context"

// WSClient defines the Solana WebSocket subscription interface. The watch
// command uses slot notifications to detect epoch boundaries and trigger
// extraction runs.
type WSClient interface {
	// SubscribeSlots subscribes to slot advancement notifications.
	SubscribeSlots(ctx context.Context) (<-chan SlotNotification, error)

	// Close closes the connection and all subscription channels.
	Close() error
}

// SlotNotification is one slot advancement event.
type SlotNotification struct {
	Slot   uint64 `json:"slot"`
	Parent uint64 `json:"parent"`
	Root   uint64 `json:"root"`
}
