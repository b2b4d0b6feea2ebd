package types

import (
	"context"
)

// View defines the interface for rendering store state
type View interface {
	// Run renders until ctx is cancelled or the view exits
	Run(ctx context.Context) error
}

// Toaster surfaces user-facing notifications
type Toaster interface {
	Info(text string)
	Success(text, hash string)
	Error(text string)
}
