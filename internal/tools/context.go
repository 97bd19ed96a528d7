package tools

import (
	"context"
	"time"
)

type contextKey string

const requestKey contextKey = "request"

// Request carries the per-message values every handler needs.
type Request struct {
	UserID string

	// Reference is the instant the message arrived; all relative time
	// arithmetic starts here.
	Reference time.Time

	// Location is the fixed civil offset used to interpret and display
	// times.
	Location *time.Location

	// Override is the instant detected in the raw message text, if any.
	// It beats any time the model supplies for a reminder.
	Override *time.Time
}

// WithRequest adds request values to the context.
func WithRequest(ctx context.Context, req Request) context.Context {
	return context.WithValue(ctx, requestKey, req)
}

// RequestFromContext extracts request values from the context, filling
// in the current time and UTC when they were left unset.
func RequestFromContext(ctx context.Context) (Request, bool) {
	req, ok := ctx.Value(requestKey).(Request)
	if req.Location == nil {
		req.Location = time.UTC
	}
	if req.Reference.IsZero() {
		req.Reference = time.Now()
	}
	req.Reference = req.Reference.In(req.Location)
	return req, ok && req.UserID != ""
}
