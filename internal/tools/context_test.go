package tools

import (
	"context"
	"testing"
	"time"
)

func TestRequestFromContext(t *testing.T) {
	override := testRef.Add(time.Minute)

	t.Run("round trip", func(t *testing.T) {
		ctx := WithRequest(context.Background(), Request{
			UserID:    "u1",
			Reference: testRef,
			Location:  testLoc,
			Override:  &override,
		})
		req, ok := RequestFromContext(ctx)
		if !ok {
			t.Fatal("ok = false, want true")
		}
		if req.UserID != "u1" {
			t.Errorf("UserID = %q, want u1", req.UserID)
		}
		if !req.Reference.Equal(testRef) {
			t.Errorf("Reference = %v, want %v", req.Reference, testRef)
		}
		if req.Override == nil || !req.Override.Equal(override) {
			t.Errorf("Override = %v, want %v", req.Override, override)
		}
	})

	t.Run("defaults when unset", func(t *testing.T) {
		before := time.Now()
		req, ok := RequestFromContext(context.Background())
		if ok {
			t.Error("ok = true without a request, want false")
		}
		if req.Location != time.UTC {
			t.Errorf("Location = %v, want UTC", req.Location)
		}
		if req.Reference.Before(before) {
			t.Errorf("Reference = %v, want now", req.Reference)
		}
	})

	t.Run("reference shown in location", func(t *testing.T) {
		ctx := WithRequest(context.Background(), Request{
			UserID:    "u1",
			Reference: testRef.UTC(),
			Location:  testLoc,
		})
		req, _ := RequestFromContext(ctx)
		if req.Reference.Hour() != 22 {
			t.Errorf("Reference hour = %d, want 22 in -03:00", req.Reference.Hour())
		}
	})

	t.Run("empty user is not ok", func(t *testing.T) {
		ctx := WithRequest(context.Background(), Request{Reference: testRef})
		if _, ok := RequestFromContext(ctx); ok {
			t.Error("ok = true for empty UserID, want false")
		}
	})
}
