package auth

import (
	"context"
	"testing"
)

func TestWithIdentityAndFromContext(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{UserID: "u-1"})
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected Identity in context")
	}
	if got.UserID != "u-1" {
		t.Errorf("UserID = %q, want %q", got.UserID, "u-1")
	}
	if got.Job {
		t.Error("user identity should not be a job")
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing Identity")
	}
}

func TestUserID(t *testing.T) {
	ctx := WithUser(context.Background(), "u-7")
	if UserID(ctx) != "u-7" {
		t.Errorf("UserID = %q, want u-7", UserID(ctx))
	}
}

func TestUserIDMissing(t *testing.T) {
	if UserID(context.Background()) != "" {
		t.Error("expected empty user for missing context")
	}
}

func TestIsJob(t *testing.T) {
	if !IsJob(WithIdentity(context.Background(), Identity{Job: true})) {
		t.Error("expected IsJob = true for job identity")
	}
	if IsJob(WithUser(context.Background(), "u-1")) {
		t.Error("expected IsJob = false for user identity")
	}
	if IsJob(context.Background()) {
		t.Error("expected IsJob = false for missing context")
	}
}
