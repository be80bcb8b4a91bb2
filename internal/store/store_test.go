package store

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	u := User{ID: "u1", Username: "alice", PasswordHash: "hash", Role: "user", Active: true, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.ID != "u1" || got.Role != "user" || !got.Active {
		t.Errorf("got %+v, want matching alice record", got)
	}

	if _, err := s.GetUserByUsername(ctx, "nobody"); err != ErrNotFound {
		t.Errorf("GetUserByUsername(missing) = %v, want ErrNotFound", err)
	}
}

func TestCreateAndLookupAPIKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.CreateUser(ctx, User{ID: "u1", Username: "alice", PasswordHash: "hash", Role: "user", CreatedAt: now, UpdatedAt: now})

	key := APIKey{ID: "k1", UserID: "u1", KeyHash: "abc123", KeyPrefix: "sk-abc", Name: "default", Active: true, CreatedAt: now}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	got, err := s.GetAPIKeyByHash(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetAPIKeyByHash: %v", err)
	}
	if got.UserID != "u1" || got.KeyPrefix != "sk-abc" {
		t.Errorf("got %+v, want matching key record", got)
	}

	if err := s.RevokeAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	got, err = s.GetAPIKeyByHash(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetAPIKeyByHash after revoke: %v", err)
	}
	if got.Active {
		t.Error("key should be inactive after RevokeAPIKey")
	}
}

func TestCredentialLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.CreateUser(ctx, User{ID: "u1", Username: "bob", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now})

	cred := GoogleCredential{
		ID: "c1", OwnerUserID: "u1", Family: FamilyCloudCode, Email: "bob@example.com",
		RefreshToken: "rt|proj|mproj", V3Capable: true, Status: StatusValidating,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.CreateCredential(ctx, cred); err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}

	creds, err := s.ListCredentialsByFamily(ctx, FamilyCloudCode)
	if err != nil {
		t.Fatalf("ListCredentialsByFamily: %v", err)
	}
	if len(creds) != 1 || creds[0].ID != "c1" || !creds[0].V3Capable {
		t.Fatalf("got %+v, want one v3-capable cloud_code credential", creds)
	}

	cooling := now.Add(10 * time.Minute)
	if err := s.UpdateCredentialStatus(ctx, "c1", StatusCooling, 1, &cooling); err != nil {
		t.Fatalf("UpdateCredentialStatus: %v", err)
	}

	got, err := s.GetCredential(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if got.Status != StatusCooling || got.StrikeCount != 1 || got.CoolingUntil == nil {
		t.Errorf("got %+v, want cooling status with strike recorded", got)
	}

	if _, err := s.GetCredential(ctx, "missing"); err != ErrNotFound {
		t.Errorf("GetCredential(missing) = %v, want ErrNotFound", err)
	}
}

func TestUsageSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.CreateUser(ctx, User{ID: "u1", Username: "carol", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now})

	old := UsageLogEntry{UserID: "u1", Model: "gpt-4o", Dialect: "openai", StatusCode: 200, InputTokens: 10, OutputTokens: 5, CreatedAt: now.AddDate(0, 0, -60)}
	recent := UsageLogEntry{UserID: "u1", Model: "gpt-4o", Dialect: "openai", StatusCode: 200, InputTokens: 20, OutputTokens: 8, CreatedAt: now}
	if err := s.InsertUsageLog(ctx, old); err != nil {
		t.Fatalf("InsertUsageLog(old): %v", err)
	}
	if err := s.InsertUsageLog(ctx, recent); err != nil {
		t.Fatalf("InsertUsageLog(recent): %v", err)
	}

	summary, err := s.UsageSince(ctx, "u1", now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("UsageSince: %v", err)
	}
	if summary.RequestCount != 1 || summary.InputTokens != 20 || summary.OutputTokens != 8 {
		t.Errorf("got %+v, want only the recent entry counted", summary)
	}
}
