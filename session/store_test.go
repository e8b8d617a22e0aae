package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, "otp"), mr
}

func testSession(t *testing.T, accountID string, now time.Time) (*Session, string) {
	t.Helper()
	token, sid, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	return &Session{
		SessionID: sid,
		AccountID: accountID,
		Role:      "user",
		IssuedAt:  now,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
	}, token
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.UnixMilli(time.Now().UnixMilli()).UTC()
	in := &Session{AccountID: "acct-1", Role: "admin", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.AccountID != in.AccountID || out.Role != in.Role || !out.IssuedAt.Equal(in.IssuedAt) || !out.ExpiresAt.Equal(in.ExpiresAt) {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}

	if _, err := Decode(append(data, 0)); err == nil {
		t.Fatal("expected trailing bytes to be rejected")
	}
	if _, err := Decode([]byte{9}); err == nil {
		t.Fatal("expected unknown version to be rejected")
	}
}

func TestTokenDerivesStableID(t *testing.T) {
	token, sid, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if len(token) != 43 {
		t.Fatalf("expected 43-char base64url token, got %d", len(token))
	}
	got, err := IDFromToken(token)
	if err != nil {
		t.Fatalf("IDFromToken: %v", err)
	}
	if got != sid {
		t.Fatal("session id must be derived from token")
	}
	if got == token {
		t.Fatal("session id must not equal the token")
	}

	if _, err := IDFromToken("not-a-token"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

func TestSaveGetDelete(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()
	now := time.Now()
	sess, _ := testSession(t, "acct-1", now)

	if err := store.Save(ctx, sess, 7*24*time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(ctx, sess.SessionID, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AccountID != "acct-1" || got.Role != "user" || got.SessionID != sess.SessionID {
		t.Fatalf("unexpected session %+v", got)
	}

	deleted, err := store.Delete(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted == nil || deleted.AccountID != "acct-1" {
		t.Fatalf("expected deleted session to be returned, got %+v", deleted)
	}
	if again, err := store.Delete(ctx, sess.SessionID); err != nil || again != nil {
		t.Fatalf("second delete must be a no-op, got %+v %v", again, err)
	}

	if _, err := store.Get(ctx, sess.SessionID, now); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if mr.Exists(store.accountKey("acct-1")) {
		t.Fatal("account index must be cleaned")
	}
}

func TestGetRejectsExpiredLazily(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()
	now := time.Now()
	sess, _ := testSession(t, "acct-1", now)

	if err := store.Save(ctx, sess, 7*24*time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, err := store.Get(ctx, sess.SessionID, sess.ExpiresAt)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expiry at ExpiresAt, got %v", err)
	}
	if mr.Exists("otp:s:" + sess.SessionID) {
		t.Fatal("expired session record should be removed")
	}
}

func TestDeleteAllForAccount(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()
	now := time.Now()

	var ids []string
	for i := 0; i < 3; i++ {
		sess, _ := testSession(t, "acct-1", now)
		if err := store.Save(ctx, sess, time.Hour); err != nil {
			t.Fatalf("Save: %v", err)
		}
		ids = append(ids, sess.SessionID)
	}
	other, _ := testSession(t, "acct-2", now)
	if err := store.Save(ctx, other, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	n, err := store.DeleteAllForAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("DeleteAllForAccount: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}
	for _, id := range ids {
		if _, err := store.Get(ctx, id, now); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("session %s should be gone, got %v", id, err)
		}
	}
	if _, err := store.Get(ctx, other.SessionID, now); err != nil {
		t.Fatalf("other account's session must survive: %v", err)
	}

	if n, err := store.DeleteAllForAccount(ctx, "acct-1"); err != nil || n != 0 {
		t.Fatalf("repeat delete-all must be a no-op, got %d %v", n, err)
	}
}

func TestInvalidationWatermark(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if _, ok, err := store.InvalidBefore(ctx, "acct-1"); err != nil || ok {
		t.Fatalf("expected no watermark, got ok=%v err=%v", ok, err)
	}

	at := time.UnixMilli(time.Now().UnixMilli()).UTC()
	if err := store.InvalidateBefore(ctx, "acct-1", at, time.Hour); err != nil {
		t.Fatalf("InvalidateBefore: %v", err)
	}

	got, ok, err := store.InvalidBefore(ctx, "acct-1")
	if err != nil || !ok {
		t.Fatalf("expected watermark, got ok=%v err=%v", ok, err)
	}
	if !got.Equal(at) {
		t.Fatalf("watermark mismatch: %s vs %s", got, at)
	}
}
