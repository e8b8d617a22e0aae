package otpgate

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpgate/identity"
	"github.com/MrEthical07/otpgate/identity/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "Abcd1234"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingDeliverer struct {
	mu         sync.Mutex
	deliveries []Delivery
	fail       error
}

func (d *recordingDeliverer) Deliver(_ context.Context, delivery Delivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.deliveries = append(d.deliveries, delivery)
	return nil
}

func (d *recordingDeliverer) setFail(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

func (d *recordingDeliverer) count(kind DeliveryKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, delivery := range d.deliveries {
		if delivery.Kind == kind {
			n++
		}
	}
	return n
}

func (d *recordingDeliverer) last(t *testing.T, kind DeliveryKind) Delivery {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.deliveries) - 1; i >= 0; i-- {
		if d.deliveries[i].Kind == kind {
			return d.deliveries[i]
		}
	}
	t.Fatalf("no %s delivery recorded", kind)
	return Delivery{}
}

// codeQueue hands out fixed codes in order.
type codeQueue struct {
	mu    sync.Mutex
	codes []string
}

func (q *codeQueue) next(_ int) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.codes) == 0 {
		return "", errors.New("code queue empty")
	}
	code := q.codes[0]
	q.codes = q.codes[1:]
	return code, nil
}

func (q *codeQueue) push(codes ...string) {
	q.mu.Lock()
	q.codes = append(q.codes, codes...)
	q.mu.Unlock()
}

type harness struct {
	engine    *Engine
	clock     *fakeClock
	mr        *miniredis.Miniredis
	rdb       *redis.Client
	store     *memory.Store
	deliverer *recordingDeliverer
	codes     *codeQueue
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Secrets.Pepper = bytes.Repeat([]byte("k"), 32)
	return cfg
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	h := &harness{
		clock:     newFakeClock(),
		mr:        mr,
		rdb:       rdb,
		store:     memory.New(),
		deliverer: &recordingDeliverer{},
		codes:     &codeQueue{},
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(h.store).
		WithDeliverer(h.deliverer).
		WithClock(h.clock.Now).
		WithCodeSource(h.codes.next).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	h.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return h
}

// provision creates a verified account the way an operator would.
func (h *harness) provision(t *testing.T, email, phone string, role identity.Role) identity.Account {
	t.Helper()
	account, err := h.engine.ProvisionAccount(context.Background(), ProvisionRequest{
		Email:    email,
		Password: testPassword,
		FullName: "Test Account",
		Phone:    phone,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("provision %s: %v", email, err)
	}
	return account
}

// signin runs Authenticate and ConfirmAuthentication with a fixed code.
func (h *harness) signin(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	ctx := context.Background()

	h.codes.push("135790")
	if _, err := h.engine.Authenticate(ctx, email, password); err != nil {
		t.Fatalf("authenticate %s: %v", email, err)
	}
	res, err := h.engine.ConfirmAuthentication(ctx, email, "135790")
	if err != nil {
		t.Fatalf("confirm authentication %s: %v", email, err)
	}
	return res
}
