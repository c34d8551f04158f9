package scenario

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/studiowebux/cartload/internal/cartpool"
	"github.com/studiowebux/cartload/internal/types"
)

// scriptedService answers every endpoint with a fixed status and body
type scriptedService struct {
	mu           sync.Mutex
	createStatus int
	createBody   string
	addStatus    int
	getStatus    int
	getBody      string

	creates  int
	adds     int
	gets     int
	paths    []string
	lastBody map[string]int
}

func (s *scriptedService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paths = append(s.paths, r.Method+" "+r.URL.Path)
	body, _ := io.ReadAll(r.Body)
	s.lastBody = nil
	if len(body) > 0 {
		json.Unmarshal(body, &s.lastBody)
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/shopping-carts":
		s.creates++
		w.WriteHeader(s.createStatus)
		w.Write([]byte(s.createBody))
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/items"):
		s.adds++
		w.WriteHeader(s.addStatus)
	case r.Method == http.MethodGet:
		s.gets++
		w.WriteHeader(s.getStatus)
		w.Write([]byte(s.getBody))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestGenerator(t *testing.T, svc *scriptedService) (*Generator, *cartpool.Pool) {
	t.Helper()
	server := httptest.NewServer(svc)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientOptions{BaseURL: server.URL, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	pool := cartpool.New(cartpool.DefaultCapacity)
	return NewGenerator(client, pool, nil), pool
}

func singleOutcome(t *testing.T, outcomes []types.Outcome) types.Outcome {
	t.Helper()
	if len(outcomes) != 1 {
		t.Fatalf("Expected 1 outcome, got %d", len(outcomes))
	}
	return outcomes[0]
}

func TestCreateCart_Success(t *testing.T) {
	svc := &scriptedService{createStatus: http.StatusCreated, createBody: `{"shopping_cart_id": "abc"}`}
	gen, pool := newTestGenerator(t, svc)
	session := NewSession(1)

	outcome := singleOutcome(t, gen.CreateCart(context.Background(), session))

	if !outcome.Success {
		t.Fatalf("Expected success, got failure %q", outcome.Failure)
	}
	if outcome.Operation != types.OpCreateCart || outcome.Name != NameCreateCart {
		t.Errorf("Unexpected operation/name: %s / %s", outcome.Operation, outcome.Name)
	}
	if session.CartID != "abc" {
		t.Errorf("Expected session cart abc, got %q", session.CartID)
	}
	if tail, _ := pool.Tail(); tail != "abc" {
		t.Errorf("Expected pool tail abc, got %q", tail)
	}

	customerID := svc.lastBody["customer_id"]
	if customerID < 1 || customerID > MaxCustomerID {
		t.Errorf("customer_id %d out of range", customerID)
	}
}

func TestCreateCart_NumericID(t *testing.T) {
	svc := &scriptedService{createStatus: http.StatusCreated, createBody: `{"shopping_cart_id": 9007199254740993}`}
	gen, pool := newTestGenerator(t, svc)
	session := NewSession(1)

	outcome := singleOutcome(t, gen.CreateCart(context.Background(), session))
	if !outcome.Success {
		t.Fatalf("Expected success, got %q", outcome.Failure)
	}
	if session.CartID != "9007199254740993" {
		t.Errorf("Expected exact numeric id, got %q", session.CartID)
	}
	if pool.Len() != 1 {
		t.Errorf("Expected 1 pooled id, got %d", pool.Len())
	}
}

func TestCreateCart_Failures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantFailure string
	}{
		{name: "missing id", status: 201, body: `{}`, wantFailure: FailureNoCartID},
		{name: "null id", status: 201, body: `{"shopping_cart_id": null}`, wantFailure: FailureNoCartID},
		{name: "empty id", status: 201, body: `{"shopping_cart_id": ""}`, wantFailure: FailureNoCartID},
		{name: "zero id", status: 201, body: `{"shopping_cart_id": 0}`, wantFailure: FailureNoCartID},
		{name: "invalid json", status: 201, body: `not json`, wantFailure: FailureInvalidJSON},
		{name: "empty body", status: 201, body: ``, wantFailure: FailureInvalidJSON},
		{name: "wrong status", status: 500, body: `{"shopping_cart_id": "abc"}`, wantFailure: "Failed with status 500"},
		{name: "ok instead of created", status: 200, body: `{"shopping_cart_id": "abc"}`, wantFailure: "Failed with status 200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &scriptedService{createStatus: tt.status, createBody: tt.body}
			gen, pool := newTestGenerator(t, svc)
			session := NewSession(1)

			outcome := singleOutcome(t, gen.CreateCart(context.Background(), session))

			if outcome.Success {
				t.Fatal("Expected failure")
			}
			if outcome.Failure != tt.wantFailure {
				t.Errorf("Failure = %q, want %q", outcome.Failure, tt.wantFailure)
			}
			if pool.Len() != 0 {
				t.Errorf("Expected pool unchanged, got %v", pool.Snapshot())
			}
			if session.HasCart() {
				t.Errorf("Expected no session cart, got %q", session.CartID)
			}
		})
	}
}

func TestAddItems_Success(t *testing.T) {
	svc := &scriptedService{addStatus: http.StatusNoContent}
	gen, pool := newTestGenerator(t, svc)
	pool.Add("abc")
	session := NewSession(1)
	session.CartID = "abc"

	outcome := singleOutcome(t, gen.AddItemsToCart(context.Background(), session))

	if !outcome.Success {
		t.Fatalf("Expected success, got %q", outcome.Failure)
	}
	if outcome.Path != "/shopping-carts/abc/items" {
		t.Errorf("Unexpected path %q", outcome.Path)
	}
	if got := pool.Snapshot(); len(got) != 1 || got[0] != "abc" {
		t.Errorf("Expected pool untouched, got %v", got)
	}

	if p := svc.lastBody["product_id"]; p < 1 || p > MaxProductID {
		t.Errorf("product_id %d out of range", p)
	}
	if q := svc.lastBody["quantity"]; q < 1 || q > MaxQuantity {
		t.Errorf("quantity %d out of range", q)
	}
}

func TestAddItems_NotFoundCleansUp(t *testing.T) {
	svc := &scriptedService{addStatus: http.StatusNotFound}
	gen, pool := newTestGenerator(t, svc)
	pool.Add("abc")
	pool.Add("def")
	session := NewSession(1)
	session.CartID = "abc"

	outcome := singleOutcome(t, gen.AddItemsToCart(context.Background(), session))

	if outcome.Success || outcome.Failure != FailureCartNotFound {
		t.Fatalf("Expected %q, got success=%v failure=%q", FailureCartNotFound, outcome.Success, outcome.Failure)
	}
	if pool.Contains("abc") {
		t.Error("Expected abc removed from pool")
	}
	if !pool.Contains("def") {
		t.Error("Expected def to stay in pool")
	}
	if session.HasCart() {
		t.Error("Expected session cart cleared")
	}
}

func TestAddItems_NotFoundKeepsOtherOwnCart(t *testing.T) {
	svc := &scriptedService{addStatus: http.StatusNotFound}
	gen, pool := newTestGenerator(t, svc)
	pool.Add("abc")
	session := NewSession(1)

	// No own cart: target comes from the pool
	singleOutcome(t, gen.AddItemsToCart(context.Background(), session))

	if pool.Len() != 0 {
		t.Errorf("Expected pool empty, got %v", pool.Snapshot())
	}

	other := NewSession(2)
	other.CartID = "mine"
	gen.forget(other, "abc")
	if other.CartID != "mine" {
		t.Errorf("Expected unrelated own cart kept, got %q", other.CartID)
	}
}

func TestAddItems_OtherStatusNoMutation(t *testing.T) {
	svc := &scriptedService{addStatus: http.StatusInternalServerError}
	gen, pool := newTestGenerator(t, svc)
	pool.Add("abc")
	session := NewSession(1)
	session.CartID = "abc"

	outcome := singleOutcome(t, gen.AddItemsToCart(context.Background(), session))

	if outcome.Failure != "Failed with status 500" {
		t.Errorf("Unexpected failure %q", outcome.Failure)
	}
	if !pool.Contains("abc") || session.CartID != "abc" {
		t.Error("Expected no state mutation on 500")
	}
}

func TestGetCart_Classification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantSuccess bool
		wantFailure string
		wantRemoved bool
	}{
		{name: "valid", status: 200, body: `{"cart":{}, "items":[]}`, wantSuccess: true},
		{name: "null values still present", status: 200, body: `{"cart":null, "items":null}`, wantSuccess: true},
		{name: "missing items", status: 200, body: `{"cart":{}}`, wantFailure: FailureInvalidStructure},
		{name: "array body", status: 200, body: `["cart", "items"]`, wantFailure: FailureInvalidStructure},
		{name: "invalid json", status: 200, body: `{"cart":`, wantFailure: FailureInvalidJSON},
		{name: "not found", status: 404, body: `{"error":"NOT_FOUND"}`, wantFailure: FailureCartNotFound, wantRemoved: true},
		{name: "server error", status: 503, body: ``, wantFailure: "Failed with status 503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &scriptedService{getStatus: tt.status, getBody: tt.body}
			gen, pool := newTestGenerator(t, svc)
			pool.Add("abc")
			session := NewSession(1)
			session.CartID = "abc"

			outcome := singleOutcome(t, gen.GetCart(context.Background(), session))

			if outcome.Success != tt.wantSuccess {
				t.Fatalf("Success = %v, want %v (failure %q)", outcome.Success, tt.wantSuccess, outcome.Failure)
			}
			if outcome.Failure != tt.wantFailure {
				t.Errorf("Failure = %q, want %q", outcome.Failure, tt.wantFailure)
			}
			if removed := !pool.Contains("abc"); removed != tt.wantRemoved {
				t.Errorf("removed from pool = %v, want %v", removed, tt.wantRemoved)
			}
			if cleared := !session.HasCart(); cleared != tt.wantRemoved {
				t.Errorf("session cleared = %v, want %v", cleared, tt.wantRemoved)
			}
		})
	}
}

func TestNoKnownCart_FallsBackToCreate(t *testing.T) {
	ops := map[string]func(*Generator, context.Context, *Session) []types.Outcome{
		"add": (*Generator).AddItemsToCart,
		"get": (*Generator).GetCart,
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			svc := &scriptedService{
				createStatus: http.StatusCreated,
				createBody:   `{"shopping_cart_id": "new"}`,
				addStatus:    http.StatusNoContent,
				getStatus:    http.StatusOK,
				getBody:      `{"cart":{}, "items":[]}`,
			}
			gen, pool := newTestGenerator(t, svc)
			session := NewSession(1)

			outcome := singleOutcome(t, op(gen, context.Background(), session))

			if outcome.Operation != types.OpCreateCart {
				t.Errorf("Expected a create outcome, got %s", outcome.Operation)
			}
			if svc.creates != 1 || svc.adds != 0 || svc.gets != 0 {
				t.Errorf("Expected only a create request, got creates=%d adds=%d gets=%d", svc.creates, svc.adds, svc.gets)
			}
			if session.CartID != "new" || pool.Len() != 1 {
				t.Errorf("Expected new cart tracked, session=%q pool=%v", session.CartID, pool.Snapshot())
			}
		})
	}
}

func TestPickCart_PrefersOwnCart(t *testing.T) {
	gen := NewGenerator(nil, cartpool.New(10), nil)
	gen.Pool().Add("pooled")

	session := NewSession(1)
	session.CartID = "own"
	for i := 0; i < 20; i++ {
		if id, _ := gen.pickCart(session); id != "own" {
			t.Fatalf("Expected own cart, got %q", id)
		}
	}

	session.CartID = ""
	if id, ok := gen.pickCart(session); !ok || id != "pooled" {
		t.Errorf("Expected pooled cart, got %q, %v", id, ok)
	}
}

func TestNetworkError_IsReported(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewClient(ClientOptions{BaseURL: url, Timeout: time.Second})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	gen := NewGenerator(client, cartpool.New(10), nil)
	session := NewSession(1)
	session.CartID = "abc"
	gen.Pool().Add("abc")

	outcome := singleOutcome(t, gen.GetCart(context.Background(), session))

	if outcome.Success {
		t.Fatal("Expected failure")
	}
	if !outcome.IsNetworkError() {
		t.Error("Expected network error classification")
	}
	if outcome.Failure == "" {
		t.Error("Expected failure message")
	}
	if !gen.Pool().Contains("abc") || session.CartID != "abc" {
		t.Error("Expected no mutation on network error")
	}
}

func TestStep_FollowsWeights(t *testing.T) {
	svc := &scriptedService{
		createStatus: http.StatusCreated,
		createBody:   `{"shopping_cart_id": "c1"}`,
		addStatus:    http.StatusNoContent,
		getStatus:    http.StatusOK,
		getBody:      `{"cart":{}, "items":[]}`,
	}
	gen, _ := newTestGenerator(t, svc)
	session := NewSession(42)
	gen.Start(context.Background(), session)

	counts := map[types.Operation]int{}
	for i := 0; i < 300; i++ {
		op, outcomes := gen.Step(context.Background(), session)
		counts[op]++
		if len(outcomes) != 1 {
			t.Fatalf("Expected 1 outcome per step, got %d", len(outcomes))
		}
	}

	for _, op := range types.Operations {
		if counts[op] == 0 {
			t.Errorf("Operation %s never picked", op)
		}
	}
	if counts[types.OpAddItems] < counts[types.OpCreateCart]/2 {
		t.Errorf("Unexpected mix: %v", counts)
	}
}
