package scenario

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/studiowebux/cartload/internal/cartpool"
	"github.com/studiowebux/cartload/internal/types"
)

// Request names used when reporting outcomes, grouped per endpoint
const (
	NameCreateCart = "POST /shopping-carts (create)"
	NameAddItems   = "POST /shopping-carts/{id}/items (add)"
	NameGetCart    = "GET /shopping-carts/{id} (retrieve)"
)

// Value ranges of the generated request bodies
const (
	MaxCustomerID = 10000
	MaxProductID  = 100
	MaxQuantity   = 5
)

// Generator issues the weighted shopping-cart traffic of one run.
// It is shared by all simulated users; per-user state lives in Session.
type Generator struct {
	api  CartAPI
	pool *cartpool.Pool
	dist *Distribution
}

// NewGenerator creates a generator. A nil distribution uses DefaultTasks.
func NewGenerator(api CartAPI, pool *cartpool.Pool, dist *Distribution) *Generator {
	if dist == nil {
		dist, _ = NewDistribution(DefaultTasks())
	}
	return &Generator{api: api, pool: pool, dist: dist}
}

// Pool returns the shared cart pool
func (g *Generator) Pool() *cartpool.Pool {
	return g.pool
}

// Start runs the per-user setup: every user creates a cart before its first iteration
func (g *Generator) Start(ctx context.Context, s *Session) []types.Outcome {
	return g.CreateCart(ctx, s)
}

// Step picks one weighted operation and executes it
func (g *Generator) Step(ctx context.Context, s *Session) (types.Operation, []types.Outcome) {
	op := g.dist.Pick(s.Rand())
	return op, g.Execute(ctx, s, op)
}

// Execute runs a specific operation
func (g *Generator) Execute(ctx context.Context, s *Session, op types.Operation) []types.Outcome {
	switch op {
	case types.OpCreateCart:
		return g.CreateCart(ctx, s)
	case types.OpAddItems:
		return g.AddItemsToCart(ctx, s)
	case types.OpGetCart:
		return g.GetCart(ctx, s)
	}
	return nil
}

// CreateCart creates a cart for a random customer. On success the id becomes
// the user's cart and is appended to the shared pool.
func (g *Generator) CreateCart(ctx context.Context, s *Session) []types.Outcome {
	customerID := s.intBetween(1, MaxCustomerID)
	resp := g.api.CreateCart(ctx, customerID)
	outcome := newOutcome(types.OpCreateCart, NameCreateCart, http.MethodPost, PathCarts, s, resp)

	switch {
	case outcome.IsNetworkError():
		outcome.Failure = networkFailure(resp.Err)
	case resp.StatusCode != http.StatusCreated:
		outcome.Failure = failedWithStatus(resp.StatusCode)
	default:
		cartID, err := extractCartID(resp.Body)
		switch {
		case err != nil:
			outcome.Failure = FailureInvalidJSON
		case cartID == "":
			outcome.Failure = FailureNoCartID
		default:
			s.CartID = cartID
			g.pool.Add(cartID)
			outcome.Success = true
		}
	}

	return []types.Outcome{outcome}
}

// AddItemsToCart adds a random product to a known cart. Without any known
// cart it creates one instead.
func (g *Generator) AddItemsToCart(ctx context.Context, s *Session) []types.Outcome {
	cartID, ok := g.pickCart(s)
	if !ok {
		return g.CreateCart(ctx, s)
	}

	productID := s.intBetween(1, MaxProductID)
	quantity := s.intBetween(1, MaxQuantity)
	resp := g.api.AddItem(ctx, cartID, productID, quantity)
	outcome := newOutcome(types.OpAddItems, NameAddItems, http.MethodPost, cartPath(cartID)+"/items", s, resp)

	switch {
	case outcome.IsNetworkError():
		outcome.Failure = networkFailure(resp.Err)
	case resp.StatusCode == http.StatusNoContent:
		outcome.Success = true
	case resp.StatusCode == http.StatusNotFound:
		g.forget(s, cartID)
		outcome.Failure = FailureCartNotFound
	default:
		outcome.Failure = failedWithStatus(resp.StatusCode)
	}

	return []types.Outcome{outcome}
}

// GetCart retrieves a known cart and checks its shape. Without any known
// cart it creates one instead.
func (g *Generator) GetCart(ctx context.Context, s *Session) []types.Outcome {
	cartID, ok := g.pickCart(s)
	if !ok {
		return g.CreateCart(ctx, s)
	}

	resp := g.api.GetCart(ctx, cartID)
	outcome := newOutcome(types.OpGetCart, NameGetCart, http.MethodGet, cartPath(cartID), s, resp)

	switch {
	case outcome.IsNetworkError():
		outcome.Failure = networkFailure(resp.Err)
	case resp.StatusCode == http.StatusOK:
		valid, err := hasCartShape(resp.Body)
		switch {
		case err != nil:
			outcome.Failure = FailureInvalidJSON
		case !valid:
			outcome.Failure = FailureInvalidStructure
		default:
			outcome.Success = true
		}
	case resp.StatusCode == http.StatusNotFound:
		g.forget(s, cartID)
		outcome.Failure = FailureCartNotFound
	default:
		outcome.Failure = failedWithStatus(resp.StatusCode)
	}

	return []types.Outcome{outcome}
}

// pickCart prefers the user's own cart, then a random pooled one
func (g *Generator) pickCart(s *Session) (string, bool) {
	if s.HasCart() {
		return s.CartID, true
	}
	return g.pool.Random(s.Rand())
}

// forget drops a cart the service no longer knows about
func (g *Generator) forget(s *Session, cartID string) {
	g.pool.Remove(cartID)
	s.ForgetCart(cartID)
}

func newOutcome(op types.Operation, name, method, path string, s *Session, resp *Response) types.Outcome {
	return types.Outcome{
		Operation:    op,
		Name:         name,
		Method:       method,
		Path:         path,
		UserID:       s.ID,
		StatusCode:   resp.StatusCode,
		Duration:     resp.Duration,
		RequestSize:  resp.RequestSize,
		ResponseSize: resp.ResponseSize,
		Err:          resp.Err,
		Timestamp:    time.Now(),
	}
}

func cartPath(cartID string) string {
	return strings.Replace(PathCart, "{id}", cartID, 1)
}

func networkFailure(err error) string {
	if err == nil {
		return "No response"
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "Request timed out"
	}
	return err.Error()
}
