package mock

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

type cart struct {
	id         string
	customerID int
	createdAt  time.Time
	updatedAt  time.Time
	items      map[int]int // product id -> quantity
}

// Store keeps carts in memory
type Store struct {
	mu        sync.Mutex
	carts     map[string]*cart
	nextID    int64
	stringIDs bool
}

// NewStore creates an empty store. With stringIDs, carts get uuid ids
// instead of sequential numbers starting at 1.
func NewStore(stringIDs bool) *Store {
	return &Store{
		carts:     make(map[string]*cart),
		stringIDs: stringIDs,
	}
}

// Create adds a cart and returns its id
func (s *Store) Create(customerID int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	if s.stringIDs {
		id = uuid.NewString()
	} else {
		s.nextID++
		id = strconv.FormatInt(s.nextID, 10)
	}

	now := time.Now().UTC()
	s.carts[id] = &cart{
		id:         id,
		customerID: customerID,
		createdAt:  now,
		updatedAt:  now,
		items:      make(map[int]int),
	}
	return id
}

// SetItem upserts an item; quantity 0 removes it.
// It reports false when the cart does not exist.
func (s *Store) SetItem(id string, productID, quantity int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[id]
	if !ok {
		return false
	}
	if quantity == 0 {
		delete(c.items, productID)
	} else {
		c.items[productID] = quantity
	}
	c.updatedAt = time.Now().UTC()
	return true
}

// Get returns a copy of a cart
func (s *Store) Get(id string) (cartDTO, []cartItemDTO, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[id]
	if !ok {
		return cartDTO{}, nil, false
	}

	items := make([]cartItemDTO, 0, len(c.items))
	for productID, quantity := range c.items {
		items = append(items, cartItemDTO{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	return cartDTO{
		CartID:     s.wireID(c.id),
		CustomerID: c.customerID,
		Status:     "OPEN",
		CreatedAt:  c.createdAt,
		UpdatedAt:  c.updatedAt,
	}, items, true
}

// Len returns the number of carts
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts)
}

// wireID returns the id as it appears in JSON: a number unless string ids are enabled
func (s *Store) wireID(id string) any {
	if s.stringIDs {
		return id
	}
	n, _ := strconv.ParseInt(id, 10, 64)
	return n
}
