package mock

import "time"

// Config represents the mock cart service configuration
type Config struct {
	Port         int     `json:"port" yaml:"port"`                 // Server port (default: 8080)
	Host         string  `json:"host" yaml:"host"`                 // Server host (default: localhost)
	StringIDs    bool    `json:"stringIds" yaml:"stringIds"`       // Issue uuid string ids instead of numbers
	DelayMs      int     `json:"delayMs" yaml:"delayMs"`           // Artificial delay per request
	NotFoundRate float64 `json:"notFoundRate" yaml:"notFoundRate"` // Probability of a 404 on add/get
	ErrorRate    float64 `json:"errorRate" yaml:"errorRate"`       // Probability of a 500 on any cart request
	Logging      bool    `json:"logging" yaml:"logging"`           // Keep request logs
	Seed         int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// RequestLog represents a logged request
type RequestLog struct {
	Timestamp time.Time     `json:"timestamp"`
	Method    string        `json:"method"`
	Path      string        `json:"path"`
	Body      string        `json:"body"`
	Status    int           `json:"status"`
	Injected  bool          `json:"injected"` // Status came from failure injection
	Duration  time.Duration `json:"duration"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type createCartRequest struct {
	CustomerID int `json:"customer_id"`
}

type createCartResponse struct {
	ShoppingCartID any `json:"shopping_cart_id"`
}

type addItemRequest struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

type cartDTO struct {
	CartID     any       `json:"cart_id"`
	CustomerID int       `json:"customer_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type cartItemDTO struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

type getCartResponse struct {
	Cart  cartDTO       `json:"cart"`
	Items []cartItemDTO `json:"items"`
}
