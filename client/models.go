package client

import (
	"time"

	"github.com/jmcleod/homly/identity"
)

// Product is a catalog item.
type Product struct {
	ID          string        `json:"_id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Price       float64       `json:"price"`
	Category    string        `json:"category,omitempty"`
	Subcategory string        `json:"subcategory,omitempty"`
	Image       string        `json:"image,omitempty"`
	Images      []string      `json:"images,omitempty"`
	Stock       int           `json:"stock"`
	Unit        string        `json:"unit,omitempty"`
	Featured    bool          `json:"featured"`
	IsAvailable bool          `json:"isAvailable"`
	IsGold      bool          `json:"isGold"`
	StoreID     *identity.Ref `json:"storeId,omitempty"`
	CreatedAt   time.Time     `json:"createdAt,omitzero"`
	UpdatedAt   time.Time     `json:"updatedAt,omitzero"`
}

// Store is a shop selling products.
type Store struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Type        []string  `json:"type,omitempty"`
	Address     string    `json:"address,omitempty"`
	City        string    `json:"city,omitempty"`
	Timing      string    `json:"timing,omitempty"`
	OpeningTime string    `json:"openingTime,omitempty"`
	ClosingTime string    `json:"closingTime,omitempty"`
	Mobile      string    `json:"mobile,omitempty"`
	Image       string    `json:"image,omitempty"`
	Rating      float64   `json:"rating"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

// Category groups products on the storefront.
type Category struct {
	ID            string   `json:"_id"`
	Name          string   `json:"name"`
	NameTA        string   `json:"name_ta,omitempty"`
	Description   string   `json:"description,omitempty"`
	Icon          string   `json:"icon,omitempty"`
	Image         string   `json:"image,omitempty"`
	Subcategories []string `json:"subcategories,omitempty"`
	IsActive      bool     `json:"isActive"`
}

// News is an article shown in the news feed.
type News struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Image     string    `json:"image,omitempty"`
	Images    []string  `json:"images,omitempty"`
	Category  string    `json:"category,omitempty"`
	Author    string    `json:"author,omitempty"`
	Featured  bool      `json:"featured"`
	Views     int       `json:"views"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Ad is a promotional banner.
type Ad struct {
	ID       string `json:"_id"`
	Title    string `json:"title"`
	Image    string `json:"image"`
	Link     string `json:"link,omitempty"`
	IsActive bool   `json:"isActive"`
	Order    int    `json:"order"`
}

// Service is a bookable local service.
type Service struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Address     string `json:"address,omitempty"`
	Mobile      string `json:"mobile,omitempty"`
	IsActive    bool   `json:"isActive"`
}

// ServiceRequestStatus is the lifecycle state of a service request.
type ServiceRequestStatus string

const (
	ServiceRequestPending    ServiceRequestStatus = "Pending"
	ServiceRequestInProgress ServiceRequestStatus = "In Progress"
	ServiceRequestCompleted  ServiceRequestStatus = "Completed"
	ServiceRequestCancelled  ServiceRequestStatus = "Cancelled"
)

// ServiceRequest is a customer's booking of a Service.
type ServiceRequest struct {
	ID        string               `json:"_id"`
	User      *identity.Ref        `json:"user,omitempty"`
	Service   *identity.Ref        `json:"service,omitempty"`
	Name      string               `json:"name,omitempty"`
	Mobile    string               `json:"mobile,omitempty"`
	Address   string               `json:"address,omitempty"`
	Message   string               `json:"message,omitempty"`
	Status    ServiceRequestStatus `json:"status"`
	CreatedAt time.Time            `json:"createdAt,omitzero"`
}

// OrderStatus is the fulfilment state of an order. Transitions are decided
// by the server.
type OrderStatus string

const (
	OrderProcessing OrderStatus = "Processing"
	OrderShipped    OrderStatus = "Shipped"
	OrderDelivered  OrderStatus = "Delivered"
	OrderCancelled  OrderStatus = "Cancelled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// OrderItem is one line of an order.
type OrderItem struct {
	Product  string        `json:"product"`
	Name     string        `json:"name"`
	Quantity int           `json:"quantity"`
	Price    float64       `json:"price"`
	Image    string        `json:"image,omitempty"`
	StoreID  *identity.Ref `json:"storeId,omitempty"`
	Unit     string        `json:"unit,omitempty"`
	IsGold   bool          `json:"isGold,omitempty"`
}

// ShippingAddress is where an order is delivered.
type ShippingAddress struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip"`
	Country string `json:"country,omitempty"`
	Mobile  string `json:"mobile"`
}

// PaymentMethod describes how an order is paid.
type PaymentMethod struct {
	Type  string `json:"type"`
	Last4 string `json:"last4,omitempty"`
}

// Order is a placed order.
type Order struct {
	ID                    string          `json:"_id,omitempty"`
	User                  *identity.Ref   `json:"user,omitempty"`
	Items                 []OrderItem     `json:"items"`
	ShippingAddress       ShippingAddress `json:"shippingAddress"`
	PaymentMethod         PaymentMethod   `json:"paymentMethod"`
	Subtotal              float64         `json:"subtotal"`
	Shipping              float64         `json:"shipping"`
	Tax                   float64         `json:"tax"`
	Discount              float64         `json:"discount"`
	Total                 float64         `json:"total"`
	Status                OrderStatus     `json:"status,omitempty"`
	ScheduledDeliveryTime *time.Time      `json:"scheduledDeliveryTime,omitempty"`
	DeliveredAt           *time.Time      `json:"deliveredAt,omitempty"`
	CreatedAt             time.Time       `json:"createdAt,omitzero"`
}

// Setting is one key/value entry of the site settings.
type Setting struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}
