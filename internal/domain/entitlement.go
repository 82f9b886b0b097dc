package domain

import "time"

// Entitlement is a permanent record that a user bought a product.
type Entitlement struct {
	UserID    string    `json:"userId"`
	ProductID string    `json:"productId"`
	OrderID   string    `json:"orderId,omitempty"`
	GrantedAt time.Time `json:"grantedAt"`
}

// Review is a rating left by a verified purchaser.
type Review struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username,omitempty"`
	ProductID string    `json:"productId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
