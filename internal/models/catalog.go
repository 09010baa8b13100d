package models

import (
	"strconv"
	"strings"
	"time"
)

// PayloadKind describes how a catalog item is delivered.
type PayloadKind string

const (
	// PayloadURL delivers the item as a link.
	PayloadURL PayloadKind = "url"
	// PayloadFile delivers a previously uploaded file by reference.
	PayloadFile PayloadKind = "file"
)

// RedeemableItem is an admin-curated catalog entry.
type RedeemableItem struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	PointCost   int         `json:"point_cost"`
	PayloadKind PayloadKind `json:"payload_kind"`
	Payload     string      `json:"payload"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ParsePointCost parses admin input for an item's price.
func ParsePointCost(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, ErrInvalidPointCost
	}
	return n, nil
}
