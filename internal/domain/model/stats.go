package model

import "time"

// Seller aggregates seller statistics maintained from broker messages.
type Seller struct {
	ID               string
	Username         string
	OngoingJobs      int
	CompletedJobs    int
	CancelledJobs    int
	TotalEarnings    float64
	TotalGigs        int
	RecentDelivery   *time.Time
	RatingsCount     int
	RatingSum        int
	RatingCategories [5]int
	UpdatedAt        time.Time
}

// Buyer is the buyer profile kept by the users service.
type Buyer struct {
	ID             string
	Username       string
	Email          string
	ProfilePicture string
	Country        string
	PurchasedGigs  []string
	CreatedAt      time.Time
}

// SellerTotals is an absolute snapshot of seller counters.
type SellerTotals struct {
	OngoingJobs    *int
	CompletedJobs  *int
	TotalEarnings  *float64
	RecentDelivery *time.Time
}

// SellerDelta is a relative counter change guarded by the processed-message ledger.
type SellerDelta struct {
	OngoingJobs    int
	CompletedJobs  int
	CancelledJobs  int
	TotalEarnings  float64
	RecentDelivery *time.Time
}

// Review carries a seller review broadcast on the review exchange.
type Review struct {
	ID         string    `json:"id"`
	GigID      string    `json:"gigId"`
	ReviewerID string    `json:"reviewerId"`
	SellerID   string    `json:"sellerId"`
	OrderID    string    `json:"orderId"`
	Rating     int       `json:"rating"`
	Review     string    `json:"review"`
	ReviewType string    `json:"reviewType"`
	CreatedAt  time.Time `json:"createdAt"`
}
