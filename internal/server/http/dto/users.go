package dto

import "time"

// SellerResponse is the public view of seller statistics.
type SellerResponse struct {
	ID               string           `json:"id"`
	Username         string           `json:"username"`
	OngoingJobs      int              `json:"ongoingJobs"`
	CompletedJobs    int              `json:"completedJobs"`
	CancelledJobs    int              `json:"cancelledJobs"`
	TotalEarnings    float64          `json:"totalEarnings"`
	TotalGigs        int              `json:"totalGigs"`
	RecentDelivery   *time.Time       `json:"recentDelivery,omitempty"`
	RatingsCount     int              `json:"ratingsCount"`
	RatingSum        int              `json:"ratingSum"`
	RatingCategories RatingCategories `json:"ratingCategories"`
}

// RatingCategories counts reviews per star.
type RatingCategories struct {
	Five  int `json:"five"`
	Four  int `json:"four"`
	Three int `json:"three"`
	Two   int `json:"two"`
	One   int `json:"one"`
}

// BuyerResponse is the public view of a buyer profile.
type BuyerResponse struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	ProfilePicture string    `json:"profilePicture"`
	Country        string    `json:"country"`
	PurchasedGigs  []string  `json:"purchasedGigs"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SellerEnvelope wraps seller statistics.
type SellerEnvelope struct {
	Message string         `json:"message"`
	Seller  SellerResponse `json:"seller"`
}

// BuyerEnvelope wraps a buyer profile.
type BuyerEnvelope struct {
	Message string        `json:"message"`
	Buyer   BuyerResponse `json:"buyer"`
}
