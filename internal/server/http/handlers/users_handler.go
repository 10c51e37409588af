package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/jobber/internal/domain/model"
	"github.com/polkiloo/jobber/internal/server/http/dto"
)

// UsersHandler serves buyer profiles and seller statistics.
type UsersHandler struct {
	users UsersService
}

// NewUsersHandler constructs UsersHandler.
func NewUsersHandler(users UsersService) *UsersHandler {
	return &UsersHandler{users: users}
}

// Seller handles GET /api/v1/seller/:sellerId.
func (h *UsersHandler) Seller(c *gin.Context) {
	seller, err := h.users.Seller(c.Request.Context(), c.Param("sellerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SellerEnvelope{Message: "Seller profile.", Seller: toSellerResponse(*seller)})
}

// Buyer handles GET /api/v1/buyer/:buyerId.
func (h *UsersHandler) Buyer(c *gin.Context) {
	buyer, err := h.users.Buyer(c.Request.Context(), c.Param("buyerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	gigs := buyer.PurchasedGigs
	if gigs == nil {
		gigs = []string{}
	}
	c.JSON(http.StatusOK, dto.BuyerEnvelope{Message: "Buyer profile.", Buyer: dto.BuyerResponse{
		ID:             buyer.ID,
		Username:       buyer.Username,
		Email:          buyer.Email,
		ProfilePicture: buyer.ProfilePicture,
		Country:        buyer.Country,
		PurchasedGigs:  gigs,
		CreatedAt:      buyer.CreatedAt,
	}})
}

func toSellerResponse(s model.Seller) dto.SellerResponse {
	return dto.SellerResponse{
		ID:             s.ID,
		Username:       s.Username,
		OngoingJobs:    s.OngoingJobs,
		CompletedJobs:  s.CompletedJobs,
		CancelledJobs:  s.CancelledJobs,
		TotalEarnings:  s.TotalEarnings,
		TotalGigs:      s.TotalGigs,
		RecentDelivery: s.RecentDelivery,
		RatingsCount:   s.RatingsCount,
		RatingSum:      s.RatingSum,
		RatingCategories: dto.RatingCategories{
			One:   s.RatingCategories[0],
			Two:   s.RatingCategories[1],
			Three: s.RatingCategories[2],
			Four:  s.RatingCategories[3],
			Five:  s.RatingCategories[4],
		},
	}
}
