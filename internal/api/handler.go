// Package api serves the marketplace read operations over HTTP.
package api

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/propchain/internal/events"
	"github.com/jmerrifield20/propchain/internal/ledger"
	"github.com/jmerrifield20/propchain/internal/marketplace"
	"github.com/jmerrifield20/propchain/internal/model"
)

// MarketHandler exposes read-only marketplace endpoints.
type MarketHandler struct {
	svc    *marketplace.Service
	logger *zap.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(svc *marketplace.Service, logger *zap.Logger) *MarketHandler {
	return &MarketHandler{svc: svc, logger: logger}
}

// Register mounts the marketplace routes on rg.
func (h *MarketHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/listings", h.ListListings)
	rg.GET("/listings/:id", h.GetListing)
	rg.GET("/listings/:id/reviews", h.ListReviews)
	rg.GET("/listings/:id/events", h.ListingEvents)
	rg.GET("/listings/:id/reviewed/:account", h.HasReviewed)
	rg.GET("/reviews/count", h.ReviewCount)
	rg.GET("/highest-rated", h.HighestRated)
	rg.GET("/users/:account/listings", h.UserListings)
	rg.GET("/users/:account/reviews", h.UserReviews)
	rg.GET("/users/:account/events", h.UserEvents)
	rg.GET("/events", h.ListEvents)
	rg.GET("/events/recent", h.RecentEvents)
	rg.GET("/stats", h.Stats)
	rg.GET("/connection", h.Connection)
}

// ListListings handles GET /listings.
func (h *MarketHandler) ListListings(c *gin.Context) {
	listings, err := h.svc.FetchAllListings(c.Request.Context())
	if err != nil {
		h.fail(c, "fetch listings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings, "count": len(listings)})
}

// GetListing handles GET /listings/:id.
func (h *MarketHandler) GetListing(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		return
	}
	detail, err := h.svc.FetchListing(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "fetch listing", err)
		return
	}
	if !detail.Found {
		c.JSON(http.StatusNotFound, gin.H{"error": "property not found"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListReviews handles GET /listings/:id/reviews.
func (h *MarketHandler) ListReviews(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		return
	}
	reviews, err := h.svc.FetchReviews(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "fetch reviews", err)
		return
	}
	if !reviews.Found {
		c.JSON(http.StatusNotFound, gin.H{"error": "property not found"})
		return
	}
	c.JSON(http.StatusOK, reviews)
}

// ListingEvents handles GET /listings/:id/events.
func (h *MarketHandler) ListingEvents(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		return
	}
	evs, err := h.svc.FetchListingEvents(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "fetch listing events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

// HasReviewed handles GET /listings/:id/reviewed/:account.
func (h *MarketHandler) HasReviewed(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		return
	}
	reviewed, err := h.svc.HasUserReviewed(c.Request.Context(), id, c.Param("account"))
	if err != nil {
		h.fail(c, "has reviewed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviewed": reviewed})
}

// ReviewCount handles GET /reviews/count.
func (h *MarketHandler) ReviewCount(c *gin.Context) {
	n, err := h.svc.FetchTotalReviewCount(c.Request.Context())
	if err != nil {
		h.fail(c, "review count", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_reviews": n})
}

// HighestRated handles GET /highest-rated.
func (h *MarketHandler) HighestRated(c *gin.Context) {
	top, err := h.svc.FetchHighestRated(c.Request.Context())
	if err != nil {
		h.fail(c, "fetch highest rated", err)
		return
	}
	c.JSON(http.StatusOK, top)
}

// UserListings handles GET /users/:account/listings.
func (h *MarketHandler) UserListings(c *gin.Context) {
	res, err := h.svc.FetchUserListings(c.Request.Context(), c.Param("account"))
	if err != nil {
		h.fail(c, "fetch user listings", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// UserReviews handles GET /users/:account/reviews.
func (h *MarketHandler) UserReviews(c *gin.Context) {
	res, err := h.svc.FetchUserReviews(c.Request.Context(), c.Param("account"))
	if err != nil {
		h.fail(c, "fetch user reviews", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// UserEvents handles GET /users/:account/events.
func (h *MarketHandler) UserEvents(c *gin.Context) {
	evs, err := h.svc.FetchUserEvents(c.Request.Context(), c.Param("account"))
	if err != nil {
		h.fail(c, "fetch user events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

// ListEvents handles GET /events?name=&from=&to=.
func (h *MarketHandler) ListEvents(c *gin.Context) {
	from, ok := blockParam(c, "from")
	if !ok {
		return
	}
	to, ok := blockParam(c, "to")
	if !ok {
		return
	}
	evs, err := h.svc.FetchEvents(c.Request.Context(), c.Query("name"), from, to)
	if err != nil {
		h.fail(c, "fetch events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

// RecentEvents handles GET /events/recent?limit=.
func (h *MarketHandler) RecentEvents(c *gin.Context) {
	limit := marketplace.DefaultRecentEvents
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	evs, err := h.svc.FetchRecentEvents(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "fetch recent events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

// Stats handles GET /stats.
func (h *MarketHandler) Stats(c *gin.Context) {
	p, err := h.svc.PlatformStats(c.Request.Context())
	if err != nil {
		h.fail(c, "platform stats", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Connection handles GET /connection and reports the signing account, if any.
func (h *MarketHandler) Connection(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Connection().State())
}

// fail maps an operation error onto a response.
func (h *MarketHandler) fail(c *gin.Context, op string, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Msg})
	case errors.Is(err, events.ErrUnknownEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if rej, ok := ledger.AsRejected(err); ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rej.Message})
			return
		}
		h.logger.Error(op, zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "ledger unavailable"})
	}
}

func listingID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

// blockParam parses an optional block-number query parameter; absent means
// nil.
func blockParam(c *gin.Context, name string) (*big.Int, bool) {
	s := c.Query(name)
	if s == "" {
		return nil, true
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a block number"})
		return nil, false
	}
	return new(big.Int).SetUint64(n), true
}
