package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"rentflow/dispute"
	"rentflow/escrow"
	"rentflow/identity"
	"rentflow/listing"
	"rentflow/maintenance"
	"rentflow/rental"
	"rentflow/review"
)

// Server binds the domain services to the HTTP surface.
type Server struct {
	identity    *identity.Service
	listings    *listing.Service
	rentals     *rental.Service
	disputes    *dispute.Service
	maintenance *maintenance.Service
	reviews     *review.Service
	ledger      *escrow.Ledger

	validate *validator.Validate
	log      *zap.Logger
}

func NewServer(
	ident *identity.Service,
	listings *listing.Service,
	rentals *rental.Service,
	disputes *dispute.Service,
	maint *maintenance.Service,
	reviews *review.Service,
	ledger *escrow.Ledger,
	log *zap.Logger,
) *Server {
	return &Server{
		identity:    ident,
		listings:    listings,
		rentals:     rentals,
		disputes:    disputes,
		maintenance: maint,
		reviews:     reviews,
		ledger:      ledger,
		validate:    validator.New(),
		log:         log,
	}
}

// Register attaches all routes to the echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/auth/register", s.handleRegister)
	e.POST("/auth/login", s.handleLogin)

	e.GET("/properties", s.handleListProperties)
	e.GET("/properties/:id", s.handleGetProperty)
	e.GET("/properties/:id/reviews", s.handlePropertyReviews)
	e.GET("/properties/:id/rating", s.handlePropertyRating)
	e.GET("/users/:id/reviews", s.handleUserReviews)
	e.GET("/users/:id/rating", s.handleUserRating)

	auth := e.Group("", s.requireAuth)
	auth.GET("/me", s.handleProfile)
	auth.PUT("/me", s.handleUpdateProfile)

	auth.POST("/properties", s.handleCreateProperty)
	auth.PUT("/properties/:id", s.handleUpdateProperty)
	auth.DELETE("/properties/:id", s.handleUnlistProperty)
	auth.GET("/my/properties", s.handleMyProperties)

	auth.POST("/rentals", s.handleCreateRental)
	auth.GET("/rentals", s.handleListRentals)
	auth.GET("/rentals/:id", s.handleGetRental)
	auth.GET("/rentals/:id/escrow", s.handleRentalEscrow)
	auth.POST("/rentals/:id/rent", s.handlePayRent)
	auth.POST("/rentals/:id/rent/withdraw", s.handleWithdrawRent)
	auth.POST("/rentals/:id/deposit/request", s.handleRequestDepositRelease)
	auth.POST("/rentals/:id/deposit/approve", s.handleApproveDepositRelease)
	auth.GET("/rentals/:id/disputes", s.handleRentalDisputes)
	auth.GET("/rentals/:id/maintenance", s.handleRentalMaintenance)

	auth.POST("/disputes", s.handleCreateDispute)
	auth.GET("/disputes/:id", s.handleGetDispute)
	auth.POST("/disputes/:id/review", s.handleStartDisputeReview)
	auth.POST("/disputes/:id/resolve", s.handleResolveDispute)
	auth.POST("/admin/arbitrators", s.handleAddArbitrator)
	auth.DELETE("/admin/arbitrators/:id", s.handleRemoveArbitrator)

	auth.POST("/maintenance", s.handleCreateMaintenance)
	auth.GET("/maintenance/:id", s.handleGetMaintenance)
	auth.PUT("/maintenance/:id/status", s.handleUpdateMaintenanceStatus)
	auth.POST("/maintenance/:id/complete", s.handleCompleteMaintenance)

	auth.POST("/reviews/property", s.handleReviewProperty)
	auth.POST("/reviews/user", s.handleReviewUser)
}

// requireAuth validates the bearer token and stows the caller id.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		if header == "" {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
		}
		parts := strings.Split(header, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
		}
		userID, err := s.identity.VerifyToken(parts[1])
		if err != nil {
			s.log.Warn("token rejected", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		}
		c.Set("user_id", userID)
		return next(c)
	}
}

func callerID(c echo.Context) string {
	id, _ := c.Get("user_id").(string)
	return id
}

func (s *Server) bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// writeError maps domain errors onto the HTTP surface: unknown ids are
// 404, role failures 403, state conflicts 409, mistimed operations
// 422, malformed input 400.
func (s *Server) writeError(c echo.Context, err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return c.JSON(httpErr.Code, echo.Map{"error": httpErr.Message})
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, identity.ErrUserNotFound),
		errors.Is(err, listing.ErrNotFound),
		errors.Is(err, rental.ErrNotFound),
		errors.Is(err, dispute.ErrNotFound),
		errors.Is(err, maintenance.ErrNotFound),
		errors.Is(err, review.ErrRentalNotFound):
		status = http.StatusNotFound

	case errors.Is(err, identity.ErrInvalidCredentials):
		status = http.StatusUnauthorized

	case errors.Is(err, listing.ErrNotOwner),
		errors.Is(err, rental.ErrNotTenant),
		errors.Is(err, rental.ErrNotLandlord),
		errors.Is(err, dispute.ErrNotAdmin),
		errors.Is(err, dispute.ErrNotArbitrator),
		errors.Is(err, dispute.ErrNotParty),
		errors.Is(err, dispute.ErrConflicted),
		errors.Is(err, maintenance.ErrForbidden),
		errors.Is(err, review.ErrNotParty),
		errors.Is(err, escrow.ErrUnauthorizedCaller):
		status = http.StatusForbidden

	case errors.Is(err, identity.ErrDuplicateEmail),
		errors.Is(err, listing.ErrNotListed),
		errors.Is(err, listing.ErrNotAvailable),
		errors.Is(err, rental.ErrInvalidState),
		errors.Is(err, rental.ErrSelfRental),
		errors.Is(err, rental.ErrNothingToWithdraw),
		errors.Is(err, rental.ErrDuplicateRequest),
		errors.Is(err, dispute.ErrBadStatus),
		errors.Is(err, dispute.ErrAlreadyResolved),
		errors.Is(err, dispute.ErrAlreadyArbitrator),
		errors.Is(err, dispute.ErrRentalConcluded),
		errors.Is(err, maintenance.ErrBadStatus),
		errors.Is(err, maintenance.ErrRentalNotActive),
		errors.Is(err, review.ErrRentalNotConcluded),
		errors.Is(err, review.ErrDuplicateReview):
		status = http.StatusConflict

	case errors.Is(err, rental.ErrOutOfWindow),
		errors.Is(err, rental.ErrTermNotEnded):
		status = http.StatusUnprocessableEntity

	case errors.Is(err, identity.ErrWeakPassword),
		errors.Is(err, identity.ErrEmptyName),
		errors.Is(err, identity.ErrEmptyEmail),
		errors.Is(err, listing.ErrInvalidFields),
		errors.Is(err, rental.ErrIncorrectPayment),
		errors.Is(err, dispute.ErrInvalidDispute),
		errors.Is(err, maintenance.ErrInvalidRequest),
		errors.Is(err, review.ErrInvalidRating),
		errors.Is(err, escrow.ErrInvalidAmount):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}
