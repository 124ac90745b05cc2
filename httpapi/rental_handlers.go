package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"rentflow/escrow"
)

// idempotencyKey reads the optional client retry key. Requests without
// one are processed unconditionally.
func idempotencyKey(c echo.Context) string {
	return c.Request().Header.Get("Idempotency-Key")
}

func (s *Server) handleCreateRental(c echo.Context) error {
	var req createRentalRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}

	rec, err := s.rentals.Create(c.Request().Context(), callerID(c), req.PropertyID, req.Amount, idempotencyKey(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toRentalResponse(rec))
}

func (s *Server) handleListRentals(c echo.Context) error {
	ctx := c.Request().Context()
	caller := callerID(c)

	if c.QueryParam("role") == "landlord" {
		recs, err := s.rentals.ListByLandlord(ctx, caller)
		if err != nil {
			return s.writeError(c, err)
		}
		return c.JSON(http.StatusOK, toRentalResponses(recs))
	}
	recs, err := s.rentals.ListByTenant(ctx, caller)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toRentalResponses(recs))
}

func (s *Server) handleGetRental(c echo.Context) error {
	rec, err := s.rentals.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toRentalResponse(rec))
}

// handleRentalEscrow reports the held balances; visible to the
// rental's parties only.
func (s *Server) handleRentalEscrow(c echo.Context) error {
	ctx := c.Request().Context()
	rec, err := s.rentals.Get(ctx, c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	caller := callerID(c)
	if caller != rec.TenantID && caller != rec.LandlordID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not party to rental"})
	}

	rent, err := s.ledger.Balance(ctx, rec.ID, escrow.BucketRent)
	if err != nil {
		return s.writeError(c, err)
	}
	deposit, err := s.ledger.Balance(ctx, rec.ID, escrow.BucketDeposit)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, escrowResponse{RentalID: rec.ID, Rent: rent, Deposit: deposit})
}

func (s *Server) handlePayRent(c echo.Context) error {
	var req payRentRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}

	rec, err := s.rentals.PayRent(c.Request().Context(), callerID(c), c.Param("id"), req.Amount, idempotencyKey(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toRentalResponse(rec))
}

func (s *Server) handleWithdrawRent(c echo.Context) error {
	amount, err := s.rentals.WithdrawRent(c.Request().Context(), callerID(c), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, amountResponse{Amount: amount})
}

func (s *Server) handleRequestDepositRelease(c echo.Context) error {
	if err := s.rentals.RequestDepositRelease(c.Request().Context(), callerID(c), c.Param("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleApproveDepositRelease(c echo.Context) error {
	amount, err := s.rentals.ApproveDepositRelease(c.Request().Context(), callerID(c), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, amountResponse{Amount: amount})
}

func (s *Server) handleRentalDisputes(c echo.Context) error {
	recs, err := s.disputes.ListByRental(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toDisputeResponses(recs))
}

func (s *Server) handleRentalMaintenance(c echo.Context) error {
	recs, err := s.maintenance.ListByRental(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toMaintenanceResponses(recs))
}
