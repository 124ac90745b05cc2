package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"rentflow/dispute"
)

func (s *Server) handleCreateDispute(c echo.Context) error {
	var req createDisputeRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}

	rec, err := s.disputes.Create(c.Request().Context(), callerID(c), req.RentalID,
		dispute.Type(req.Type), req.Description, req.EvidenceRef, req.ClaimedAmount)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toDisputeResponse(rec))
}

func (s *Server) handleGetDispute(c echo.Context) error {
	rec, err := s.disputes.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toDisputeResponse(rec))
}

func (s *Server) handleStartDisputeReview(c echo.Context) error {
	if err := s.disputes.StartReview(c.Request().Context(), callerID(c), c.Param("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleResolveDispute(c echo.Context) error {
	var req resolveDisputeRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}

	rec, err := s.disputes.Resolve(c.Request().Context(), callerID(c), c.Param("id"),
		dispute.Outcome(req.Outcome), req.Details)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toDisputeResponse(rec))
}

func (s *Server) handleAddArbitrator(c echo.Context) error {
	var req arbitratorRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}
	if err := s.disputes.AddArbitrator(c.Request().Context(), callerID(c), req.UserID); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusCreated)
}

func (s *Server) handleRemoveArbitrator(c echo.Context) error {
	if err := s.disputes.RemoveArbitrator(c.Request().Context(), callerID(c), c.Param("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
