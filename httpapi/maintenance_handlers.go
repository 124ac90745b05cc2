package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"rentflow/maintenance"
)

func (s *Server) handleCreateMaintenance(c echo.Context) error {
	var req createMaintenanceRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}

	rec, err := s.maintenance.Create(c.Request().Context(), callerID(c), req.RentalID,
		req.Description, req.PhotosRef, maintenance.Priority(req.Priority))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toMaintenanceResponse(rec))
}

func (s *Server) handleGetMaintenance(c echo.Context) error {
	rec, err := s.maintenance.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toMaintenanceResponse(rec))
}

func (s *Server) handleUpdateMaintenanceStatus(c echo.Context) error {
	var req updateMaintenanceStatusRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}

	rec, err := s.maintenance.UpdateStatus(c.Request().Context(), callerID(c), c.Param("id"),
		maintenance.Status(req.Status), req.Resolution, req.EstimatedCost)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toMaintenanceResponse(rec))
}

func (s *Server) handleCompleteMaintenance(c echo.Context) error {
	var req completeMaintenanceRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}

	rec, err := s.maintenance.Complete(c.Request().Context(), callerID(c), c.Param("id"), req.ActualCost)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toMaintenanceResponse(rec))
}
