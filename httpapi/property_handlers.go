package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

func propertyID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid property id")
	}
	return id, nil
}

func (s *Server) handleCreateProperty(c echo.Context) error {
	var req propertyRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}

	prop, err := s.listings.List(c.Request().Context(), callerID(c), req.fields())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toPropertyResponse(prop))
}

func (s *Server) handleUpdateProperty(c echo.Context) error {
	id, err := propertyID(c)
	if err != nil {
		return s.writeError(c, err)
	}
	var req propertyRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}

	prop, err := s.listings.Update(c.Request().Context(), callerID(c), id, req.fields())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toPropertyResponse(prop))
}

func (s *Server) handleUnlistProperty(c echo.Context) error {
	id, err := propertyID(c)
	if err != nil {
		return s.writeError(c, err)
	}
	if err := s.listings.Unlist(c.Request().Context(), callerID(c), id); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetProperty(c echo.Context) error {
	id, err := propertyID(c)
	if err != nil {
		return s.writeError(c, err)
	}
	prop, err := s.listings.Get(c.Request().Context(), id)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toPropertyResponse(prop))
}

func (s *Server) handleListProperties(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	props, err := s.listings.ListAvailable(c.Request().Context(), limit, offset)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toPropertyResponses(props))
}

func (s *Server) handleMyProperties(c echo.Context) error {
	props, err := s.listings.ListByOwner(c.Request().Context(), callerID(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toPropertyResponses(props))
}

func (s *Server) handlePropertyReviews(c echo.Context) error {
	id, err := propertyID(c)
	if err != nil {
		return s.writeError(c, err)
	}
	recs, err := s.reviews.ListByProperty(c.Request().Context(), id)
	if err != nil {
		return s.writeError(c, err)
	}
	out := make([]propertyReviewResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, toPropertyReviewResponse(r))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handlePropertyRating(c echo.Context) error {
	id, err := propertyID(c)
	if err != nil {
		return s.writeError(c, err)
	}
	summary, err := s.reviews.PropertySummary(c.Request().Context(), id)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, ratingResponse{Average: summary.Average, Count: summary.Count})
}
