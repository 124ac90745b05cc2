package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleReviewProperty(c echo.Context) error {
	var req reviewRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}

	rec, err := s.reviews.ReviewProperty(c.Request().Context(), callerID(c), req.RentalID, req.Rating, req.Comment)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toPropertyReviewResponse(rec))
}

func (s *Server) handleReviewUser(c echo.Context) error {
	var req reviewRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}

	rec, err := s.reviews.ReviewCounterparty(c.Request().Context(), callerID(c), req.RentalID, req.Rating, req.Comment)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toUserReviewResponse(rec))
}

func (s *Server) handleUserReviews(c echo.Context) error {
	recs, err := s.reviews.ListForUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	out := make([]userReviewResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, toUserReviewResponse(r))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleUserRating(c echo.Context) error {
	summary, err := s.reviews.UserSummary(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, ratingResponse{Average: summary.Average, Count: summary.Count})
}
