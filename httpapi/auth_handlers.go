package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"rentflow/identity"
)

func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}

	user, err := s.identity.Register(c.Request().Context(), identity.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}

	result, err := s.identity.Login(c.Request().Context(), identity.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"token": result.Token,
		"user":  toUserResponse(result.User),
	})
}

func (s *Server) handleProfile(c echo.Context) error {
	user, err := s.identity.GetProfile(c.Request().Context(), callerID(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(*user))
}

func (s *Server) handleUpdateProfile(c echo.Context) error {
	var req updateProfileRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}

	user, err := s.identity.UpdateProfile(c.Request().Context(), callerID(c), req.DisplayName)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(*user))
}
