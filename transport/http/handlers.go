package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/zeoauth/core"
	"github.com/layer-3/zeoauth/internal/logger"
	"github.com/layer-3/zeoauth/service"
)

// Stable error codes returned to clients
const (
	CodeInvalidAddress         = "INVALID_ADDRESS"
	CodeValidationError        = "VALIDATION_ERROR"
	CodePayloadTooLarge        = "PAYLOAD_TOO_LARGE"
	CodeNonceNotFoundInMessage = "NONCE_NOT_FOUND_IN_MESSAGE"
	CodeBadSignature           = "BAD_SIGNATURE"
	CodeMessageAddressMismatch = "MESSAGE_ADDRESS_MISMATCH"
	CodeAddressMismatch        = "ADDRESS_MISMATCH"
	CodeNonceInvalidOrExpired  = "NONCE_INVALID_OR_EXPIRED"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeNotFound               = "NOT_FOUND"
	CodeInternalError          = "INTERNAL_ERROR"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	logger      logger.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, l logger.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		logger:      l,
	}
}

type nonceResponse struct {
	OK        bool      `json:"ok"`
	Address   string    `json:"address"`
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type verifyResponse struct {
	OK        bool       `json:"ok"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Address   string     `json:"address"`
	User      *core.User `json:"user,omitempty"`
}

type meResponse struct {
	OK      bool       `json:"ok"`
	Address string     `json:"address"`
	User    *core.User `json:"user"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// numeric is an integer that may also be sent as a JSON string, e.g. "137"
type numeric int64

func (n *numeric) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*n = numeric(v)
		return nil
	}

	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = numeric(v)
	return nil
}

// Nonce issues a login challenge for the queried address
func (h *AuthHandlers) Nonce(c *gin.Context) {
	var req struct {
		Address string `form:"address" binding:"required"`
		ChainID int64  `form:"chainId" binding:"omitempty,min=1"`
	}

	if err := c.ShouldBindQuery(&req); err != nil {
		abortWithCode(c, http.StatusBadRequest, CodeValidationError)
		return
	}

	ch, err := h.authService.IssueChallenge(c.Request.Context(), req.Address, req.ChainID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, nonceResponse{
		OK:        true,
		Address:   ch.Address,
		Nonce:     ch.Nonce,
		Message:   ch.Message,
		ExpiresAt: ch.ExpiresAt.UTC(),
	})
}

// Verify checks a signed challenge and returns a session token
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		Address   string  `json:"address"`
		ChainID   numeric `json:"chainId" binding:"omitempty,min=1"`
		Message   string  `json:"message" binding:"required"`
		Signature string  `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			abortWithCode(c, http.StatusRequestEntityTooLarge, CodePayloadTooLarge)
			return
		}
		abortWithCode(c, http.StatusBadRequest, CodeValidationError)
		return
	}

	res, err := h.authService.Verify(c.Request.Context(), service.VerifyRequest{
		Message:   req.Message,
		Signature: req.Signature,
		Address:   req.Address,
		ChainID:   int64(req.ChainID),
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, verifyResponse{
		OK:        true,
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt.UTC(),
		Address:   res.Address,
		User:      res.User,
	})
}

// Me returns information about the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	// Set by the auth middleware
	address := c.GetString(ContextKeyAddress)
	if address == "" {
		abortWithCode(c, http.StatusUnauthorized, CodeUnauthorized)
		return
	}

	profile, err := h.authService.Profile(c.Request.Context(), address)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, meResponse{
		OK:      true,
		Address: profile.Address,
		User:    profile.User,
	})
}

// NotFound answers unknown routes
func NotFound(c *gin.Context) {
	abortWithCode(c, http.StatusNotFound, CodeNotFound)
}

func (h *AuthHandlers) abortWithError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err.Error())
	}
	abortWithCode(c, status, code)
}

// errorStatus maps domain errors to a response status and code
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidAddress):
		return http.StatusBadRequest, CodeInvalidAddress
	case errors.Is(err, core.ErrNonceNotFoundInMessage):
		return http.StatusBadRequest, CodeNonceNotFoundInMessage
	case errors.Is(err, core.ErrBadSignature):
		return http.StatusUnauthorized, CodeBadSignature
	case errors.Is(err, core.ErrMessageAddressMismatch):
		return http.StatusUnauthorized, CodeMessageAddressMismatch
	case errors.Is(err, core.ErrAddressMismatch):
		return http.StatusUnauthorized, CodeAddressMismatch
	case errors.Is(err, core.ErrNonceInvalidOrExpired):
		return http.StatusUnauthorized, CodeNonceInvalidOrExpired
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

func abortWithCode(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, errorResponse{OK: false, Error: code})
}
