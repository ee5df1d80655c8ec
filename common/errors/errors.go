package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error represents an application error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error types
var (
	ErrBadRequest         = New(http.StatusBadRequest, "Bad request", nil)
	ErrUnauthorized       = New(http.StatusUnauthorized, "Unauthorized", nil)
	ErrNotFound           = New(http.StatusNotFound, "Not found", nil)
	ErrConflict           = New(http.StatusConflict, "Conflict", nil)
	ErrInternalServer     = New(http.StatusInternalServerError, "Internal server error", nil)
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "Service unavailable", nil)
)

// Sale and stock error types
var (
	ErrEmptyCart           = New(http.StatusBadRequest, "Cart is empty", nil)
	ErrInvalidQuantity     = New(http.StatusBadRequest, "Invalid quantity", nil)
	ErrInsufficientStock   = New(http.StatusConflict, "Insufficient stock", nil)
	ErrReservationConflict = New(http.StatusConflict, "Stock reservation conflict", nil)
	ErrInsufficientPayment = New(http.StatusBadRequest, "Received amount below total", nil)
	ErrInvalidInstallments = New(http.StatusBadRequest, "Invalid installment count", nil)
)

// HandleError writes an application error as a JSON response
func HandleError(w http.ResponseWriter, err error) {
	var appErr *Error
	if e, ok := err.(*Error); ok {
		appErr = e
	} else {
		appErr = New(http.StatusInternalServerError, "Internal server error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code)
	w.Write([]byte(appErr.JSON()))
}

// ErrorMiddleware renders errors attached to the gin context
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			var appErr *Error
			if e, ok := err.(*Error); ok {
				appErr = e
			} else {
				appErr = New(http.StatusInternalServerError, "Internal server error", err)
			}

			c.JSON(appErr.Code, appErr)
			c.Abort()
		}
	}
}
