package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	contextutils "feedbackapp/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestDefaultErrorRecoveryConfig(t *testing.T) {
	config := DefaultErrorRecoveryConfig()

	assert.False(t, config.EnableCircuitBreaker)
	assert.Equal(t, 5, config.CircuitBreakerThreshold)
	assert.Equal(t, 30*time.Second, config.CircuitBreakerTimeout)
}

func TestErrorRecoveryMiddleware_PanicRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorRecoveryMiddleware(nil, nil))

	router.GET("/panic", func(_ *gin.Context) {
		panic("test panic")
	})

	req, _ := http.NewRequest("GET", "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(contextutils.ErrorCodeInternalError))
	assert.Contains(t, w.Body.String(), "retryable")
}

func TestErrorRecoveryMiddleware_NormalRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorRecoveryMiddleware(nil, nil))

	router.GET("/normal", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req, _ := http.NewRequest("GET", "/normal", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestErrorRecoveryMiddleware_CircuitBreakerShedsLoad(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorRecoveryMiddleware(nil, &ErrorRecoveryConfig{
		EnableCircuitBreaker:    true,
		CircuitBreakerThreshold: 2,
		CircuitBreakerTimeout:   time.Minute,
	}))

	router.GET("/fail", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
	})

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest("GET", "/fail", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	}

	// Threshold reached, circuit now sheds the next request
	req, _ := http.NewRequest("GET", "/fail", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), string(contextutils.ErrorCodeServiceUnavailable))
}

func TestCircuitBreaker_CanExecute(t *testing.T) {
	config := &ErrorRecoveryConfig{
		EnableCircuitBreaker:    true,
		CircuitBreakerThreshold: 2,
		CircuitBreakerTimeout:   100 * time.Millisecond,
	}

	cb := newCircuitBreaker(config)

	assert.True(t, cb.canExecute())
	assert.Equal(t, circuitClosed, cb.state)

	cb.recordFailure()
	cb.recordFailure()

	assert.False(t, cb.canExecute())
	assert.Equal(t, circuitOpen, cb.state)

	time.Sleep(150 * time.Millisecond)

	assert.True(t, cb.canExecute())
	assert.Equal(t, circuitHalfOpen, cb.state)

	cb.recordSuccess()

	assert.True(t, cb.canExecute())
	assert.Equal(t, circuitClosed, cb.state)
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, errorCodeToHTTPStatus(contextutils.ErrorCodeInvalidInput))
	assert.Equal(t, http.StatusUnauthorized, errorCodeToHTTPStatus(contextutils.ErrorCodeSessionExpired))
	assert.Equal(t, http.StatusNotFound, errorCodeToHTTPStatus(contextutils.ErrorCodeRecordNotFound))
	assert.Equal(t, http.StatusConflict, errorCodeToHTTPStatus(contextutils.ErrorCodeConflict))
	assert.Equal(t, http.StatusServiceUnavailable, errorCodeToHTTPStatus(contextutils.ErrorCodeDatabaseConnection))
	assert.Equal(t, http.StatusInternalServerError, errorCodeToHTTPStatus(contextutils.ErrorCode("SOMETHING_NEW")))
}
