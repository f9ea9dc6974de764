package httperrors

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(t *testing.T, fn func(*gin.Context)) (int, ErrorResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/", nil)

	fn(c)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestRespondUnauthorized(t *testing.T) {
	code, body := respond(t, func(c *gin.Context) { RespondUnauthorized(c, "") })
	assert.Equal(t, 401, code)
	assert.Equal(t, CodeUnauthorized, body.Code)
	assert.Equal(t, MsgUnauthorized, body.Error)

	_, body = respond(t, func(c *gin.Context) { RespondUnauthorized(c, "custom message") })
	assert.Equal(t, "custom message", body.Error)
}

func TestRespondInvalidToken(t *testing.T) {
	code, body := respond(t, RespondInvalidToken)
	assert.Equal(t, 401, code)
	assert.Equal(t, CodeInvalidToken, body.Code)
}

func TestRespondBadRequest(t *testing.T) {
	code, body := respond(t, func(c *gin.Context) { RespondBadRequest(c, "") })
	assert.Equal(t, 400, code)
	assert.Equal(t, CodeBadRequest, body.Code)
	assert.Equal(t, MsgBadRequest, body.Error)
}

func TestRespondInternalError_NoDetailLeak(t *testing.T) {
	code, body := respond(t, RespondInternalError)
	assert.Equal(t, 500, code)
	assert.Equal(t, CodeInternalError, body.Code)
	assert.Equal(t, MsgInternalError, body.Error)
	assert.Empty(t, body.Details)
}

func TestRespondServiceUnavailable(t *testing.T) {
	code, body := respond(t, RespondServiceUnavailable)
	assert.Equal(t, 503, code)
	assert.Equal(t, CodeServiceUnavailable, body.Code)
}
