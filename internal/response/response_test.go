package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"ok": true}) })

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"client id is reused", "req-42.a_b", true},
		{"missing id is generated", "", false},
		{"unsafe id is replaced", "bad id\r\n", false},
		{"long id is replaced", strings.Repeat("a", 65), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(HeaderRequestID, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(HeaderRequestID)
			require.NotEmpty(t, got)
			if tt.keep {
				assert.Equal(t, tt.header, got)
			} else {
				assert.NotEqual(t, tt.header, got)
			}

			var body Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, got, body.Metadata.RequestID)
		})
	}
}

func TestFailWithData(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	FailWithData(c, http.StatusUnprocessableEntity, ErrSectionIncomplete, gin.H{"current_section": "S1"}, map[string]string{"S1/Q1": "This question is required"})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body struct {
		Data  map[string]string `json:"data"`
		Error ErrorBody         `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "S1", body.Data["current_section"])
	assert.Equal(t, ErrSectionIncomplete, body.Error.Code)
	assert.Equal(t, GetMessage(ErrSectionIncomplete), body.Error.Message)
	assert.Equal(t, "This question is required", body.Error.Fields["S1/Q1"])
}
