package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteListing(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/v1/trivia/generate", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/debug/pprof", func(c *gin.Context) { c.Status(http.StatusOK) })

	listing := NewRouteListingHandler("trivia-backend")
	listing.CollectRoutes(router)
	router.GET("/", listing.GetRouteListingJSON)

	req, _ := http.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Service string      `json:"service"`
		Routes  []RouteInfo `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "trivia-backend", response.Service)

	var paths []string
	for _, r := range response.Routes {
		paths = append(paths, r.Path)
	}
	assert.Contains(t, paths, "/health")
	assert.Contains(t, paths, "/v1/trivia/generate")
	assert.NotContains(t, paths, "/debug/pprof", "debug routes are excluded")

	// Sorted by path
	for i := 1; i < len(paths); i++ {
		assert.LessOrEqual(t, paths[i-1], paths[i])
	}
}
