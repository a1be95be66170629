package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func ok(c *gin.Context) {
	c.Status(http.StatusOK)
}

func TestRouter_SetupRegistersVersionedRoutes(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v1"))

	group := NewDomainGroup("ledger", "/ledger")
	group.GET("/invoices", ok)
	group.POST("/invoices", ok)

	r.Register(group)
	r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/invoices", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/ledger/invoices", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_UnknownRouteIs404(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)
	r.Register(NewDomainGroup("ledger", "/ledger").GET("/invoices", ok))
	r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_MiddlewareAppliesToAPIGroup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	var called bool
	r.Use(func(c *gin.Context) {
		called = true
		c.Next()
	})
	r.Register(NewDomainGroup("ledger", "/ledger").GET("/invoices", ok))
	r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/invoices", nil))
	assert.True(t, called)
}

func TestDomainGroup_GroupMiddleware(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	group := NewDomainGroup("dunning", "/dunning")
	group.Use(func(c *gin.Context) {
		c.Header("X-Group", "dunning")
		c.Next()
	})
	group.GET("/candidates", ok)

	r.Register(group)
	r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dunning/candidates", nil))
	assert.Equal(t, "dunning", w.Header().Get("X-Group"))
	assert.Equal(t, "ledger", NewDomainGroup("ledger", "/ledger").Name())
}
