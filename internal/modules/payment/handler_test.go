package payment

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventreg/internal/middleware"
	"eventreg/internal/pkg/jwt"
	"eventreg/internal/repository"
)

func newRouter(t *testing.T, e *env) (*gin.Engine, *jwt.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtService := jwt.New("test-secret", time.Hour)
	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.JWTAuth(jwtService, repository.NewTenantRepository(e.db)))
	NewHandler(e.svc, nil).RegisterProtectedRoutes(api)
	return router, jwtService
}

func TestHandlerRegisterAndStatus(t *testing.T) {
	e := newEnv(t)
	router, jwtService := newRouter(t, e)
	opt := e.fx.Option(t, 1, 0)
	token, err := jwtService.GenerateToken("alice", e.fx.Tenant.ID, nil)
	require.NoError(t, err)

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodPost, "/api/v1/events/"+e.fx.Event.ID+"/registrations", RegisterRequest{RegistrationOptionID: opt.ID})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"CONFIRMED"`)

	w = do(http.MethodPost, "/api/v1/events/"+e.fx.Event.ID+"/registrations", RegisterRequest{RegistrationOptionID: opt.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"CONFLICT"`)

	w = do(http.MethodPost, "/api/v1/events/"+e.fx.Event.ID+"/registrations", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(http.MethodGet, "/api/v1/events/"+e.fx.Event.ID+"/registration-status", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			IsRegistered  bool              `json:"isRegistered"`
			Registrations []json.RawMessage `json:"registrations"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data.IsRegistered)
	assert.Len(t, body.Data.Registrations, 1)

	w = do(http.MethodPost, "/api/v1/registrations/whatever/check-in", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

}
