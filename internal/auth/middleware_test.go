package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reporttrack/internal/database/dbtest"
	"github.com/reporttrack/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(a *Authenticator) *gin.Engine {
	r := gin.New()
	api := r.Group("/api", a.Middleware())
	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": CurrentUser(c).Username})
	})
	api.GET("/admin", RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	api.POST("/approve", RequirePermission(models.PermApproveReports), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func call(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLoginAndMiddleware(t *testing.T) {
	ctx := context.Background()
	store := dbtest.New(t)
	user := &models.User{Username: "ana", Role: models.RolePreparer, Email: "ana@example.com", IsActive: true}
	require.NoError(t, user.SetPassword("s3cret"))
	require.NoError(t, store.CreateUser(ctx, user))

	a := New(store, "test-secret", time.Hour)

	_, _, err := a.Login(ctx, "ana", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = a.Login(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, got, err := a.Login(ctx, "ana", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	r := newRouter(a)
	w := call(r, "/api/me", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"username":"ana"}`, w.Body.String())

	assert.Equal(t, http.StatusForbidden, call(r, "/api/admin", token).Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "/api/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "/api/me", "garbage").Code)

	other := New(store, "another-secret", time.Hour)
	forged, err := other.GenerateToken(user)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(r, "/api/me", forged).Code)
}

func TestExpiredToken(t *testing.T) {
	store := dbtest.New(t)
	a := New(store, "test-secret", time.Minute)
	a.now = func() time.Time { return time.Now().Add(-time.Hour) }

	user := &models.User{Username: "ana"}
	user.ID = 1
	token, err := a.GenerateToken(user)
	require.NoError(t, err)
	_, err = a.ParseToken(token)
	assert.Error(t, err)
}

func TestRequirePermission(t *testing.T) {
	ctx := context.Background()
	store := dbtest.New(t)
	a := New(store, "test-secret", time.Hour)
	r := newRouter(a)

	tokens := map[models.Role]string{}
	for _, role := range []models.Role{models.RoleAdmin, models.RoleSupervisor, models.RolePreparer, models.RoleViewer} {
		user := &models.User{Username: string(role), Role: role, Email: string(role) + "@example.com", IsActive: true}
		require.NoError(t, store.CreateUser(ctx, user))
		token, err := a.GenerateToken(user)
		require.NoError(t, err)
		tokens[role] = token
	}

	approve := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/approve", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, approve(tokens[models.RoleAdmin]))
	assert.Equal(t, http.StatusNoContent, approve(tokens[models.RoleSupervisor]))
	assert.Equal(t, http.StatusForbidden, approve(tokens[models.RolePreparer]))
	assert.Equal(t, http.StatusForbidden, approve(tokens[models.RoleViewer]))
}
