package integration

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/autocare360/autocare-backend/internal/config"
	"github.com/autocare360/autocare-backend/internal/database"
	"github.com/autocare360/autocare-backend/internal/handlers"
	"github.com/autocare360/autocare-backend/internal/messaging"
	"github.com/autocare360/autocare-backend/internal/middleware"
	"github.com/autocare360/autocare-backend/internal/migrations"
	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/internal/realtime"
	"github.com/autocare360/autocare-backend/internal/routes"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testPassword = "password123"

// testEnv is a running API server backed by in-memory SQLite with local
// push delivery.
type testEnv struct {
	t      *testing.T
	server *httptest.Server
	hub    *realtime.Hub
	cfg    messaging.ClientConfig
}

func setupEnv(t *testing.T) *testEnv {
	config.AppConfig = &config.Config{
		Env:            "test",
		JWTSecret:      "test_secret_key_12345",
		SendRateLimit:  100,
		SendRateWindow: time.Minute,
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, migrations.AutoMigrate(db))
	database.DB = db

	hub := realtime.NewHub(nil, "", zerolog.Nop())
	handlers.Hub = hub

	// Clients here all share one IP.
	middleware.GeneralLimiter = middleware.NewIPRateLimiter(rate.Inf, 0)
	middleware.AuthLimiter = middleware.NewIPRateLimiter(rate.Inf, 0)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	routes.Setup(r)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		handlers.Hub = nil
	})

	return &testEnv{
		t:      t,
		server: srv,
		hub:    hub,
		cfg: messaging.ClientConfig{
			APIBaseURL:          srv.URL + "/api",
			PushURL:             "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws",
			RequestTimeout:      5 * time.Second,
			ReconnectInitial:    20 * time.Millisecond,
			ReconnectMax:        200 * time.Millisecond,
			DirectoryRefreshGap: 10 * time.Millisecond,
		},
	}
}

func (e *testEnv) createUser(name string, role models.Role) *models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(e.t, err)
	u := &models.User{
		Name:     name,
		Email:    strings.ToLower(strings.Fields(name)[0]) + "@autocare.test",
		Role:     role,
		Password: string(hash),
	}
	require.NoError(e.t, database.DB.Create(u).Error)
	return u
}

// login signs u in through the API and returns a client core for the session.
func (e *testEnv) login(u *models.User) *messaging.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := messaging.Login(ctx, e.cfg.APIBaseURL, u.Email, testPassword, e.cfg.RequestTimeout)
	require.NoError(e.t, err)
	require.Equal(e.t, u.ID, sess.UserID)

	c := messaging.NewClient(e.cfg, sess, zerolog.Nop())
	e.t.Cleanup(c.Close)
	return c
}

// waitReady blocks until the client's push subscription is live on the server.
func (e *testEnv) waitReady(c *messaging.Client) {
	require.Eventually(e.t, func() bool {
		return c.Push.Ready(c.Session.UserID)
	}, 3*time.Second, 10*time.Millisecond)
}
