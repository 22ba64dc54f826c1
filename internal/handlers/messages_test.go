package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/autocare360/autocare-backend/internal/config"
	"github.com/autocare360/autocare-backend/internal/database"
	"github.com/autocare360/autocare-backend/internal/middleware"
	"github.com/autocare360/autocare-backend/internal/migrations"
	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/internal/realtime"
	"github.com/autocare360/autocare-backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB points database.DB at a fresh in-memory SQLite database.
func SetupTestDB(t *testing.T) {
	config.AppConfig = &config.Config{JWTSecret: "test_secret_key_12345"}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, migrations.AutoMigrate(db))
	database.DB = db
	Hub = nil
	gin.SetMode(gin.TestMode)
}

func createUser(t *testing.T, name string, role models.Role) *models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	u := &models.User{
		Name:     name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@autocare.test",
		Role:     role,
		Password: string(hash),
	}
	require.NoError(t, database.DB.Create(u).Error)
	return u
}

// newContext builds a request context already authenticated as user.
func newContext(method, target string, body interface{}, user *models.User) (*gin.Context, *httptest.ResponseRecorder) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(method, target, &buf)
	c.Request.Header.Set("Content-Type", "application/json")
	if user != nil {
		c.Set(middleware.ContextUserID, user.ID)
		c.Set(middleware.ContextUser, user)
	}
	return c, w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestCreateMessage(t *testing.T) {
	SetupTestDB(t)
	carla := createUser(t, "Carla Mendes", models.RoleCustomer)

	c, w := newContext("POST", "/api/messages", gin.H{"receiverId": nil, "body": "my brakes squeal"}, carla)
	CreateMessage(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Message models.Message `json:"message"`
	}
	decode(t, w, &resp)
	assert.NotZero(t, resp.Message.ID)
	assert.Nil(t, resp.Message.ReceiverID)
	assert.Equal(t, "Carla Mendes", resp.Message.SenderName)
	assert.Equal(t, models.RoleCustomer, resp.Message.SenderRole)
}

func TestCreateMessage_Rejections(t *testing.T) {
	SetupTestDB(t)
	alice := createUser(t, "Alice Perera", models.RoleEmployee)
	carla := createUser(t, "Carla Mendes", models.RoleCustomer)
	dinesh := createUser(t, "Dinesh Kumar", models.RoleCustomer)

	cases := []struct {
		name string
		user *models.User
		body interface{}
		code int
	}{
		{"empty", carla, gin.H{"body": "  "}, http.StatusBadRequest},
		{"staff broadcast", alice, gin.H{"body": "hello all"}, http.StatusBadRequest},
		{"customer to customer", carla, gin.H{"receiverId": dinesh.ID, "body": "hi"}, http.StatusForbidden},
		{"unknown receiver", alice, gin.H{"receiverId": 9999, "body": "hi"}, http.StatusNotFound},
		{"malformed", carla, "not an object", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, w := newContext("POST", "/api/messages", tc.body, tc.user)
			CreateMessage(c)
			assert.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}
}

func TestThreadEndpoints(t *testing.T) {
	SetupTestDB(t)
	alice := createUser(t, "Alice Perera", models.RoleEmployee)
	bob := createUser(t, "Bob Silva", models.RoleEmployee)
	carla := createUser(t, "Carla Mendes", models.RoleCustomer)

	for _, m := range []models.Message{
		{SenderID: carla.ID, SenderName: carla.Name, SenderRole: carla.Role, Body: "hello?"},
		{SenderID: alice.ID, ReceiverID: &carla.ID, SenderName: alice.Name, SenderRole: alice.Role, Body: "hi"},
		{SenderID: bob.ID, ReceiverID: &carla.ID, SenderName: bob.Name, SenderRole: bob.Role, Body: "follow-up"},
	} {
		m := m
		require.NoError(t, database.DB.Create(&m).Error)
	}

	type list struct {
		Messages []models.Message `json:"messages"`
	}

	c, w := newContext("GET", "/api/messages/mine", nil, carla)
	GetMyThread(c)
	require.Equal(t, http.StatusOK, w.Code)
	var mine list
	decode(t, w, &mine)
	assert.Len(t, mine.Messages, 3)

	c, w = newContext("GET", "/api/messages/mine", nil, alice)
	GetMyThread(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newContext("GET", fmt.Sprintf("/api/messages/customers/%d", carla.ID), nil, bob)
	c.Params = gin.Params{{Key: "customerId", Value: fmt.Sprint(carla.ID)}}
	GetCustomerThread(c)
	require.Equal(t, http.StatusOK, w.Code)
	var pool list
	decode(t, w, &pool)
	assert.Len(t, pool.Messages, 3)

	c, w = newContext("GET", fmt.Sprintf("/api/messages/customers/%d", alice.ID), nil, bob)
	c.Params = gin.Params{{Key: "customerId", Value: fmt.Sprint(alice.ID)}}
	GetCustomerThread(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newContext("GET", fmt.Sprintf("/api/messages?userId=%d", alice.ID), nil, carla)
	GetMessages(c)
	require.Equal(t, http.StatusOK, w.Code)
	var pair list
	decode(t, w, &pair)
	require.Len(t, pair.Messages, 1)
	assert.Equal(t, "hi", pair.Messages[0].Body)

	c, w = newContext("GET", "/api/messages", nil, carla)
	GetMessages(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConversationsAndMarkRead(t *testing.T) {
	SetupTestDB(t)
	alice := createUser(t, "Alice Perera", models.RoleEmployee)
	carla := createUser(t, "Carla Mendes", models.RoleCustomer)
	for _, body := range []string{"one", "two"} {
		m := models.Message{SenderID: carla.ID, SenderName: carla.Name, SenderRole: carla.Role, Body: body}
		require.NoError(t, database.DB.Create(&m).Error)
	}

	c, w := newContext("GET", "/api/conversations", nil, alice)
	GetConversations(c)
	require.Equal(t, http.StatusOK, w.Code)
	var convs struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	decode(t, w, &convs)
	require.Len(t, convs.Conversations, 1)
	assert.Equal(t, int64(2), convs.Conversations[0].UnreadCount)
	assert.Equal(t, "two", convs.Conversations[0].LastMessage)

	c, w = newContext("POST", "/api/messages/read/x", nil, alice)
	c.Params = gin.Params{{Key: "counterpartId", Value: fmt.Sprint(carla.ID)}}
	MarkRead(c)
	require.Equal(t, http.StatusOK, w.Code)
	var marked struct {
		MarkedRead int64 `json:"markedRead"`
	}
	decode(t, w, &marked)
	assert.Equal(t, int64(2), marked.MarkedRead)

	c, w = newContext("GET", "/api/messages/unread-count", nil, alice)
	GetUnreadCount(c)
	var count struct {
		Count int64 `json:"count"`
	}
	decode(t, w, &count)
	assert.Zero(t, count.Count)
}

func TestMarkRead_PoolParam(t *testing.T) {
	SetupTestDB(t)
	alice := createUser(t, "Alice Perera", models.RoleEmployee)
	carla := createUser(t, "Carla Mendes", models.RoleCustomer)
	m := models.Message{SenderID: alice.ID, ReceiverID: &carla.ID, SenderName: alice.Name, SenderRole: alice.Role, Body: "ready"}
	require.NoError(t, database.DB.Create(&m).Error)

	for _, raw := range []string{"pool", "0"} {
		c, w := newContext("POST", "/api/messages/read/"+raw, nil, carla)
		c.Params = gin.Params{{Key: "counterpartId", Value: raw}}
		MarkRead(c)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	c, w := newContext("POST", "/api/messages/read/abc", nil, carla)
	c.Params = gin.Params{{Key: "counterpartId", Value: "abc"}}
	MarkRead(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var stored models.Message
	require.NoError(t, database.DB.First(&stored, m.ID).Error)
	assert.True(t, stored.IsRead)
}

func TestLoginAndMe(t *testing.T) {
	SetupTestDB(t)
	carla := createUser(t, "Carla Mendes", models.RoleCustomer)

	c, w := newContext("POST", "/api/auth/login", gin.H{"email": "Carla.Mendes@autocare.test", "password": "password123"}, nil)
	Login(c)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	decode(t, w, &resp)
	assert.Equal(t, carla.ID, resp.User.ID)
	assert.NotContains(t, w.Body.String(), "password")

	claims, err := utils.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, carla.ID, claims.UserID)
	assert.Equal(t, string(models.RoleCustomer), claims.Role)

	// The token works through the auth middleware.
	r := gin.New()
	r.GET("/me", middleware.AuthMiddleware(), Me)
	w = httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newContext("POST", "/api/auth/login", gin.H{"email": "carla.mendes@autocare.test", "password": "wrong"}, nil)
	Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPushHandler_Rejections(t *testing.T) {
	SetupTestDB(t)

	c, w := newContext("GET", "/api/ws", nil, nil)
	PushHandler(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	Hub = realtime.NewHub(nil, "", zerolog.Nop())
	defer func() { Hub = nil }()

	c, w = newContext("GET", "/api/ws", nil, nil)
	PushHandler(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newContext("GET", "/api/ws?token=garbage", nil, nil)
	PushHandler(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
