package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/pkg/errors"
)

// StoreClient implements MessageStore against the REST backend.
type StoreClient struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ MessageStore = (*StoreClient)(nil)

// NewStoreClient builds a client for baseURL (e.g. http://host/api)
// authenticated as sess.
func NewStoreClient(baseURL string, sess Session, timeout time.Duration) *StoreClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StoreClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   sess.Token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *StoreClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return errors.NewAppError(resp.StatusCode, apiErr.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

type messageEnvelope struct {
	Message *models.Message `json:"message"`
}

type messagesEnvelope struct {
	Messages []models.Message `json:"messages"`
}

func (c *StoreClient) Create(ctx context.Context, receiverID *uint, body string) (*models.Message, error) {
	req := struct {
		ReceiverID *uint  `json:"receiverId"`
		Body       string `json:"body"`
	}{receiverID, body}

	var resp messageEnvelope
	if err := c.do(ctx, http.MethodPost, "/messages", req, &resp); err != nil {
		return nil, err
	}
	if resp.Message == nil {
		return nil, fmt.Errorf("create message: empty response")
	}
	return resp.Message, nil
}

func (c *StoreClient) ListWith(ctx context.Context, counterpartID uint) ([]models.Message, error) {
	q := url.Values{"userId": {strconv.FormatUint(uint64(counterpartID), 10)}}
	var resp messagesEnvelope
	err := c.do(ctx, http.MethodGet, "/messages?"+q.Encode(), nil, &resp)
	return resp.Messages, err
}

func (c *StoreClient) ListMine(ctx context.Context) ([]models.Message, error) {
	var resp messagesEnvelope
	err := c.do(ctx, http.MethodGet, "/messages/mine", nil, &resp)
	return resp.Messages, err
}

func (c *StoreClient) ListCustomer(ctx context.Context, customerID uint) ([]models.Message, error) {
	var resp messagesEnvelope
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/messages/customers/%d", customerID), nil, &resp)
	return resp.Messages, err
}

func (c *StoreClient) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	err := c.do(ctx, http.MethodGet, "/conversations", nil, &resp)
	return resp.Conversations, err
}

func (c *StoreClient) MarkRead(ctx context.Context, counterpartID uint) (int64, error) {
	path := "/messages/read/pool"
	if counterpartID != models.PoolCounterpart {
		path = fmt.Sprintf("/messages/read/%d", counterpartID)
	}
	var resp struct {
		MarkedRead int64 `json:"markedRead"`
	}
	err := c.do(ctx, http.MethodPost, path, nil, &resp)
	return resp.MarkedRead, err
}

// UnreadCount is the caller's badge total.
func (c *StoreClient) UnreadCount(ctx context.Context) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	err := c.do(ctx, http.MethodGet, "/messages/unread-count", nil, &resp)
	return resp.Count, err
}

// Login exchanges credentials for a Session.
func Login(ctx context.Context, baseURL, email, password string, timeout time.Duration) (Session, error) {
	c := NewStoreClient(baseURL, Session{}, timeout)
	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", in, &resp); err != nil {
		return Session{}, err
	}
	return Session{UserID: resp.User.ID, Role: resp.User.Role, Token: resp.Token}, nil
}

// ResolveSession looks up the identity behind an existing token.
func ResolveSession(ctx context.Context, baseURL, token string, timeout time.Duration) (Session, error) {
	c := NewStoreClient(baseURL, Session{Token: token}, timeout)
	var resp struct {
		User models.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &resp); err != nil {
		return Session{}, err
	}
	return Session{UserID: resp.User.ID, Role: resp.User.Role, Token: token}, nil
}
