// Package roomapi is the HTTP client for the booking authority.
package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"roombook/internal/availability"
	"roombook/internal/booking"
	"roombook/internal/model"
	"roombook/internal/session"
)

// Client calls the authority on behalf of a session.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Session
	loc        *time.Location
	logger     zerolog.Logger

	redis    *redis.Client
	local    *gocache.Cache
	cacheTTL time.Duration
}

// NewClient constructs a client for baseURL (e.g. "http://host:8000").
func NewClient(baseURL string, sess *session.Session, loc *time.Location, logger zerolog.Logger) *Client {
	if sess == nil {
		sess = session.New("", "")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		session:    sess,
		loc:        loc,
		logger:     logger.With().Str("component", "roomapi").Logger(),
	}
}

// UseRedisCache caches catalog GETs (floors, rooms) in Redis.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// UseLocalCache caches catalog GETs in process memory. Redis, when
// configured, takes precedence.
func (c *Client) UseLocalCache(ttl time.Duration) {
	c.local = gocache.New(ttl, 2*ttl)
	c.cacheTTL = ttl
}

// Session returns the session used for requests.
func (c *Client) Session() *session.Session {
	return c.session
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates and stores the tokens in the session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var tokens tokenPair
	if err := c.send(ctx, http.MethodPost, "/api/auth/login/", credentials{username, password}, &tokens, false); err != nil {
		return err
	}
	c.session.SetTokens(tokens.Access, tokens.Refresh)
	return nil
}

// RefreshToken implements session.Refresher.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (string, error) {
	var tokens tokenPair
	if err := c.send(ctx, http.MethodPost, "/api/auth/refresh/", map[string]string{"refresh": refresh}, &tokens, false); err != nil {
		return "", err
	}
	return tokens.Access, nil
}

// Registration is the body of a sign-up request.
type Registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
	// TelegramID receives notifications once set.
	TelegramID int64 `json:"telegram_id,omitempty"`
}

// Register creates an account that stays pending until an admin approves it.
func (c *Client) Register(ctx context.Context, reg Registration) (*model.User, error) {
	var u model.User
	if err := c.send(ctx, http.MethodPost, "/api/auth/register/", reg, &u, false); err != nil {
		return nil, err
	}
	return &u, nil
}

// CurrentUser fetches the session's user and caches it on the session.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.get(ctx, "/api/auth/user/", &u); err != nil {
		return nil, err
	}
	c.session.SetUser(&u)
	return &u, nil
}

// Floors lists all floors.
func (c *Client) Floors(ctx context.Context) ([]model.Floor, error) {
	var floors []model.Floor
	if c.readCache(ctx, "floors", &floors) {
		return floors, nil
	}
	if err := c.get(ctx, "/api/floors/", &floors); err != nil {
		return nil, err
	}
	c.writeCache(ctx, "floors", floors)
	return floors, nil
}

// Rooms lists rooms, optionally only those on floorID.
func (c *Client) Rooms(ctx context.Context, floorID *int64) ([]model.Room, error) {
	path := "/api/rooms/"
	cacheKey := "rooms"
	if floorID != nil {
		path += "?floor=" + strconv.FormatInt(*floorID, 10)
		cacheKey = fmt.Sprintf("rooms:%d", *floorID)
	}

	var rooms []model.Room
	if c.readCache(ctx, cacheKey, &rooms) {
		return rooms, nil
	}
	if err := c.get(ctx, path, &rooms); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, rooms)
	return rooms, nil
}

// CheckAvailability asks the authority to compute availability.
func (c *Client) CheckAvailability(ctx context.Context, date time.Time, roomIDs []int64) (availability.Result, error) {
	var res availability.Result
	err := c.get(ctx, "/api/check_availability/?"+dayQuery(date, roomIDs).Encode(), &res)
	return res, err
}

// Reservations returns reservations on roomIDs touching date. It implements
// booking.Authority.
func (c *Client) Reservations(ctx context.Context, date time.Time, roomIDs []int64) ([]model.Reservation, error) {
	var out []model.Reservation
	if err := c.get(ctx, "/api/bookings/?"+dayQuery(date, roomIDs).Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateReservation submits a new reservation.
func (c *Client) CreateReservation(ctx context.Context, req booking.Request) (*model.Reservation, error) {
	var out model.Reservation
	if err := c.send(ctx, http.MethodPost, "/api/create_booking/", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateReservation changes the rooms or interval of reservation id.
func (c *Client) UpdateReservation(ctx context.Context, id int64, req booking.Request) (*model.Reservation, error) {
	var out model.Reservation
	if err := c.send(ctx, http.MethodPut, bookingPath(id), req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReservation fetches one reservation.
func (c *Client) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	var out model.Reservation
	if err := c.get(ctx, bookingPath(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelReservation soft-cancels reservation id.
func (c *Client) CancelReservation(ctx context.Context, id int64) error {
	return c.send(ctx, http.MethodDelete, bookingPath(id), nil, nil, true)
}

// MyReservations lists the session user's reservations.
func (c *Client) MyReservations(ctx context.Context) ([]model.Reservation, error) {
	var out []model.Reservation
	if err := c.get(ctx, "/api/bookings/my", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AllReservations lists every reservation for admins, own ones otherwise.
func (c *Client) AllReservations(ctx context.Context) ([]model.Reservation, error) {
	var out []model.Reservation
	if err := c.get(ctx, "/api/bookings/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetStatus changes the status of a reservation (admin).
func (c *Client) SetStatus(ctx context.Context, id int64, status model.Status) (*model.Reservation, error) {
	var out model.Reservation
	path := fmt.Sprintf("/api/admin/bookings/%d/status/", id)
	if err := c.send(ctx, http.MethodPost, path, map[string]string{"status": string(status)}, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAll removes every reservation (admin) and returns how many.
func (c *Client) DeleteAll(ctx context.Context) (int64, error) {
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.send(ctx, http.MethodDelete, "/api/admin/bookings/", nil, &out, true); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// PendingUsers lists accounts awaiting approval (admin).
func (c *Client) PendingUsers(ctx context.Context) ([]model.User, error) {
	var out []model.User
	if err := c.get(ctx, "/api/admin/pending-users/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveUser approves or denies a pending account (admin). role is only
// applied on approval and may be empty.
func (c *Client) ApproveUser(ctx context.Context, id int64, approve bool, role model.Role) error {
	body := map[string]string{"action": "deny"}
	if approve {
		body["action"] = "approve"
		if role != "" {
			body["role"] = string(role)
		}
	}
	return c.send(ctx, http.MethodPost, fmt.Sprintf("/api/admin/approve-user/%d/", id), body, nil, true)
}

// HealthCheck checks the authority's liveness endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "health check", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: "health check", Status: resp.StatusCode, Err: errors.New("unhealthy")}
	}
	return nil
}

func dayQuery(date time.Time, roomIDs []int64) url.Values {
	ids := make([]string, len(roomIDs))
	for i, id := range roomIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	q := url.Values{}
	q.Set("date", date.Format(booking.DateLayout))
	q.Set("room_ids", strings.Join(ids, ","))
	return q
}

func bookingPath(id int64) string {
	return fmt.Sprintf("/api/bookings/%d/", id)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.send(ctx, http.MethodGet, path, nil, out, true)
}

// send performs a request. Authenticated requests rejected with 401 are
// retried once after the session refreshes its token.
func (c *Client) send(ctx context.Context, method, path string, body, out any, auth bool) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = data
	}

	token := ""
	if auth {
		token = c.session.Token()
	}
	status, data, err := c.do(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && auth {
		fresh, refreshErr := c.session.Refresh(ctx, c, token)
		if refreshErr != nil {
			c.logger.Debug().Err(refreshErr).Msg("token refresh failed")
			return &AuthorizationError{Status: status, Detail: detailOf(data)}
		}
		status, data, err = c.do(ctx, method, path, payload, fresh)
		if err != nil {
			return err
		}
	}

	return c.decode(method+" "+path, status, data, out)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	op := method + " " + path
	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, data, nil
}

func (c *Client) decode(op string, status int, data []byte, out any) error {
	switch {
	case status == http.StatusConflict:
		var conflict ConflictError
		if err := json.Unmarshal(data, &conflict); err != nil {
			return &TransportError{Op: op, Status: status, Err: err}
		}
		return &conflict
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthorizationError{Status: status, Detail: detailOf(data)}
	case status >= http.StatusInternalServerError:
		return &TransportError{Op: op, Status: status, Err: errors.New(detailOf(data))}
	case status >= http.StatusMultipleChoices:
		return &APIError{Status: status, Detail: detailOf(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, Status: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func detailOf(data []byte) string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return strings.TrimSpace(string(data))
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.cacheTTL <= 0 {
		return false
	}
	if c.redis != nil {
		val, err := c.redis.Get(ctx, cacheKey(key)).Result()
		if err != nil {
			return false
		}
		return json.Unmarshal([]byte(val), out) == nil
	}
	if c.local != nil {
		val, ok := c.local.Get(key)
		if !ok {
			return false
		}
		return json.Unmarshal(val.([]byte), out) == nil
	}
	return false
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if c.redis != nil {
		_ = c.redis.Set(ctx, cacheKey(key), data, c.cacheTTL).Err()
		return
	}
	if c.local != nil {
		c.local.Set(key, data, gocache.DefaultExpiration)
	}
}

func cacheKey(key string) string {
	return "roombook:" + key
}
