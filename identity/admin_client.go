package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-provision/core"
)

const maxErrorBodyBytes = 8 << 10

// HTTPDoer is the transport seam so tests can stub the auth service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AdminClient implements core.IdentityProvisioner against the GoTrue admin
// API. Requests authenticate with the service-role key on both the apikey
// and Authorization headers.
type AdminClient struct {
	BaseURL    string
	ServiceKey string
	HTTPClient HTTPDoer
	Logger     core.Logger
}

type AdminClientConfig struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
	Logger     core.Logger
}

func NewAdminClient(cfg AdminClientConfig) (*AdminClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, goerrors.New("identity: base url is required", goerrors.CategoryBadInput).
			WithTextCode(core.ErrorBadInput)
	}
	serviceKey := strings.TrimSpace(cfg.ServiceKey)
	if serviceKey == "" {
		return nil, goerrors.New("identity: service key is required", goerrors.CategoryBadInput).
			WithTextCode(core.ErrorBadInput)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AdminClient{
		BaseURL:    baseURL,
		ServiceKey: serviceKey,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     cfg.Logger,
	}, nil
}

type adminCreateUserRequest struct {
	Email        string         `json:"email"`
	EmailConfirm bool           `json:"email_confirm"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

type adminUserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type otpRequest struct {
	Email      string `json:"email"`
	CreateUser bool   `json:"create_user"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

type authErrorResponse struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"msg"`
	Error     string `json:"error"`
}

func (r authErrorResponse) message() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}

// CreateUser provisions a confirmed account. A conflict response from the
// service is returned as *core.UserExistsError so callers can treat it as a
// successful no-op.
func (c *AdminClient) CreateUser(ctx context.Context, in core.CreateUserInput) (core.CreatedUser, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return core.CreatedUser{}, goerrors.New("identity: email is required", goerrors.CategoryBadInput).
			WithTextCode(core.ErrorBadInput)
	}

	payload := adminCreateUserRequest{
		Email:        email,
		EmailConfirm: in.Confirmed,
	}
	metadata := map[string]any{}
	if first := strings.TrimSpace(in.FirstName); first != "" {
		metadata["first_name"] = first
	}
	if full := strings.TrimSpace(in.FullName); full != "" {
		metadata["full_name"] = full
	}
	if len(metadata) > 0 {
		payload.UserMetadata = metadata
	}

	body, status, err := c.post(ctx, "/auth/v1/admin/users", payload)
	if err != nil {
		return core.CreatedUser{}, err
	}

	if status >= http.StatusBadRequest {
		authErr := decodeAuthError(body)
		if isAlreadyRegistered(status, authErr) {
			return core.CreatedUser{}, &core.UserExistsError{
				UserID: extractUserID(body),
				Cause:  fmt.Errorf("auth service: %s", authErr.message()),
			}
		}
		return core.CreatedUser{}, c.statusError("create user", status, authErr)
	}

	var user adminUserResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return core.CreatedUser{}, goerrors.Wrap(err, goerrors.CategoryExternal, "identity: decode create user response").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ErrorIdentityFailed)
	}
	return core.CreatedUser{ID: user.ID, Email: user.Email}, nil
}

// SendMagicLink requests a passwordless sign-in email. The auth service
// creates the account on first use when CreateUser is set.
func (c *AdminClient) SendMagicLink(ctx context.Context, in core.MagicLinkInput) error {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return goerrors.New("identity: email is required", goerrors.CategoryBadInput).
			WithTextCode(core.ErrorBadInput)
	}

	body, status, err := c.post(ctx, "/auth/v1/otp", otpRequest{
		Email:      email,
		CreateUser: in.CreateUser,
		RedirectTo: strings.TrimSpace(in.RedirectTo),
	})
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return c.statusError("send magic link", status, decodeAuthError(body))
	}
	return nil
}

func (c *AdminClient) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	if c == nil || c.HTTPClient == nil {
		return nil, 0, goerrors.New("identity: admin client is not configured", goerrors.CategoryInternal).
			WithTextCode(core.ErrorInternal)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, goerrors.Wrap(err, goerrors.CategoryInternal, "identity: encode request").
			WithTextCode(core.ErrorInternal)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, 0, goerrors.Wrap(err, goerrors.CategoryInternal, "identity: build request").
			WithTextCode(core.ErrorInternal)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+c.ServiceKey)

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, goerrors.Wrap(err, goerrors.CategoryExternal, "identity: auth service unreachable").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ErrorIdentityFailed)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
	if err != nil {
		return nil, res.StatusCode, goerrors.Wrap(err, goerrors.CategoryExternal, "identity: read auth response").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ErrorIdentityFailed)
	}
	return body, res.StatusCode, nil
}

func (c *AdminClient) statusError(operation string, status int, authErr authErrorResponse) error {
	message := authErr.message()
	if message == "" {
		message = http.StatusText(status)
	}
	if c != nil && c.Logger != nil {
		c.Logger.Error("auth service call failed",
			"operation", operation,
			"upstream_status", status,
			"upstream_message", message,
		)
	}
	return goerrors.New(
		fmt.Sprintf("identity: %s failed: %s", operation, message),
		goerrors.CategoryExternal,
	).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ErrorIdentityFailed).
		WithMetadata(map[string]any{"upstream_status": status})
}

func decodeAuthError(body []byte) authErrorResponse {
	var authErr authErrorResponse
	_ = json.Unmarshal(body, &authErr)
	return authErr
}

// isAlreadyRegistered matches the conflict shapes GoTrue has shipped: a 422
// with an email_exists error code, a literal "already registered" message,
// or a plain 409.
func isAlreadyRegistered(status int, authErr authErrorResponse) bool {
	if status == http.StatusConflict {
		return true
	}
	if status != http.StatusUnprocessableEntity && status != http.StatusBadRequest {
		return false
	}
	if strings.EqualFold(authErr.ErrorCode, "email_exists") || strings.EqualFold(authErr.ErrorCode, "user_already_exists") {
		return true
	}
	return strings.Contains(strings.ToLower(authErr.message()), "already registered") ||
		strings.Contains(strings.ToLower(authErr.message()), "already been registered")
}

// extractUserID pulls the user id when the conflict response echoes one.
func extractUserID(body []byte) string {
	var payload struct {
		ID   string `json:"id"`
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.ID != "" {
		return payload.ID
	}
	return payload.User.ID
}
