package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/campusdesk/desk/internal/core"
	"github.com/campusdesk/desk/internal/types"
)

var (
	opLogin = operation{
		name:     "login",
		fallback: "로그인에 실패했습니다.",
		missing:  "서버에서 데이터를 반환하지 않았습니다.",
	}
	opSignup = operation{
		name:     "signup",
		fallback: "회원가입에 실패했습니다.",
		missing:  "회원 ID가 올바르게 반환되지 않았습니다.",
	}
	opLogout         = operation{name: "logout", fallback: "로그아웃에 실패했습니다."}
	opMe             = operation{name: "current user", fallback: "사용자 정보를 불러오는데 실패했습니다.", missing: "사용자 정보가 없습니다."}
	opChangePassword = operation{name: "change password", fallback: "비밀번호 변경에 실패했습니다."}
	opUpdateUser     = operation{name: "update user", fallback: "회원 정보 수정에 실패했습니다."}
)

// Login exchanges an email and password for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (types.Credentials, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return types.Credentials{}, invalid("email", "이메일을 입력해주세요.")
	}
	if password == "" {
		return types.Credentials{}, invalid("password", "비밀번호를 입력해주세요.")
	}

	var creds types.Credentials
	body := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, opLogin, request{method: http.MethodPost, path: "/api/auth/login", body: body, public: true}, &creds); err != nil {
		return types.Credentials{}, err
	}
	if creds.AccessToken == "" || creds.RefreshToken == "" {
		return types.Credentials{}, &APIError{Status: http.StatusOK, Message: "토큰이 올바르게 반환되지 않았습니다.", Op: opLogin.name}
	}
	return creds, nil
}

// SignupRequest is a new account.
type SignupRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	StudentNum int64  `json:"studentNum"`
}

// Validate checks required fields.
func (r SignupRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Email) == "":
		return invalid("email", "이메일을 입력해주세요.")
	case r.Password == "":
		return invalid("password", "비밀번호를 입력해주세요.")
	case strings.TrimSpace(r.Name) == "":
		return invalid("name", "이름을 입력해주세요.")
	case r.StudentNum <= 0:
		return invalid("studentNum", "학번을 입력해주세요.")
	}
	return nil
}

// Signup creates an account and returns its user id.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = core.NormalizeText(req.Name)

	var resp struct {
		UserID int64 `json:"userId"`
	}
	if err := c.doJSON(ctx, opSignup, request{method: http.MethodPost, path: "/api/auth/signup", body: req, public: true}, &resp); err != nil {
		return 0, err
	}
	if resp.UserID == 0 {
		return 0, &APIError{Status: http.StatusOK, Message: opSignup.missing, Op: opSignup.name}
	}
	return resp.UserID, nil
}

// Logout revokes the refresh token on the server.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	body := map[string]string{"refreshToken": refreshToken}
	return c.doJSON(ctx, opLogout, request{method: http.MethodPost, path: "/api/auth/logout", body: body, public: true}, nil)
}

// Me returns the server's profile of the current user.
func (c *Client) Me(ctx context.Context) (types.Profile, error) {
	var profile types.Profile
	if err := c.doJSON(ctx, opMe, request{method: http.MethodGet, path: "/api/users/me"}, &profile); err != nil {
		return types.Profile{}, err
	}
	return profile, nil
}

// ValidatePasswordChange checks a new password and its confirmation.
func ValidatePasswordChange(newPassword, confirm string) error {
	if newPassword == "" {
		return invalid("newPassword", "새 비밀번호를 입력해주세요.")
	}
	if newPassword != confirm {
		return invalid("confirm", "비밀번호가 일치하지 않습니다.")
	}
	return nil
}

// ChangePassword sets a new password for userID.
func (c *Client) ChangePassword(ctx context.Context, userID int64, newPassword, confirm string) error {
	if err := ValidatePasswordChange(newPassword, confirm); err != nil {
		return err
	}
	body := map[string]string{"newPassword": newPassword}
	path := fmt.Sprintf("/api/admin/password/%d", userID)
	return c.doJSON(ctx, opChangePassword, request{method: http.MethodPatch, path: path, body: body}, nil)
}

// UserInfo is the editable part of a profile.
type UserInfo struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	StudentNum int64  `json:"studentNum"`
}

// UpdateUserInfo saves the caller's own profile fields.
func (c *Client) UpdateUserInfo(ctx context.Context, userID int64, info UserInfo) error {
	info.Email = strings.TrimSpace(info.Email)
	info.Name = core.NormalizeText(info.Name)
	if info.Email == "" {
		return invalid("email", "이메일을 입력해주세요.")
	}
	if info.Name == "" {
		return invalid("name", "이름을 입력해주세요.")
	}
	path := fmt.Sprintf("/api/admin/%d", userID)
	return c.doJSON(ctx, opUpdateUser, request{method: http.MethodPatch, path: path, body: info}, nil)
}
