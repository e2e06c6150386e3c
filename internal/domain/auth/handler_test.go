package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/liwaywai/lending-api/internal/domain/user"
	"github.com/liwaywai/lending-api/internal/pkg/jwt"
	"github.com/liwaywai/lending-api/internal/pkg/password"
)

type fakeUserRepo struct {
	byEmail map[string]*user.User
}

func (f *fakeUserRepo) Create(context.Context, *sqlx.Tx, *user.User) error { return nil }
func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}
func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	return f.byEmail[email], nil
}
func (f *fakeUserRepo) CountByRole(context.Context, user.Role) (int, error) { return 0, nil }

func newLoginHandler(t *testing.T, users ...*user.User) (*Handler, *jwt.Service) {
	t.Helper()
	repo := &fakeUserRepo{byEmail: map[string]*user.User{}}
	for _, u := range users {
		repo.byEmail[u.Email] = u
	}
	jwtService := jwt.NewService("secret", time.Hour)
	svc := NewService(nil, repo, nil, nil, nil, nil, jwtService)
	return NewHandler(svc), jwtService
}

func testUser(t *testing.T, email, plain string, active bool) *user.User {
	t.Helper()
	hash, err := password.HashWithCost(plain, bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return &user.User{ID: uuid.New(), Email: email, PasswordHash: hash, Role: user.RoleBorrower, IsActive: active}
}

func post(h http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestLoginIssuesAccessToken(t *testing.T) {
	u := testUser(t, "juan@example.com", "secret123", true)
	h, jwtService := newLoginHandler(t, u)

	rr := post(h.Login, LoginRequest{Email: "  Juan@Example.com ", Password: "secret123"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	var out struct {
		Data AuthResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	claims, err := jwtService.ValidateAccessToken(out.Data.AccessToken)
	if err != nil {
		t.Fatalf("token does not validate: %v", err)
	}
	if claims.UserID != u.ID || claims.Role != "borrower" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if out.Data.ExpiresIn != 3600 {
		t.Fatalf("expected expires_in 3600, got %d", out.Data.ExpiresIn)
	}
	if bytes.Contains(rr.Body.Bytes(), []byte("password_hash")) {
		t.Fatal("password hash leaked into response")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h, _ := newLoginHandler(t, testUser(t, "juan@example.com", "secret123", true))

	cases := []LoginRequest{
		{Email: "juan@example.com", Password: "wrong-pass"},
		{Email: "nobody@example.com", Password: "secret123"},
	}
	for _, c := range cases {
		rr := post(h.Login, c)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", c.Email, rr.Code)
		}
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	h, _ := newLoginHandler(t, testUser(t, "off@example.com", "secret123", false))

	rr := post(h.Login, LoginRequest{Email: "off@example.com", Password: "secret123"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestSignupValidation(t *testing.T) {
	h, _ := newLoginHandler(t)

	rr := post(h.Signup, SignupRequest{Email: "not-an-email", Password: "123", Name: "J", City: "Manila", Occupation: "Vendor", Gender: "robot"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	var out struct {
		Error struct {
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, field := range []string{"email", "password", "name", "gender"} {
		if _, ok := out.Error.Details[field]; !ok {
			t.Errorf("expected validation error for %s, got %v", field, out.Error.Details)
		}
	}
	if _, ok := out.Error.Details["city"]; ok {
		t.Errorf("city is valid, got error")
	}
}
