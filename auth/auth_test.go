package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestNoAuth(t *testing.T) {
	for _, token := range []string{"any-token", ""} {
		identity, err := NoAuth().Authenticate(context.Background(), token)
		if err != nil {
			t.Errorf("NoAuth should never return error, got: %v", err)
		}
		if identity != "anonymous" {
			t.Errorf("Expected identity 'anonymous', got '%s'", identity)
		}
	}
}

func TestBearerAuth(t *testing.T) {
	auth := BearerAuth(func(token string) (string, error) {
		if token == "valid-token" {
			return "user123", nil
		}
		return "", errors.New("invalid token")
	})

	ctx := context.Background()
	identity, err := auth.Authenticate(ctx, "valid-token")
	if err != nil || identity != "user123" {
		t.Errorf("Authenticate(valid) = %q, %v", identity, err)
	}

	identity, err = auth.Authenticate(ctx, "invalid-token")
	if err == nil {
		t.Error("Expected error for invalid token, got nil")
	}
	if identity != "" {
		t.Errorf("Expected empty identity for invalid token, got '%s'", identity)
	}
}

func TestBearerAuthErrorPropagation(t *testing.T) {
	customError := errors.New("custom validation error")

	auth := BearerAuth(func(token string) (string, error) {
		return "", customError
	})

	if _, err := auth.Authenticate(context.Background(), "token"); err != customError {
		t.Errorf("Expected custom error, got: %v", err)
	}
}

func TestStaticTokens(t *testing.T) {
	tokens := map[string]string{
		"s3cret":  "duckdb",
		"monitor": "grafana",
	}
	auth := StaticTokens(tokens)

	// Later changes to the map are not observed.
	tokens["late"] = "intruder"

	tests := []struct {
		token    string
		identity string
		wantErr  bool
	}{
		{"s3cret", "duckdb", false},
		{"monitor", "grafana", false},
		{"late", "", true},
		{"s3cre", "", true},
		{"s3cret ", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		identity, err := auth.Authenticate(context.Background(), tt.token)
		if (err != nil) != tt.wantErr {
			t.Errorf("Authenticate(%q) error = %v, wantErr %v", tt.token, err, tt.wantErr)
		}
		if identity != tt.identity {
			t.Errorf("Authenticate(%q) identity = %q, want %q", tt.token, identity, tt.identity)
		}
	}
}

func TestStaticTokensEmpty(t *testing.T) {
	if _, err := StaticTokens(nil).Authenticate(context.Background(), "x"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("error = %v, want ErrUnauthenticated", err)
	}
}

func TestStaticTokensConcurrency(t *testing.T) {
	auth := StaticTokens(map[string]string{"valid": "user"})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		token := "valid"
		if i%2 == 0 {
			token = "invalid"
		}
		go func(token string) {
			defer wg.Done()
			_, err := auth.Authenticate(ctx, token)
			if token == "valid" && err != nil {
				errs <- err
			}
		}(token)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent auth error: %v", err)
	}
}

func TestTokenFromAuthorizationHeader(t *testing.T) {
	tests := []struct {
		header  string
		token   string
		wantErr error
	}{
		{"Bearer abc", "abc", nil},
		{"Bearer ", "", ErrTokenIsEmpty},
		{"Basic abc", "", ErrInvalidAuthHeader},
		{"", "", ErrInvalidAuthHeader},
		{"bearer abc", "", ErrInvalidAuthHeader},
	}
	for _, tt := range tests {
		token, err := TokenFromAuthorizationHeader(tt.header)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("TokenFromAuthorizationHeader(%q) error = %v, want %v", tt.header, err, tt.wantErr)
		}
		if token != tt.token {
			t.Errorf("TokenFromAuthorizationHeader(%q) = %q, want %q", tt.header, token, tt.token)
		}
	}
}

func TestValidateToken(t *testing.T) {
	auth := StaticTokens(map[string]string{"s3cret": "duckdb"})
	ctx := context.Background()

	got, err := ValidateToken(ctx, "s3cret", auth)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if id := IdentityFromContext(got); id != "duckdb" {
		t.Errorf("identity = %q, want duckdb", id)
	}

	if _, err := ValidateToken(ctx, "nope", auth); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("error = %v, want ErrUnauthenticated", err)
	}
	if _, err := ValidateToken(ctx, "", auth); !errors.Is(err, ErrTokenIsEmpty) {
		t.Errorf("error = %v, want ErrTokenIsEmpty", err)
	}
	if id := IdentityFromContext(ctx); id != "" {
		t.Errorf("identity on bare context = %q", id)
	}
}
