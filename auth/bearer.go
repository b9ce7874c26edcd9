package auth

import (
	"context"
	"crypto/subtle"
)

// bearerAuthenticator wraps a user-provided validation function.
type bearerAuthenticator struct {
	validateFunc func(token string) (identity string, err error)
}

// BearerAuth creates an Authenticator from a validation function.
//
// Example:
//
//	auth := BearerAuth(func(token string) (string, error) {
//	    user, err := validateWithMyBackend(token)
//	    if err != nil {
//	        return "", auth.ErrUnauthenticated
//	    }
//	    return user.ID, nil
//	})
func BearerAuth(validateFunc func(token string) (identity string, err error)) Authenticator {
	return &bearerAuthenticator{
		validateFunc: validateFunc,
	}
}

func (b *bearerAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	return b.validateFunc(token)
}

// StaticTokens returns an Authenticator accepting the keys of tokens and
// reporting the mapped value as identity. The map is copied.
func StaticTokens(tokens map[string]string) Authenticator {
	entries := make([]staticToken, 0, len(tokens))
	for token, identity := range tokens {
		entries = append(entries, staticToken{token: []byte(token), identity: identity})
	}
	return BearerAuth(func(token string) (string, error) {
		given := []byte(token)
		identity, found := "", false
		// Compare against every entry so timing does not reveal a match.
		for _, e := range entries {
			if subtle.ConstantTimeCompare(e.token, given) == 1 {
				identity, found = e.identity, true
			}
		}
		if !found {
			return "", ErrUnauthenticated
		}
		return identity, nil
	})
}

type staticToken struct {
	token    []byte
	identity string
}
