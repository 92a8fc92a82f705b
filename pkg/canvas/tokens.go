package canvas

import "github.com/google/uuid"

// TokenRegistry records the access tokens issued for one canvas. Tokens never expire here;
// cookie max-age is the only lifetime they get.
type TokenRegistry struct {
	tokens map[string]struct{}
}

func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{tokens: make(map[string]struct{})}
}

// Issue records and returns a fresh random (v4) token.
func (r *TokenRegistry) Issue() string {
	token := uuid.NewString()
	r.tokens[token] = struct{}{}
	return token
}

func (r *TokenRegistry) IsValid(token string) bool {
	if token == "" {
		return false
	}
	_, ok := r.tokens[token]
	return ok
}

func (r *TokenRegistry) Len() int {
	return len(r.tokens)
}
