package captain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// TokenManager manages bearer tokens issued by /login
type TokenManager struct {
	tokens map[string]*LoginToken
	mu     sync.RWMutex
}

// LoginToken represents a session token bound to a user
type LoginToken struct {
	Token     string
	UID       int
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewTokenManager creates a new token manager
func NewTokenManager() *TokenManager {
	return &TokenManager{
		tokens: make(map[string]*LoginToken),
	}
}

// GenerateToken issues a new token for the given user
func (tm *TokenManager) GenerateToken(uid int, username string, duration time.Duration) (*LoginToken, error) {
	// Generate a random token
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return nil, fmt.Errorf("failed to generate random token: %w", err)
	}

	token := hex.EncodeToString(bytes)

	lt := &LoginToken{
		Token:     token,
		UID:       uid,
		Username:  username,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(duration),
	}

	tm.mu.Lock()
	tm.tokens[token] = lt
	tm.mu.Unlock()

	return lt, nil
}

// ValidateToken checks a token and returns its record
func (tm *TokenManager) ValidateToken(token string) (*LoginToken, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	lt, exists := tm.tokens[token]
	if !exists {
		return nil, fmt.Errorf("invalid token")
	}

	if time.Now().After(lt.ExpiresAt) {
		return nil, fmt.Errorf("token expired")
	}

	return lt, nil
}

// RevokeToken revokes a token
func (tm *TokenManager) RevokeToken(token string) {
	tm.mu.Lock()
	delete(tm.tokens, token)
	tm.mu.Unlock()
}

// CleanupExpiredTokens removes expired tokens
func (tm *TokenManager) CleanupExpiredTokens() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := time.Now()
	for token, lt := range tm.tokens {
		if now.After(lt.ExpiresAt) {
			delete(tm.tokens, token)
		}
	}
}

// ActiveTokens returns the number of unexpired tokens
func (tm *TokenManager) ActiveTokens() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	count := 0
	now := time.Now()
	for _, lt := range tm.tokens {
		if now.Before(lt.ExpiresAt) {
			count++
		}
	}
	return count
}
