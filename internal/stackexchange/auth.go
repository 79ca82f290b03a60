package stackexchange

import (
	"sync"
	"time"
)

// AuthState tracks API-key validity and daily quota as reported by the
// upstream API. A nil APIKeyValid means the key has never been tested.
type AuthState struct {
	mu sync.Mutex

	isAuthenticated bool
	apiKeyValid     *bool
	tested          bool
	quota           *int
	quotaRemaining  *int
	lastValidation  *time.Time
	lastError       string
}

// AuthStatus is a read-only projection of AuthState. APIKeyConfigured
// is filled in by the client, which owns the key.
type AuthStatus struct {
	APIKeyConfigured     bool       `json:"api_key_configured"`
	IsAuthenticated      bool       `json:"is_authenticated"`
	APIKeyValid          *bool      `json:"api_key_valid"`
	AuthenticationTested bool       `json:"authentication_tested"`
	AuthenticationError  string     `json:"authentication_error,omitempty"`
	DailyQuota           *int       `json:"daily_quota"`
	DailyQuotaRemaining  *int       `json:"daily_quota_remaining"`
	LastValidationTime   *time.Time `json:"last_validation_time"`
}

// NewAuthState returns an untested state.
func NewAuthState() *AuthState {
	return &AuthState{}
}

// SetStatus records the outcome of an authentication check. errMsg is
// kept only for failures; a success clears any previous error.
func (s *AuthState) SetStatus(valid bool, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isAuthenticated = valid
	v := valid
	s.apiKeyValid = &v
	s.tested = true
	now := timeNow()
	s.lastValidation = &now
	if valid {
		s.lastError = ""
	} else {
		s.lastError = errMsg
	}
}

// UpdateQuota stores the quota fields verbatim.
func (s *AuthState) UpdateQuota(quotaMax, quotaRemaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quota = &quotaMax
	s.quotaRemaining = &quotaRemaining
}

// IsAuthenticated reports whether the last check succeeded.
func (s *AuthState) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isAuthenticated
}

// QuotaRemainingAbove reports whether the remaining daily quota is
// above the threshold. An unknown quota counts as above: degrading to
// unauthenticated access before the server has told us anything would
// throw away the key for no reason.
func (s *AuthState) QuotaRemainingAbove(threshold int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quotaRemaining == nil {
		return true
	}
	return *s.quotaRemaining > threshold
}

// Status returns a snapshot for external reporting. No side effects.
func (s *AuthState) Status() AuthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := AuthStatus{
		IsAuthenticated:      s.isAuthenticated,
		AuthenticationTested: s.tested,
		AuthenticationError:  s.lastError,
	}
	if s.apiKeyValid != nil {
		v := *s.apiKeyValid
		st.APIKeyValid = &v
	}
	if s.quota != nil {
		q := *s.quota
		st.DailyQuota = &q
	}
	if s.quotaRemaining != nil {
		q := *s.quotaRemaining
		st.DailyQuotaRemaining = &q
	}
	if s.lastValidation != nil {
		t := *s.lastValidation
		st.LastValidationTime = &t
	}
	return st
}
