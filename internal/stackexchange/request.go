package stackexchange

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority orders pending requests. Higher values dispatch first;
// requests of equal priority dispatch in submission order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// AccessMode selects whether the API key is attached to a request.
type AccessMode string

const (
	// AccessAuto lets the client pick based on key health, quota and
	// rate-limit state.
	AccessAuto AccessMode = "auto"
	// AccessAuthenticated forces the key on, even when none is
	// configured — the upstream call then fails authentication there.
	AccessAuthenticated AccessMode = "authenticated"
	// AccessUnauthenticated forces the key off.
	AccessUnauthenticated AccessMode = "unauthenticated"
)

const defaultMaxRetries = 3

// QueuedRequest describes one outbound API call. The descriptor is
// immutable after construction except for the retry counter, which the
// queue owns.
type QueuedRequest struct {
	ID        string
	Endpoint  string
	Params    map[string]string
	Priority  Priority
	Mode      AccessMode
	CreatedAt time.Time

	retryCount int
	maxRetries int
}

// NewRequest builds a request descriptor with a fresh id.
func NewRequest(endpoint string, params map[string]string, priority Priority, mode AccessMode) *QueuedRequest {
	return &QueuedRequest{
		ID:         uuid.NewString(),
		Endpoint:   endpoint,
		Params:     params,
		Priority:   priority,
		Mode:       mode,
		CreatedAt:  timeNow(),
		maxRetries: defaultMaxRetries,
	}
}

// CacheKey fingerprints the endpoint and parameters. Params are sorted
// by key so functionally identical requests collide regardless of map
// iteration or submission order; priority and id are deliberately
// excluded.
func (r *QueuedRequest) CacheKey() string {
	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(r.Endpoint)
	for _, k := range keys {
		b.WriteByte('&')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(r.Params[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
