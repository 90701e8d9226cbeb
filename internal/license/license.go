package license

import (
	"time"

	"github.com/google/uuid"
)

// Type defines the type of license
type Type string

const (
	TypeTrial     Type = "trial"
	TypeBasic     Type = "basic"
	TypePremium   Type = "premium"
	TypeUnlimited Type = "unlimited"
)

// UnlimitedMaxUsage is the sentinel ceiling for unlimited licenses
const UnlimitedMaxUsage = 999999

// Limits holds the default quota and validity window for a license type
type Limits struct {
	MaxUsage  int
	ExpiresIn time.Duration // zero means no expiry
}

// DefaultLimits maps each license type to its default quota and validity
var DefaultLimits = map[Type]Limits{
	TypeTrial:     {MaxUsage: 100, ExpiresIn: 7 * 24 * time.Hour},
	TypeBasic:     {MaxUsage: 1000, ExpiresIn: 30 * 24 * time.Hour},
	TypePremium:   {MaxUsage: 10000, ExpiresIn: 90 * 24 * time.Hour},
	TypeUnlimited: {MaxUsage: UnlimitedMaxUsage},
}

// ValidType reports whether s names a known license type
func ValidType(s string) bool {
	_, ok := DefaultLimits[Type(s)]
	return ok
}

// License represents a license key record. Timestamps are epoch
// milliseconds to match the dashboard wire format.
type License struct {
	ID         string `json:"id"`
	Key        string `json:"key"`
	Type       Type   `json:"type"`
	IsActive   bool   `json:"isActive"`
	UsageCount int    `json:"usageCount"`
	MaxUsage   int    `json:"maxUsage"`
	ExpiresAt  *int64 `json:"expiresAt,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// NowMillis returns the current time as epoch milliseconds
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// NewKey generates a new opaque license key
func NewKey() string {
	return uuid.New().String()
}

// New creates a license of the given type. Zero maxUsage picks the
// type's default; expiresIn==0 means no expiry.
func New(t Type, maxUsage int, expiresIn time.Duration) *License {
	if maxUsage <= 0 {
		maxUsage = DefaultLimits[t].MaxUsage
	}
	key := NewKey()
	now := NowMillis()

	lic := &License{
		ID:         key,
		Key:        key,
		Type:       t,
		IsActive:   true,
		UsageCount: 0,
		MaxUsage:   maxUsage,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if expiresIn > 0 {
		exp := now + expiresIn.Milliseconds()
		lic.ExpiresAt = &exp
	}
	return lic
}

// IsUsable reports whether the license can cover one more chat turn at
// the given instant (epoch ms).
func (l *License) IsUsable(nowMs int64) bool {
	if !l.IsActive {
		return false
	}
	if l.ExpiresAt != nil && *l.ExpiresAt <= nowMs {
		return false
	}
	return l.UsageCount < l.MaxUsage
}

// Snapshot returns a detached copy of the license. Callers must not
// assume it reflects later concurrent updates.
func (l *License) Snapshot() *License {
	cp := *l
	if l.ExpiresAt != nil {
		exp := *l.ExpiresAt
		cp.ExpiresAt = &exp
	}
	return &cp
}
