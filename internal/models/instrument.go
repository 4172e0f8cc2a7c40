package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PoolType string

const (
	PoolPublic  PoolType = "public"
	PoolPrivate PoolType = "private"
)

type InstrumentStatus string

const (
	InstrumentAvailable InstrumentStatus = "available"
	InstrumentInUse     InstrumentStatus = "in_use"
	InstrumentUsed      InstrumentStatus = "used"
	InstrumentExpired   InstrumentStatus = "expired"
	InstrumentFrozen    InstrumentStatus = "frozen"
)

// PoolKey identifies one pool. Owner is empty for the public pool.
type PoolKey struct {
	Type  PoolType
	Owner string
}

// PoolFor returns the pool an account with the given owner pays from.
func PoolFor(owner string) PoolKey {
	if owner == "" {
		return PoolKey{Type: PoolPublic}
	}
	return PoolKey{Type: PoolPrivate, Owner: owner}
}

func (k PoolKey) String() string {
	if k.Type == PoolPrivate {
		return "private:" + k.Owner
	}
	return string(PoolPublic)
}

// Card is the sensitive part of an instrument. It is sealed at rest.
type Card struct {
	Number   string   `json:"number"`
	ExpMonth int      `json:"exp_month"`
	ExpYear  int      `json:"exp_year"`
	CVV      string   `json:"cvv"`
	Holder   string   `json:"holder,omitempty"`
	Address  []string `json:"address,omitempty"`
}

// Last4 returns the last four digits of the card number.
func (c Card) Last4() string {
	if len(c.Number) <= 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// Instrument is a capacity-limited payment instrument in a pool.
type Instrument struct {
	ID           string
	PoolType     PoolType
	Owner        string
	UseCount     int
	MaxUseCount  int // 0 means unlimited
	SuccessCount int
	Status       InstrumentStatus
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	Last4        string

	SealedCard []byte
	// Card is filled in by the pool after a successful allocation.
	Card *Card
}

func (i *Instrument) Pool() PoolKey {
	return PoolKey{Type: i.PoolType, Owner: i.Owner}
}

// CapReached reports whether the instrument has no uses left.
func (i *Instrument) CapReached() bool {
	return i.MaxUseCount > 0 && i.UseCount >= i.MaxUseCount
}

// Expired reports whether the instrument expired at or before now.
func (i *Instrument) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && !i.ExpiresAt.After(now)
}

// Allocatable reports whether the instrument may be handed out at now.
func (i *Instrument) Allocatable(now time.Time) bool {
	return i.Status == InstrumentAvailable && !i.CapReached() && !i.Expired(now)
}

// UsageRecord is one entry of an instrument's usage log.
type UsageRecord struct {
	ID             string
	InstrumentID   string
	AccountID      string
	Success        bool
	Amount         decimal.NullDecimal
	IdempotencyKey string
	CreatedAt      time.Time
}
