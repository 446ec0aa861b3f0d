package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type TopupStatus string

const (
	TopupStatusPending  TopupStatus = "pending"
	TopupStatusApproved TopupStatus = "approved"
	TopupStatusRejected TopupStatus = "rejected"
)

type User struct {
	UserID        int64
	Balance       decimal.Decimal
	JoinedDate    time.Time
	ChannelJoined bool
	TermsAccepted bool
	LastChecked   time.Time
	TotalOrders   int
	FirstName     string
	Username      string
}

type Order struct {
	ID              int64
	UserID          int64
	Service         string
	Phone           string
	Price           decimal.Decimal
	OriginalPrice   decimal.Decimal
	DiscountApplied decimal.Decimal
	OrderID         string
	ActivationID    string
	Status          OrderStatus
	OrderTime       time.Time
	OTPCode         string
	ServerUsed      string
}

// ActiveOrder is a short-lived lease for an order awaiting its OTP.
type ActiveOrder struct {
	OrderID      string
	ActivationID string
	UserID       int64
	Phone        string
	Product      string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	ServerUsed   string
}

type TopupRequest struct {
	ID          int64
	UserID      int64
	Amount      decimal.Decimal
	UTR         string
	Status      TopupStatus
	RequestTime time.Time
}

type GiftCode struct {
	Code       string
	Amount     decimal.Decimal
	CreatedBy  int64
	CreatedAt  time.Time
	MaxUses    int
	ExpiresAt  *time.Time
	MinDeposit decimal.Decimal
}

// Expired reports whether the code's expiry, if set, has passed.
func (g *GiftCode) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

type GiftCodeUse struct {
	ID     int64
	Code   string
	UserID int64
	UsedAt time.Time
}

type BalanceTransfer struct {
	ID           int64
	FromUserID   int64
	ToUserID     int64
	Amount       decimal.Decimal
	TransferTime time.Time
	Note         string
}

type Referral struct {
	ID           int64
	ReferrerID   int64
	ReferredID   int64
	ReferralCode string
	JoinedAt     time.Time
	IsActive     bool
}

type ReferralEarning struct {
	ID                int64
	ReferrerID        int64
	ReferredID        int64
	DepositAmount     decimal.Decimal
	CommissionAmount  decimal.Decimal
	CommissionPercent decimal.Decimal
	EarnedAt          time.Time
}

type MonthlyDeposit struct {
	UserID       int64
	MonthYear    string
	TotalDeposit decimal.Decimal
}

type AdminLog struct {
	ID           int64
	AdminID      int64
	Action       string
	TargetUserID int64
	Details      string
	Timestamp    time.Time
}

// Depositor is a leaderboard row from the monthly deposit aggregates.
type Depositor struct {
	UserID       int64
	FirstName    string
	Username     string
	TotalDeposit decimal.Decimal
}

// Stats aggregates the whole-store counters shown on the admin panel.
type Stats struct {
	TotalUsers   int64
	TotalOrders  int64
	TotalRevenue decimal.Decimal
}

// MonthKey formats t as the zero-padded "YYYY-MM" key that scopes
// monthly deposit aggregates.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// Amount normalizes a raw decimal string from the store into a numeric
// value. Malformed or empty input yields zero rather than an error so
// money fields are never surfaced as raw strings.
func Amount(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}
