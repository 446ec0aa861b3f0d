package database

import (
	"context"
	"database/sql"
	"log/slog"
)

// Bootstrap schema. Statements are applied one by one so a failure on a
// single table never blocks the rest; every statement is create-if-absent
// and safe to re-run after each reconnect.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    user_id BIGINT PRIMARY KEY,
    balance DECIMAL(15,2) NOT NULL DEFAULT 0,
    joined_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    channel_joined BOOLEAN NOT NULL DEFAULT FALSE,
    terms_accepted BOOLEAN NOT NULL DEFAULT FALSE,
    last_checked TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    total_orders INT NOT NULL DEFAULT 0,
    first_name TEXT NOT NULL DEFAULT '',
    username TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS orders (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    service TEXT NOT NULL,
    phone TEXT NOT NULL DEFAULT '',
    price DECIMAL(15,2) NOT NULL,
    order_id TEXT NOT NULL DEFAULT '',
    activation_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'created',
    order_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    otp_code TEXT NOT NULL DEFAULT '',
    server_used TEXT NOT NULL DEFAULT '',
    original_price DECIMAL(15,2) NOT NULL DEFAULT 0,
    discount_applied DECIMAL(15,2) NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS active_orders (
    order_id TEXT PRIMARY KEY,
    activation_id TEXT NOT NULL DEFAULT '',
    user_id BIGINT NOT NULL,
    phone TEXT NOT NULL DEFAULT '',
    product TEXT NOT NULL DEFAULT '',
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    server_used TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS topup_requests (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    amount DECIMAL(15,2) NOT NULL,
    utr TEXT NOT NULL UNIQUE,
    status TEXT NOT NULL DEFAULT 'pending',
    request_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS gift_codes (
    code TEXT PRIMARY KEY,
    amount DECIMAL(15,2) NOT NULL,
    created_by BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    max_uses INT NOT NULL DEFAULT 1,
    expires_at TIMESTAMPTZ,
    min_deposit DECIMAL(15,2) NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS gift_code_uses (
    id BIGSERIAL PRIMARY KEY,
    code TEXT NOT NULL,
    user_id BIGINT NOT NULL,
    used_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (code, user_id)
)`,
	`CREATE TABLE IF NOT EXISTS admin_logs (
    id BIGSERIAL PRIMARY KEY,
    admin_id BIGINT NOT NULL,
    action TEXT NOT NULL,
    target_user_id BIGINT NOT NULL DEFAULT 0,
    details TEXT NOT NULL DEFAULT '',
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS monthly_deposits (
    user_id BIGINT NOT NULL,
    month_year TEXT NOT NULL,
    total_deposit DECIMAL(15,2) NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, month_year)
)`,
	`CREATE TABLE IF NOT EXISTS balance_transfers (
    id BIGSERIAL PRIMARY KEY,
    from_user_id BIGINT NOT NULL,
    to_user_id BIGINT NOT NULL,
    amount DECIMAL(15,2) NOT NULL,
    transfer_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    note TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS referrals (
    id BIGSERIAL PRIMARY KEY,
    referrer_id BIGINT NOT NULL,
    referred_id BIGINT NOT NULL UNIQUE,
    referral_code TEXT NOT NULL DEFAULT '',
    joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    is_active BOOLEAN NOT NULL DEFAULT TRUE
)`,
	`CREATE TABLE IF NOT EXISTS referral_earnings (
    id BIGSERIAL PRIMARY KEY,
    referrer_id BIGINT NOT NULL,
    referred_id BIGINT NOT NULL,
    deposit_amount DECIMAL(15,2) NOT NULL,
    commission_amount DECIMAL(15,2) NOT NULL,
    commission_percent DECIMAL(5,2) NOT NULL DEFAULT 5,
    earned_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
}

// Migrate ensures the required tables exist. Individual statement failures
// are logged and skipped; the initializer is stateless and re-runs after
// every successful connect.
func Migrate(ctx context.Context, db *sql.DB, log *slog.Logger) {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Warn("schema statement failed", "index", i, "err", err)
		}
	}
}
