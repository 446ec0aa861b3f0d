package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/otpmart/otpshopbot/internal/models"
	"github.com/otpmart/otpshopbot/internal/repository"
	"github.com/otpmart/otpshopbot/internal/service"
)

const historyLimit = 10

type Bot struct {
	api       *tgbotapi.BotAPI
	log       *slog.Logger
	users     *service.UserService
	ledger    *service.LedgerService
	gifts     *service.GiftService
	topups    *service.TopupService
	stats     *service.StatsService
	orders    *service.OrderService
	transfers *repository.TransferRepository
}

func NewBot(api *tgbotapi.BotAPI, log *slog.Logger, users *service.UserService, ledger *service.LedgerService, gifts *service.GiftService, topups *service.TopupService, stats *service.StatsService, orders *service.OrderService, transfers *repository.TransferRepository) *Bot {
	return &Bot{
		api:       api,
		log:       log,
		users:     users,
		ledger:    ledger,
		gifts:     gifts,
		topups:    topups,
		stats:     stats,
		orders:    orders,
		transfers: transfers,
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.Message != nil && update.Message.IsCommand() {
				b.handleCommand(ctx, update.Message)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "balance":
		b.handleBalance(ctx, msg)
	case "transfer":
		b.handleTransfer(ctx, msg)
	case "redeem":
		b.handleRedeem(ctx, msg)
	case "topup":
		b.handleTopup(ctx, msg)
	case "history":
		b.handleHistory(ctx, msg)
	case "referral":
		b.handleReferral(ctx, msg)
	case "top":
		b.handleTop(ctx, msg)
	default:
		b.sendText(msg.Chat.ID, "Unknown command. Try /balance, /topup, /redeem or /transfer.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.ensureUser(ctx, msg)
	if err != nil {
		return
	}

	// Deep-link payload: t.me/<bot>?start=ref<referrer_id>
	payload := strings.TrimSpace(msg.CommandArguments())
	if strings.HasPrefix(payload, "ref") {
		if referrerID, err := strconv.ParseInt(strings.TrimPrefix(payload, "ref"), 10, 64); err == nil {
			if err := b.users.AttachReferral(ctx, referrerID, user.UserID, payload); err != nil {
				b.log.Warn("attach referral", "referred", user.UserID, "err", err)
			}
		}
	}

	b.sendText(msg.Chat.ID, fmt.Sprintf(
		"Welcome, %s!\n\nCommands:\n/balance — your balance\n/topup <amount> <utr> — claim a deposit\n/transfer <user_id> <amount> [note] — send balance\n/redeem <code> — redeem a gift code\n/history — recent orders and deposits\n/referral — your referral stats\n/top — monthly deposit leaderboard",
		user.FirstName,
	))
}

func (b *Bot) handleBalance(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.ensureUser(ctx, msg)
	if err != nil {
		return
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf("Balance: ₹%s\nTotal orders: %d", user.Balance.StringFixed(2), user.TotalOrders))
}

func (b *Bot) handleTransfer(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.ensureUser(ctx, msg)
	if err != nil {
		return
	}
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 2 {
		b.sendText(msg.Chat.ID, "Usage: /transfer <user_id> <amount> [note]")
		return
	}
	toID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.sendText(msg.Chat.ID, "Recipient must be a numeric user id.")
		return
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil || !amount.IsPositive() {
		b.sendText(msg.Chat.ID, "Amount must be a positive number.")
		return
	}
	if user.Balance.LessThan(amount) {
		b.sendText(msg.Chat.ID, "Insufficient balance for this transfer.")
		return
	}
	note := strings.Join(args[2:], " ")

	if _, err := b.ledger.TransferBalance(ctx, user.UserID, toID, amount, note); err != nil {
		switch {
		case errors.Is(err, service.ErrSelfTransfer):
			b.sendText(msg.Chat.ID, "You cannot transfer to yourself.")
		case errors.Is(err, repository.ErrUserNotFound):
			b.sendText(msg.Chat.ID, "Recipient not found. They must /start the bot first.")
		default:
			b.log.Error("transfer failed", "from", user.UserID, "to", toID, "err", err)
			b.sendText(msg.Chat.ID, "Transfer failed, nothing was moved. Try again later.")
		}
		return
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf("Sent ₹%s to %d.", amount.StringFixed(2), toID))
}

func (b *Bot) handleRedeem(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.ensureUser(ctx, msg)
	if err != nil {
		return
	}
	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		b.sendText(msg.Chat.ID, "Usage: /redeem <code>")
		return
	}

	gift, err := b.gifts.Get(ctx, code)
	if err != nil {
		b.log.Error("load gift code", "code", code, "err", err)
		b.sendText(msg.Chat.ID, "Could not redeem the code right now. Try again later.")
		return
	}
	if gift != nil {
		eligible, err := b.gifts.MeetsMinDeposit(ctx, gift, user.UserID)
		if err != nil {
			b.log.Error("check gift eligibility", "code", code, "user_id", user.UserID, "err", err)
			b.sendText(msg.Chat.ID, "Could not redeem the code right now. Try again later.")
			return
		}
		if !eligible {
			b.sendText(msg.Chat.ID, fmt.Sprintf("This code requires at least ₹%s deposited this month.", gift.MinDeposit.StringFixed(2)))
			return
		}
	}

	redeemed, err := b.gifts.Redeem(ctx, code, user.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGiftCodeInvalid):
			b.sendText(msg.Chat.ID, "That gift code does not exist.")
		case errors.Is(err, service.ErrGiftCodeExpired):
			b.sendText(msg.Chat.ID, "That gift code has expired.")
		case errors.Is(err, service.ErrGiftCodeExhausted):
			b.sendText(msg.Chat.ID, "That gift code has no uses left.")
		case errors.Is(err, service.ErrGiftCodeAlreadyUsed):
			b.sendText(msg.Chat.ID, "You have already used that gift code.")
		default:
			b.log.Error("redeem failed", "code", code, "user_id", user.UserID, "err", err)
			b.sendText(msg.Chat.ID, "Could not redeem the code right now. Try again later.")
		}
		return
	}

	if _, err := b.ledger.UpdateBalance(ctx, user.UserID, redeemed.Amount); err != nil {
		b.log.Error("credit gift amount", "code", code, "user_id", user.UserID, "err", err)
		b.sendText(msg.Chat.ID, "Code redeemed but crediting failed; contact support.")
		return
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf("Gift code redeemed! ₹%s added to your balance.", redeemed.Amount.StringFixed(2)))
}

func (b *Bot) handleTopup(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.ensureUser(ctx, msg)
	if err != nil {
		return
	}
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		b.sendText(msg.Chat.ID, "Usage: /topup <amount> <utr>")
		return
	}
	amount, err := decimal.NewFromString(args[0])
	if err != nil || !amount.IsPositive() {
		b.sendText(msg.Chat.ID, "Amount must be a positive number.")
		return
	}
	utr := args[1]

	req, err := b.topups.Submit(ctx, user.UserID, amount, utr)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUTR) {
			b.sendText(msg.Chat.ID, "That UTR was already submitted.")
			return
		}
		b.log.Error("topup submit failed", "user_id", user.UserID, "err", err)
		b.sendText(msg.Chat.ID, "Could not file the deposit claim. Try again later.")
		return
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf("Deposit claim #%d filed for ₹%s. You will be credited after review.", req.ID, req.Amount.StringFixed(2)))
}

func (b *Bot) handleHistory(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.ensureUser(ctx, msg)
	if err != nil {
		return
	}
	orders, err := b.orders.RecentByUser(ctx, user.UserID, historyLimit)
	if err != nil {
		b.log.Error("order history", "user_id", user.UserID, "err", err)
		b.sendText(msg.Chat.ID, "Could not load your history right now.")
		return
	}
	topups, err := b.topups.RecentByUser(ctx, user.UserID, historyLimit)
	if err != nil {
		b.log.Error("topup history", "user_id", user.UserID, "err", err)
		b.sendText(msg.Chat.ID, "Could not load your history right now.")
		return
	}
	transfers, err := b.transfers.RecentByUser(ctx, user.UserID, historyLimit)
	if err != nil {
		b.log.Error("transfer history", "user_id", user.UserID, "err", err)
		b.sendText(msg.Chat.ID, "Could not load your history right now.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Recent orders:\n")
	if len(orders) == 0 {
		sb.WriteString("  none\n")
	}
	for _, o := range orders {
		fmt.Fprintf(&sb, "  %s — %s ₹%s (%s)\n", o.OrderTime.Format("02 Jan"), o.Service, o.Price.StringFixed(2), o.Status)
	}
	sb.WriteString("\nRecent deposits:\n")
	if len(topups) == 0 {
		sb.WriteString("  none\n")
	}
	for _, t := range topups {
		fmt.Fprintf(&sb, "  %s — ₹%s (%s)\n", t.RequestTime.Format("02 Jan"), t.Amount.StringFixed(2), t.Status)
	}
	if len(transfers) > 0 {
		sb.WriteString("\nRecent transfers:\n")
		for _, t := range transfers {
			direction := "to"
			other := t.ToUserID
			if t.ToUserID == user.UserID {
				direction = "from"
				other = t.FromUserID
			}
			fmt.Fprintf(&sb, "  %s — ₹%s %s %d\n", t.TransferTime.Format("02 Jan"), t.Amount.StringFixed(2), direction, other)
		}
	}
	b.sendText(msg.Chat.ID, sb.String())
}

func (b *Bot) handleReferral(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.ensureUser(ctx, msg)
	if err != nil {
		return
	}
	refs, err := b.users.Referrals(ctx, user.UserID)
	if err != nil {
		b.log.Error("referral list", "user_id", user.UserID, "err", err)
		b.sendText(msg.Chat.ID, "Could not load referral stats right now.")
		return
	}
	earnings, err := b.users.ReferralEarnings(ctx, user.UserID, historyLimit)
	if err != nil {
		b.log.Error("referral earnings", "user_id", user.UserID, "err", err)
		b.sendText(msg.Chat.ID, "Could not load referral stats right now.")
		return
	}

	total := decimal.Zero
	for _, e := range earnings {
		total = total.Add(e.CommissionAmount)
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf(
		"Your referral link: https://t.me/%s?start=ref%d\nReferred users: %d\nRecent commissions: ₹%s",
		b.api.Self.UserName, user.UserID, len(refs), total.StringFixed(2),
	))
}

func (b *Bot) handleTop(ctx context.Context, msg *tgbotapi.Message) {
	if _, err := b.ensureUser(ctx, msg); err != nil {
		return
	}
	depositors, _, err := b.stats.TopDepositors(ctx, historyLimit, 0)
	if err != nil {
		b.log.Error("top depositors", "err", err)
		b.sendText(msg.Chat.ID, "Could not load the leaderboard right now.")
		return
	}
	if len(depositors) == 0 {
		b.sendText(msg.Chat.ID, "No deposits yet this month.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Top depositors this month:\n")
	for i, d := range depositors {
		name := d.FirstName
		if name == "" {
			name = strconv.FormatInt(d.UserID, 10)
		}
		fmt.Fprintf(&sb, "%d. %s — ₹%s\n", i+1, name, d.TotalDeposit.StringFixed(2))
	}
	b.sendText(msg.Chat.ID, sb.String())
}

func (b *Bot) ensureUser(ctx context.Context, msg *tgbotapi.Message) (*models.User, error) {
	from := msg.From
	if from == nil {
		return nil, errors.New("message without sender")
	}
	user, err := b.users.Ensure(ctx, from.ID, from.FirstName, from.UserName)
	if err != nil {
		b.log.Error("ensure user", "user_id", from.ID, "err", err)
		b.sendText(msg.Chat.ID, "Something went wrong, please try again.")
		return nil, err
	}
	return user, nil
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "err", err)
	}
}
