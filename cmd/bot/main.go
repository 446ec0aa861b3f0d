package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/otpmart/otpshopbot/internal/admin"
	"github.com/otpmart/otpshopbot/internal/config"
	"github.com/otpmart/otpshopbot/internal/database"
	"github.com/otpmart/otpshopbot/internal/job"
	"github.com/otpmart/otpshopbot/internal/repository"
	"github.com/otpmart/otpshopbot/internal/service"
	"github.com/otpmart/otpshopbot/internal/telegram"
	"github.com/otpmart/otpshopbot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbm := database.NewManager(cfg, logr)
	if err := dbm.Connect(ctx); err != nil {
		// A deferred retry is already scheduled; operations fail until it lands.
		logr.Error("initial database connect failed", "err", err)
	}
	defer dbm.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	userRepo := repository.NewUserRepository(dbm)
	orderRepo := repository.NewOrderRepository(dbm)
	topupRepo := repository.NewTopupRepository(dbm)
	giftRepo := repository.NewGiftCodeRepository(dbm)
	depositRepo := repository.NewDepositRepository(dbm)
	transferRepo := repository.NewTransferRepository(dbm)
	referralRepo := repository.NewReferralRepository(dbm)
	adminLogRepo := repository.NewAdminLogRepository(dbm)

	userService := service.NewUserService(logr, userRepo, referralRepo)
	ledgerService := service.NewLedgerService(dbm, logr, userRepo, depositRepo, transferRepo, referralRepo)
	giftService := service.NewGiftService(logr, giftRepo, depositRepo)
	topupService := service.NewTopupService(dbm, logr, topupRepo, userRepo, depositRepo, referralRepo, adminLogRepo, cfg.CommissionPercent)
	orderService := service.NewOrderService(logr, orderRepo, userRepo)
	statsService := service.NewStatsService(userRepo, orderRepo, depositRepo)

	sweeper := job.NewLeaseSweeper(logr, orderService, cfg.ActiveOrderSweep)
	go sweeper.Run(ctx)

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, userService, giftService, topupService, statsService, ledgerService, adminLogRepo)
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	bot := telegram.NewBot(botAPI, logr, userService, ledgerService, giftService, topupService, statsService, orderService, transferRepo)
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
