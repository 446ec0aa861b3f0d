package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/otpmart/otpshopbot/internal/models"
	"github.com/otpmart/otpshopbot/internal/repository"
)

type UserService struct {
	log       *slog.Logger
	users     *repository.UserRepository
	referrals *repository.ReferralRepository
}

func NewUserService(log *slog.Logger, users *repository.UserRepository, referrals *repository.ReferralRepository) *UserService {
	return &UserService{log: log, users: users, referrals: referrals}
}

// Ensure lazily creates the user row, refreshes the profile fields and
// stamps the last-seen time.
func (s *UserService) Ensure(ctx context.Context, userID int64, firstName, username string) (*models.User, error) {
	user, err := s.users.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	if user.FirstName != firstName || user.Username != username {
		if err := s.users.UpdateProfile(ctx, userID, firstName, username); err != nil {
			s.log.Warn("update profile", "user_id", userID, "err", err)
		} else {
			user.FirstName = firstName
			user.Username = username
		}
	}
	if err := s.users.TouchLastChecked(ctx, userID, time.Now()); err != nil {
		s.log.Warn("touch last checked", "user_id", userID, "err", err)
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, userID int64) (*models.User, error) {
	return s.users.Get(ctx, userID)
}

// AttachReferral links a newly joined user to a referrer. Self-referrals
// and repeat attachments are ignored.
func (s *UserService) AttachReferral(ctx context.Context, referrerID, referredID int64, code string) error {
	if referrerID == referredID || referrerID == 0 {
		return nil
	}
	ref := &models.Referral{ReferrerID: referrerID, ReferredID: referredID, ReferralCode: code}
	if err := s.referrals.Create(ctx, ref); err != nil {
		if errors.Is(err, repository.ErrAlreadyReferred) {
			return nil
		}
		return err
	}
	s.log.Info("referral attached", "referrer", referrerID, "referred", referredID)
	return nil
}

func (s *UserService) Referrals(ctx context.Context, referrerID int64) ([]models.Referral, error) {
	return s.referrals.ListByReferrer(ctx, referrerID)
}

func (s *UserService) ReferralEarnings(ctx context.Context, referrerID int64, limit int) ([]models.ReferralEarning, error) {
	return s.referrals.EarningsByReferrer(ctx, referrerID, limit)
}

func (s *UserService) SetChannelJoined(ctx context.Context, userID int64, joined bool) error {
	return s.users.SetChannelJoined(ctx, userID, joined)
}

func (s *UserService) SetTermsAccepted(ctx context.Context, userID int64, accepted bool) error {
	return s.users.SetTermsAccepted(ctx, userID, accepted)
}

func (s *UserService) Search(ctx context.Context, term string, limit int) ([]models.User, error) {
	return s.users.Search(ctx, term, limit)
}
