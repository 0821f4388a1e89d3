package service

import (
	"context"
	"fmt"
	"time"

	"github.com/deskly/deskbot/internal/domain"
	"github.com/deskly/deskbot/internal/repository"
	"github.com/deskly/deskbot/pkg/config"
	"github.com/deskly/deskbot/pkg/events"
	"github.com/deskly/deskbot/pkg/logger"
)

// timeNow is a seam for tests.
var timeNow = time.Now

type BookingService interface {
	// Book reserves a desk for the requester on the given date. desk 0
	// auto-assigns the lowest free desk.
	Book(ctx context.Context, requester string, date time.Time, desk int) (*domain.Booking, error)
	// Cancel deletes a booking. Non-admin callers must own it.
	Cancel(ctx context.Context, requester string, id int64, asAdmin bool) error
	ListUpcoming(ctx context.Context, identity string) ([]domain.Booking, error)
	ListAll(ctx context.Context) ([]domain.Booking, error)
	History(ctx context.Context, since time.Time) ([]domain.Booking, error)
	// DateOptions returns the next bookable dates offered to the user.
	DateOptions() []time.Time
}

type bookingService struct {
	bookingRepo repository.BookingRepository
	eventBus    events.Publisher
	cfg         *config.Config
}

func NewBookingService(bookingRepo repository.BookingRepository, eventBus events.Publisher, cfg *config.Config) BookingService {
	return &bookingService{
		bookingRepo: bookingRepo,
		eventBus:    eventBus,
		cfg:         cfg,
	}
}

func (s *bookingService) Book(ctx context.Context, requester string, date time.Time, desk int) (*domain.Booking, error) {
	today := domain.Today(timeNow())

	if date.Before(today) {
		return nil, fmt.Errorf("%w: %s is in the past", domain.ErrInvalidDate, date.Format(domain.DateFormat))
	}
	if h := s.cfg.Booking.HorizonDays; h > 0 && date.After(today.AddDate(0, 0, h)) {
		return nil, fmt.Errorf("%w: %s is more than %d days ahead", domain.ErrInvalidDate, date.Format(domain.DateFormat), h)
	}

	exists, err := s.bookingRepo.ExistsForOwner(ctx, requester, date)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing booking: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: you already have a booking for %s", domain.ErrConflict, date.Format(domain.DateFormat))
	}

	if desk == 0 {
		desk, err = s.pickFreeDesk(ctx, date)
		if err != nil {
			return nil, err
		}
	} else if desk < 1 || desk > s.cfg.Booking.DesksPerDay {
		return nil, fmt.Errorf("%w: desk %d does not exist (desks 1-%d)", domain.ErrConflict, desk, s.cfg.Booking.DesksPerDay)
	}

	booking, err := s.bookingRepo.Create(ctx, date, desk, requester)
	if err != nil {
		return nil, err
	}

	event := events.BookingCreatedEvent{
		BookingID:     booking.ID,
		OwnerIdentity: booking.OwnerIdentity,
		Date:          booking.DateString(),
		Desk:          booking.Desk,
		CreatedAt:     booking.CreatedAt,
	}
	if err := s.eventBus.Publish(ctx, events.BookingCreated, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish booking created event", "error", err, "booking_id", booking.ID)
	}

	return booking, nil
}

func (s *bookingService) pickFreeDesk(ctx context.Context, date time.Time) (int, error) {
	taken, err := s.bookingRepo.DesksTaken(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("failed to check desk availability: %w", err)
	}

	used := make(map[int]bool, len(taken))
	for _, d := range taken {
		used[d] = true
	}
	for d := 1; d <= s.cfg.Booking.DesksPerDay; d++ {
		if !used[d] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: no desks left for %s", domain.ErrConflict, date.Format(domain.DateFormat))
}

func (s *bookingService) Cancel(ctx context.Context, requester string, id int64, asAdmin bool) error {
	booking, err := s.bookingRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil {
		return fmt.Errorf("%w: no booking found with id %d", domain.ErrNotFound, id)
	}
	if !asAdmin && !booking.IsOwner(requester) {
		return fmt.Errorf("%w: booking %d belongs to another user", domain.ErrPermissionDenied, id)
	}

	if err := s.bookingRepo.Delete(ctx, id); err != nil {
		return err
	}

	event := events.BookingCanceledEvent{
		BookingID:     booking.ID,
		OwnerIdentity: booking.OwnerIdentity,
		Date:          booking.DateString(),
		Desk:          booking.Desk,
		ByAdmin:       asAdmin,
		CanceledAt:    timeNow(),
	}
	if err := s.eventBus.Publish(ctx, events.BookingCanceled, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish booking canceled event", "error", err, "booking_id", booking.ID)
	}

	return nil
}

func (s *bookingService) ListUpcoming(ctx context.Context, identity string) ([]domain.Booking, error) {
	return s.bookingRepo.ListByOwner(ctx, identity, domain.Today(timeNow()))
}

func (s *bookingService) ListAll(ctx context.Context) ([]domain.Booking, error) {
	today := domain.Today(timeNow())
	return s.bookingRepo.ListAll(ctx, &today)
}

func (s *bookingService) History(ctx context.Context, since time.Time) ([]domain.Booking, error) {
	return s.bookingRepo.ListAll(ctx, &since)
}

func (s *bookingService) DateOptions() []time.Time {
	return domain.WorkingDays(timeNow(), s.cfg.Booking.DaysShown, s.cfg.Booking.ExcludeWeekends)
}

var _ BookingService = (*bookingService)(nil)
