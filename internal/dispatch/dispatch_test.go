package dispatch

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/deskly/deskbot/internal/domain"
	"github.com/deskly/deskbot/internal/service"
	"github.com/deskly/deskbot/internal/testutil"
	"github.com/deskly/deskbot/pkg/config"
)

type fixture struct {
	dispatcher *Dispatcher
	users      *testutil.MemUserRepo
	bookings   *testutil.MemBookingRepo
	bus        *testutil.SpyPublisher
	limiter    *testutil.FakeLimiter
	cfg        *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Load()
	cfg.Admin.Identity = "boss"
	cfg.Admin.DisplayName = "Boss"
	cfg.Booking.DesksPerDay = 6
	cfg.Booking.HorizonDays = 30
	cfg.Booking.DaysShown = 5
	cfg.Booking.ExcludeWeekends = true
	cfg.Booking.HistoryDays = 14
	cfg.Booking.StartCooldown = 15 * time.Second
	cfg.Booking.RateLimitPerMinute = 30

	users := testutil.NewMemUserRepo()
	bookings := testutil.NewMemBookingRepo()
	bus := &testutil.SpyPublisher{}
	limiter := &testutil.FakeLimiter{}

	access := service.NewAccessService(users, cfg.Admin.Identity)
	bookingSvc := service.NewBookingService(bookings, bus, cfg)
	userSvc := service.NewUserService(users, bus, cfg)

	return &fixture{
		dispatcher: New(access, bookingSvc, userSvc, limiter, cfg),
		users:      users,
		bookings:   bookings,
		bus:        bus,
		limiter:    limiter,
		cfg:        cfg,
	}
}

func (f *fixture) seed(t *testing.T, identity string, role domain.Role, blacklisted bool) {
	t.Helper()
	err := f.users.Upsert(context.Background(), &domain.User{
		Identity:    identity,
		DisplayName: identity,
		Role:        role,
		Blacklisted: blacklisted,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", identity, err)
	}
}

func (f *fixture) send(name, sender string, args ...string) *domain.Reply {
	return f.dispatcher.Dispatch(context.Background(), domain.Command{
		Name:   name,
		Args:   args,
		Sender: sender,
	})
}

// nextWorkingDay returns the first bookable date, formatted for command args.
func nextWorkingDay() string {
	return domain.WorkingDays(time.Now(), 1, true)[0].Format(domain.DateFormat)
}

func TestDispatchUnknownCommand(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", domain.RoleRegistered, false)

	reply := f.send("self_destruct", "u1")
	if reply.Text != "Unknown command." {
		t.Errorf("got %q", reply.Text)
	}
}

func TestDispatchGuestNeedsRegistration(t *testing.T) {
	f := newFixture(t)

	reply := f.send("book_table", "stranger")
	want := "You need to be registered to use this command. Use start to register."
	if reply.Text != want {
		t.Errorf("got %q, want %q", reply.Text, want)
	}
}

func TestDispatchAdminCommandDeniedToRegistered(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", domain.RoleRegistered, false)

	for _, name := range []string{"manage_users", "remove_user", "history", "cancel_booking"} {
		reply := f.send(name, "u1")
		if reply.Text != "You are not authorized to use this command." {
			t.Errorf("%s: got %q", name, reply.Text)
		}
	}
}

func TestDispatchBlacklistedSenderRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", domain.RoleAdmin, true)

	reply := f.send("view_my_bookings", "u1")
	if reply.Text != "You are blacklisted and cannot use this bot." {
		t.Errorf("got %q", reply.Text)
	}
}

func TestDispatchRateLimited(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", domain.RoleRegistered, false)
	f.limiter.DenyAllow = true

	reply := f.send("view_my_bookings", "u1")
	if reply.Text != "Too many requests. Try again later." {
		t.Errorf("got %q", reply.Text)
	}
}

func TestStartRegistersAndIsIdempotent(t *testing.T) {
	f := newFixture(t)

	reply := f.send("start", "u1")
	if !strings.HasPrefix(reply.Text, "Welcome") {
		t.Errorf("got %q", reply.Text)
	}
	if len(reply.Options) == 0 {
		t.Error("first start offered no menu options")
	}

	reply = f.send("start", "u1")
	if reply.Text != "You are already registered." {
		t.Errorf("got %q", reply.Text)
	}
}

func TestStartCooldown(t *testing.T) {
	f := newFixture(t)
	f.limiter.DenyCooldown = true

	reply := f.send("start", "u1")
	want := fmt.Sprintf("You must wait %s before using the start command again.", f.cfg.Booking.StartCooldown)
	if reply.Text != want {
		t.Errorf("got %q, want %q", reply.Text, want)
	}
	if u, _ := f.users.Get(context.Background(), "u1"); u != nil {
		t.Error("a cooled-down start still registered the sender")
	}
}

func TestBookTableOffersDates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", domain.RoleRegistered, false)

	reply := f.send("book_table", "u1")
	if reply.Text != "Select a date to book:" {
		t.Errorf("got %q", reply.Text)
	}
	if len(reply.Options) != f.cfg.Booking.DaysShown {
		t.Errorf("got %d date options, want %d", len(reply.Options), f.cfg.Booking.DaysShown)
	}
	for _, opt := range reply.Options {
		if _, err := domain.ParseDate(opt.Value); err != nil {
			t.Errorf("option value %q is not a date", opt.Value)
		}
	}
}

func TestBookTableFlow(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", domain.RoleRegistered, false)
	date := nextWorkingDay()

	reply := f.send("book_table", "u1", date)
	want := fmt.Sprintf("Desk 1 successfully booked for %s.", date)
	if reply.Text != want {
		t.Errorf("got %q, want %q", reply.Text, want)
	}

	reply = f.send("view_my_bookings", "u1")
	if !strings.Contains(reply.Text, date) || !strings.Contains(reply.Text, "desk 1") {
		t.Errorf("booking missing from listing: %q", reply.Text)
	}
}

func TestBookTableInvalidDateSentence(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", domain.RoleRegistered, false)

	reply := f.send("book_table", "u1", "tomorrow")
	want := `"tomorrow" is not a valid date (expected YYYY-MM-DD).`
	if reply.Text != want {
		t.Errorf("got %q, want %q", reply.Text, want)
	}
}

func TestBookTableDuplicateSentence(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", domain.RoleRegistered, false)
	date := nextWorkingDay()

	f.send("book_table", "u1", date)
	reply := f.send("book_table", "u1", date)
	want := fmt.Sprintf("You already have a booking for %s.", date)
	if reply.Text != want {
		t.Errorf("got %q, want %q", reply.Text, want)
	}
}

func TestCancelMyBookingOffersOptions(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", domain.RoleRegistered, false)
	date := nextWorkingDay()
	f.send("book_table", "u1", date)

	reply := f.send("cancel_my_booking", "u1")
	if reply.Text != "Select a booking to cancel:" {
		t.Errorf("got %q", reply.Text)
	}
	if len(reply.Options) != 1 {
		t.Fatalf("got %d options, want 1", len(reply.Options))
	}

	reply = f.send("cancel_my_booking", "u1", reply.Options[0].Value)
	if reply.Text != "Booking cancelled successfully." {
		t.Errorf("got %q", reply.Text)
	}
	if len(f.bookings.Bookings) != 0 {
		t.Error("booking row survived the cancel")
	}
}

func TestCancelMyBookingForeignDenied(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", domain.RoleRegistered, false)
	f.seed(t, "u2", domain.RoleRegistered, false)
	f.send("book_table", "u1", nextWorkingDay())

	reply := f.send("cancel_my_booking", "u2", "1")
	want := "Booking 1 belongs to another user."
	if reply.Text != want {
		t.Errorf("got %q, want %q", reply.Text, want)
	}
}

func TestCancelBookingAsAdmin(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", domain.RoleRegistered, false)
	f.seed(t, "a1", domain.RoleAdmin, false)
	f.send("book_table", "u1", nextWorkingDay())

	reply := f.send("cancel_booking", "a1", "1")
	if reply.Text != "Booking 1 cancelled successfully." {
		t.Errorf("got %q", reply.Text)
	}

	reply = f.send("cancel_booking", "a1", "42")
	if reply.Text != "No booking found with id 42." {
		t.Errorf("got %q", reply.Text)
	}
}

func TestViewAllBookingsGroupsByDate(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", domain.RoleRegistered, false)
	f.seed(t, "u2", domain.RoleRegistered, false)
	dates := domain.WorkingDays(time.Now(), 2, true)
	f.send("book_table", "u1", dates[0].Format(domain.DateFormat))
	f.send("book_table", "u2", dates[0].Format(domain.DateFormat))
	f.send("book_table", "u1", dates[1].Format(domain.DateFormat))

	reply := f.send("view_all_bookings", "u2")
	for _, d := range dates {
		if !strings.Contains(reply.Text, d.Format(domain.DateFormat)+":") {
			t.Errorf("missing date header %s in %q", d.Format(domain.DateFormat), reply.Text)
		}
	}
	if strings.Count(reply.Text, "desk ") != 3 {
		t.Errorf("got %d desk lines, want 3: %q", strings.Count(reply.Text, "desk "), reply.Text)
	}
}

func TestAddUserAndUsage(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", domain.RoleAdmin, false)

	reply := f.send("add_user", "a1", "u9")
	if reply.Text != "Usage: add_user [identity] [name]" {
		t.Errorf("got %q", reply.Text)
	}

	reply = f.send("add_user", "a1", "u9", "Nina", "K")
	if reply.Text != "User Nina K (u9) added successfully." {
		t.Errorf("got %q", reply.Text)
	}

	reply = f.send("add_user", "a1", "u9", "dup")
	if reply.Text != "User u9 already exists." {
		t.Errorf("got %q", reply.Text)
	}
}

func TestRemoveUserDemotesToGuest(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", domain.RoleAdmin, false)
	f.seed(t, "u1", domain.RoleRegistered, false)

	reply := f.send("remove_user", "a1", "u1")
	if reply.Text != "User removed successfully." {
		t.Errorf("got %q", reply.Text)
	}

	reply = f.send("view_my_bookings", "u1")
	if !strings.Contains(reply.Text, "You need to be registered") {
		t.Errorf("removed user was not demoted to guest: %q", reply.Text)
	}
}

func TestRevokeLastAdminSentence(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", domain.RoleAdmin, false)

	reply := f.send("revoke_admin", "a1", "a1")
	if reply.Text != "Cannot revoke the last admin." {
		t.Errorf("got %q", reply.Text)
	}
}

func TestBlacklistRoundTripThroughCommands(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", domain.RoleAdmin, false)
	f.seed(t, "u1", domain.RoleRegistered, false)

	if reply := f.send("blacklist_user", "a1", "u1"); reply.Text != "User blacklisted successfully." {
		t.Fatalf("got %q", reply.Text)
	}
	if reply := f.send("view_my_bookings", "u1"); reply.Text != "You are blacklisted and cannot use this bot." {
		t.Errorf("got %q", reply.Text)
	}

	if reply := f.send("unblacklist_user", "a1", "u1"); reply.Text != "User removed from the blacklist successfully." {
		t.Fatalf("got %q", reply.Text)
	}
	if reply := f.send("view_my_bookings", "u1"); reply.Text != "You have no bookings." {
		t.Errorf("got %q", reply.Text)
	}
}

func TestViewUsersStatuses(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", domain.RoleAdmin, false)
	f.seed(t, "u1", domain.RoleRegistered, false)
	f.seed(t, "u2", domain.RoleRegistered, true)

	reply := f.send("view_users", "a1")
	for _, want := range []string{
		"a1, a1, status: admin",
		"u1, u1, status: user",
		"u2, u2, status: blacklisted",
	} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("missing %q in %q", want, reply.Text)
		}
	}
}

func TestHistoryIncludesBookingIDs(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", domain.RoleAdmin, false)
	f.seed(t, "u1", domain.RoleRegistered, false)
	f.send("book_table", "u1", nextWorkingDay())

	reply := f.send("history", "a1")
	if !strings.Contains(reply.Text, "Booking history:") || !strings.Contains(reply.Text, "id: 1") {
		t.Errorf("got %q", reply.Text)
	}
}

func TestHelpNamesTheAdmin(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", domain.RoleRegistered, false)

	reply := f.send("help", "u1")
	if reply.Text != "Contact Boss if you need help." {
		t.Errorf("got %q", reply.Text)
	}
}

func TestSuperadminAlwaysAdmin(t *testing.T) {
	f := newFixture(t)

	reply := f.send("manage_users", "boss")
	if !strings.HasPrefix(reply.Text, "User management:") {
		t.Errorf("got %q", reply.Text)
	}
}
