// Package dispatch routes inbound command records to their handlers. It is
// the trust boundary of the core: every command resolves the sender's
// permission before any store access, and every error is converted into a
// plain-language reply so a failing command never takes the process down.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deskly/deskbot/internal/domain"
	"github.com/deskly/deskbot/internal/service"
	"github.com/deskly/deskbot/pkg/config"
	"github.com/deskly/deskbot/pkg/logger"
	"github.com/deskly/deskbot/pkg/ratelimit"
)

type handlerFunc func(ctx context.Context, cmd domain.Command) (*domain.Reply, error)

type commandSpec struct {
	minPermission domain.Permission
	handler       handlerFunc
}

type Dispatcher struct {
	access   service.AccessService
	bookings service.BookingService
	users    service.UserService
	limiter  ratelimit.Limiter
	cfg      *config.Config
	registry map[string]commandSpec
}

func New(
	access service.AccessService,
	bookings service.BookingService,
	users service.UserService,
	limiter ratelimit.Limiter,
	cfg *config.Config,
) *Dispatcher {
	d := &Dispatcher{
		access:   access,
		bookings: bookings,
		users:    users,
		limiter:  limiter,
		cfg:      cfg,
	}

	d.registry = map[string]commandSpec{
		"start":             {domain.PermissionGuest, d.start},
		"help":              {domain.PermissionRegistered, d.help},
		"book_table":        {domain.PermissionRegistered, d.bookTable},
		"cancel_my_booking": {domain.PermissionRegistered, d.cancelMyBooking},
		"view_my_bookings":  {domain.PermissionRegistered, d.viewMyBookings},
		"view_all_bookings": {domain.PermissionRegistered, d.viewAllBookings},
		"manage_users":      {domain.PermissionAdmin, d.manageUsers},
		"add_user":          {domain.PermissionAdmin, d.addUser},
		"make_admin":        {domain.PermissionAdmin, d.makeAdmin},
		"revoke_admin":      {domain.PermissionAdmin, d.revokeAdmin},
		"blacklist_user":    {domain.PermissionAdmin, d.blacklistUser},
		"unblacklist_user":  {domain.PermissionAdmin, d.unblacklistUser},
		"remove_user":       {domain.PermissionAdmin, d.removeUser},
		"view_users":        {domain.PermissionAdmin, d.viewUsers},
		"history":           {domain.PermissionAdmin, d.history},
		"cancel_booking":    {domain.PermissionAdmin, d.cancelBooking},
	}

	return d
}

// Dispatch processes one command and always produces a reply.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd domain.Command) *domain.Reply {
	ctx = context.WithValue(ctx, logger.SenderIDKey, cmd.Sender)

	if limit := d.cfg.Booking.RateLimitPerMinute; limit > 0 {
		ok, _ := d.limiter.Allow(ctx, "commands:"+cmd.Sender, limit, time.Minute)
		if !ok {
			return textReply("Too many requests. Try again later.")
		}
	}

	spec, known := d.registry[cmd.Name]
	if !known {
		logger.InfoContext(ctx, "Unknown command", "command", cmd.Name)
		return textReply("Unknown command.")
	}

	perm, err := d.access.Resolve(ctx, cmd.Sender)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to resolve permission", "error", err, "command", cmd.Name)
		return genericFailure()
	}

	if perm == domain.PermissionBlacklisted {
		logger.InfoContext(ctx, "Blacklisted sender rejected", "command", cmd.Name)
		return textReply("You are blacklisted and cannot use this bot.")
	}

	if !perm.AtLeast(spec.minPermission) {
		logger.InfoContext(ctx, "Command rejected", "command", cmd.Name, "permission", perm.String())
		if spec.minPermission == domain.PermissionAdmin {
			return textReply("You are not authorized to use this command.")
		}
		return textReply("You need to be registered to use this command. Use start to register.")
	}

	reply, err := spec.handler(ctx, cmd)
	if err != nil {
		return d.replyForError(ctx, cmd, err)
	}
	return reply
}

func (d *Dispatcher) replyForError(ctx context.Context, cmd domain.Command, err error) *domain.Reply {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrConflict,
		domain.ErrInvalidDate,
		domain.ErrPermissionDenied,
		domain.ErrConstraint,
		domain.ErrInvariant,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			logger.InfoContext(ctx, "Command failed", "command", cmd.Name, "error", err)
			return textReply(sentenceFor(err, s))
		}
	}

	logger.ErrorContext(ctx, "Command failed unexpectedly", "command", cmd.Name, "error", err)
	return genericFailure()
}

// sentenceFor turns a wrapped sentinel error into a user-facing sentence by
// stripping the sentinel prefix from the wrap text.
func sentenceFor(err, sentinel error) string {
	msg := err.Error()
	if cut, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		msg = cut
	}
	if msg == "" {
		msg = sentinel.Error()
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}

func genericFailure() *domain.Reply {
	return textReply("An error occurred. Please try again later.")
}

func textReply(text string) *domain.Reply {
	return &domain.Reply{Text: text}
}

// ---------- user commands ----------

func (d *Dispatcher) start(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	if d.cfg.Booking.StartCooldown > 0 {
		ok, _ := d.limiter.Cooldown(ctx, "start:"+cmd.Sender, d.cfg.Booking.StartCooldown)
		if !ok {
			return textReply(fmt.Sprintf("You must wait %s before using the start command again.", d.cfg.Booking.StartCooldown)), nil
		}
	}

	user, created, err := d.users.Register(ctx, cmd.Sender, cmd.SenderName)
	if err != nil {
		return nil, err
	}
	if !created {
		return textReply("You are already registered."), nil
	}

	logger.InfoContext(ctx, "User registered", "identity", user.Identity)
	return &domain.Reply{
		Text: fmt.Sprintf("Welcome, %s! You are registered now.", user.DisplayName),
		Options: []domain.Option{
			{Label: "Book a desk", Value: "book_table"},
			{Label: "View my bookings", Value: "view_my_bookings"},
			{Label: "View all bookings", Value: "view_all_bookings"},
		},
	}, nil
}

func (d *Dispatcher) help(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	return textReply(fmt.Sprintf("Contact %s if you need help.", d.cfg.Admin.DisplayName)), nil
}

func (d *Dispatcher) bookTable(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	if len(cmd.Args) == 0 {
		dates := d.bookings.DateOptions()
		options := make([]domain.Option, 0, len(dates))
		for _, date := range dates {
			options = append(options, domain.Option{
				Label: date.Format("2006-01-02 (Mon)"),
				Value: date.Format(domain.DateFormat),
			})
		}
		return &domain.Reply{Text: "Select a date to book:", Options: options}, nil
	}

	date, err := domain.ParseDate(cmd.Args[0])
	if err != nil {
		return nil, err
	}

	desk := 0
	if len(cmd.Args) > 1 {
		desk, err = parsePositiveInt(cmd.Args[1])
		if err != nil {
			return textReply("Usage: book_table [date] [desk]"), nil
		}
	}

	booking, err := d.bookings.Book(ctx, cmd.Sender, date, desk)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Booking created", "booking_id", booking.ID, "date", booking.DateString(), "desk", booking.Desk)
	return textReply(fmt.Sprintf("Desk %d successfully booked for %s.", booking.Desk, booking.DateString())), nil
}

func (d *Dispatcher) cancelMyBooking(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	if len(cmd.Args) == 0 {
		bookings, err := d.bookings.ListUpcoming(ctx, cmd.Sender)
		if err != nil {
			return nil, err
		}
		if len(bookings) == 0 {
			return textReply("You have no upcoming bookings to cancel."), nil
		}

		options := make([]domain.Option, 0, len(bookings))
		for _, b := range bookings {
			options = append(options, domain.Option{
				Label: fmt.Sprintf("Cancel desk %d on %s", b.Desk, b.DateString()),
				Value: fmt.Sprintf("%d", b.ID),
			})
		}
		return &domain.Reply{Text: "Select a booking to cancel:", Options: options}, nil
	}

	id, err := parseID(cmd.Args[0])
	if err != nil {
		return textReply("Usage: cancel_my_booking [booking_id]"), nil
	}

	if err := d.bookings.Cancel(ctx, cmd.Sender, id, false); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Booking canceled by owner", "booking_id", id)
	return textReply("Booking cancelled successfully."), nil
}

func (d *Dispatcher) viewMyBookings(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	bookings, err := d.bookings.ListUpcoming(ctx, cmd.Sender)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return textReply("You have no bookings."), nil
	}

	var sb strings.Builder
	sb.WriteString("Your bookings:\n")
	for _, b := range bookings {
		fmt.Fprintf(&sb, "\n%s: desk %d", b.DateString(), b.Desk)
	}
	return textReply(sb.String()), nil
}

func (d *Dispatcher) viewAllBookings(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	bookings, err := d.bookings.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return textReply("There are no bookings."), nil
	}

	names, err := d.displayNames(ctx)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("All bookings:\n")
	lastDate := ""
	for _, b := range bookings {
		if b.DateString() != lastDate {
			lastDate = b.DateString()
			fmt.Fprintf(&sb, "\n%s:\n", lastDate)
		}
		fmt.Fprintf(&sb, "  desk %d, %s\n", b.Desk, names.lookup(b.OwnerIdentity))
	}
	return textReply(strings.TrimRight(sb.String(), "\n")), nil
}

// ---------- admin commands ----------

func (d *Dispatcher) manageUsers(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	text := "User management:\n\n" +
		"add_user [identity] [name] - Add a new user\n" +
		"make_admin [identity] - Make a user an admin\n" +
		"revoke_admin [identity] - Revoke admin status\n" +
		"blacklist_user [identity] - Blacklist a user\n" +
		"unblacklist_user [identity] - Remove a user from the blacklist\n" +
		"remove_user [identity] - Remove a user\n" +
		"view_users - View all users and their status\n" +
		"history - View booking history for the past 2 weeks\n" +
		"cancel_booking [booking_id] - Cancel any booking by its id"

	return &domain.Reply{
		Text: text,
		Options: []domain.Option{
			{Label: "View users", Value: "view_users"},
			{Label: "Booking history", Value: "history"},
		},
	}, nil
}

func (d *Dispatcher) addUser(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	if len(cmd.Args) < 2 {
		return textReply("Usage: add_user [identity] [name]"), nil
	}

	identity := cmd.Args[0]
	name := strings.Join(cmd.Args[1:], " ")

	user, err := d.users.AddUser(ctx, cmd.Sender, identity, name)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "User added", "identity", user.Identity, "actor", cmd.Sender)
	return textReply(fmt.Sprintf("User %s (%s) added successfully.", user.DisplayName, user.Identity)), nil
}

func (d *Dispatcher) makeAdmin(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	return d.rosterAction(ctx, cmd, "make_admin", d.users.Promote, "User updated to admin successfully.")
}

func (d *Dispatcher) revokeAdmin(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	return d.rosterAction(ctx, cmd, "revoke_admin", d.users.Revoke, "Admin privileges revoked successfully.")
}

func (d *Dispatcher) blacklistUser(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	return d.rosterAction(ctx, cmd, "blacklist_user", d.users.Blacklist, "User blacklisted successfully.")
}

func (d *Dispatcher) unblacklistUser(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	return d.rosterAction(ctx, cmd, "unblacklist_user", d.users.Unblacklist, "User removed from the blacklist successfully.")
}

func (d *Dispatcher) removeUser(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	return d.rosterAction(ctx, cmd, "remove_user", d.users.RemoveUser, "User removed successfully.")
}

// rosterAction handles the single-argument admin mutations on the roster.
func (d *Dispatcher) rosterAction(
	ctx context.Context,
	cmd domain.Command,
	name string,
	action func(ctx context.Context, actor, identity string) error,
	success string,
) (*domain.Reply, error) {
	if len(cmd.Args) != 1 {
		return textReply(fmt.Sprintf("Usage: %s [identity]", name)), nil
	}

	if err := action(ctx, cmd.Sender, cmd.Args[0]); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Roster updated", "command", name, "target", cmd.Args[0], "actor", cmd.Sender)
	return textReply(success), nil
}

func (d *Dispatcher) viewUsers(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	users, err := d.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return textReply("No users found."), nil
	}

	var sb strings.Builder
	sb.WriteString("List of all users:\n")
	for _, u := range users {
		status := "user"
		switch {
		case u.Blacklisted:
			status = "blacklisted"
		case u.Role == domain.RoleAdmin:
			status = "admin"
		}
		fmt.Fprintf(&sb, "\n%s, %s, status: %s", u.Identity, u.DisplayName, status)
	}
	return textReply(sb.String()), nil
}

func (d *Dispatcher) history(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	since := domain.Today(time.Now()).AddDate(0, 0, -d.cfg.Booking.HistoryDays)
	bookings, err := d.bookings.History(ctx, since)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return textReply("There are no bookings."), nil
	}

	names, err := d.displayNames(ctx)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("Booking history:\n")
	lastDate := ""
	for _, b := range bookings {
		if b.DateString() != lastDate {
			lastDate = b.DateString()
			fmt.Fprintf(&sb, "\n%s:\n", lastDate)
		}
		fmt.Fprintf(&sb, "  desk %d, %s, id: %d\n", b.Desk, names.lookup(b.OwnerIdentity), b.ID)
	}
	return textReply(strings.TrimRight(sb.String(), "\n")), nil
}

func (d *Dispatcher) cancelBooking(ctx context.Context, cmd domain.Command) (*domain.Reply, error) {
	if len(cmd.Args) != 1 {
		return textReply("Usage: cancel_booking [booking_id]"), nil
	}

	id, err := parseID(cmd.Args[0])
	if err != nil {
		return textReply("Usage: cancel_booking [booking_id]"), nil
	}

	if err := d.bookings.Cancel(ctx, cmd.Sender, id, true); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Booking canceled by admin", "booking_id", id, "actor", cmd.Sender)
	return textReply(fmt.Sprintf("Booking %d cancelled successfully.", id)), nil
}

// ---------- helpers ----------

type nameMap map[string]string

func (m nameMap) lookup(identity string) string {
	if name, ok := m[identity]; ok {
		return name
	}
	return identity
}

func (d *Dispatcher) displayNames(ctx context.Context) (nameMap, error) {
	users, err := d.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	m := make(nameMap, len(users))
	for _, u := range users {
		m[u.Identity] = u.DisplayName
	}
	return m, nil
}
