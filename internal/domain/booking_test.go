package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2031-03-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := d.Format(DateFormat); got != "2031-03-10" {
		t.Errorf("got %s, want 2031-03-10", got)
	}

	for _, bad := range []string{"", "10.03.2031", "2031-13-01", "2031-02-30", "tomorrow", "2031-3-1"} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseDate(%q): got %v, want ErrInvalidDate", bad, err)
		}
	}
}

func TestWorkingDaysSkipsWeekends(t *testing.T) {
	// 2031-01-03 is a Friday.
	friday := time.Date(2031, 1, 3, 15, 30, 0, 0, time.UTC)

	dates := WorkingDays(friday, 3, true)
	want := []string{"2031-01-03", "2031-01-06", "2031-01-07"}
	if len(dates) != len(want) {
		t.Fatalf("got %d dates, want %d", len(dates), len(want))
	}
	for i, w := range want {
		if got := dates[i].Format(DateFormat); got != w {
			t.Errorf("dates[%d] = %s, want %s", i, got, w)
		}
	}
}

func TestWorkingDaysIncludesWeekends(t *testing.T) {
	friday := time.Date(2031, 1, 3, 0, 0, 0, 0, time.UTC)

	dates := WorkingDays(friday, 3, false)
	want := []string{"2031-01-03", "2031-01-04", "2031-01-05"}
	for i, w := range want {
		if got := dates[i].Format(DateFormat); got != w {
			t.Errorf("dates[%d] = %s, want %s", i, got, w)
		}
	}
}

func TestParseRole(t *testing.T) {
	for _, valid := range []string{"guest", "registered", "admin"} {
		if _, ok := ParseRole(valid); !ok {
			t.Errorf("ParseRole(%q) rejected a valid role", valid)
		}
	}
	for _, invalid := range []string{"", "superadmin", "Admin", "user"} {
		if _, ok := ParseRole(invalid); ok {
			t.Errorf("ParseRole(%q) accepted an invalid role", invalid)
		}
	}
}

func TestEffectivePermissionBlacklistOverridesRole(t *testing.T) {
	u := &User{Identity: "u1", Role: RoleAdmin, Blacklisted: true}
	if got := u.EffectivePermission(); got != PermissionBlacklisted {
		t.Errorf("got %s, want blacklisted", got)
	}

	u.Blacklisted = false
	if got := u.EffectivePermission(); got != PermissionAdmin {
		t.Errorf("got %s, want admin", got)
	}
}

func TestPermissionAtLeast(t *testing.T) {
	tests := []struct {
		perm Permission
		min  Permission
		want bool
	}{
		{PermissionAdmin, PermissionRegistered, true},
		{PermissionAdmin, PermissionAdmin, true},
		{PermissionRegistered, PermissionAdmin, false},
		{PermissionRegistered, PermissionRegistered, true},
		{PermissionGuest, PermissionRegistered, false},
		{PermissionGuest, PermissionGuest, true},
		{PermissionBlacklisted, PermissionGuest, false},
		{PermissionBlacklisted, PermissionBlacklisted, false},
	}
	for _, tt := range tests {
		if got := tt.perm.AtLeast(tt.min); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.perm, tt.min, got, tt.want)
		}
	}
}
