package notify

import (
	"fmt"
	"strings"
	"time"

	"roombook/internal/model"
)

const longLayout = "January 02, 2006 at 03:04 PM"

func roomList(r *model.Reservation) string {
	if len(r.Rooms) == 0 {
		return "N/A"
	}
	names := make([]string, 0, len(r.Rooms))
	for _, room := range r.Rooms {
		if room.Floor.Name != "" {
			names = append(names, fmt.Sprintf("%s (Floor %s)", room.Name, room.Floor.Name))
		} else {
			names = append(names, room.Name)
		}
	}
	return strings.Join(names, ", ")
}

func details(r *model.Reservation, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rooms: %s\n", roomList(r))
	fmt.Fprintf(&b, "Start: %s\n", r.Start.In(loc).Format(longLayout))
	fmt.Fprintf(&b, "End: %s\n", r.End.In(loc).Format(longLayout))
	if r.Kind == model.KindCamp {
		b.WriteString("Type: camp\n")
	}
	fmt.Fprintf(&b, "Status: %s", r.Status)
	return b.String()
}

func greeting(u *model.User) string {
	if u == nil {
		return "Hello,"
	}
	return fmt.Sprintf("Hello %s,", u.DisplayName())
}

func accountCreatedMessage(u *model.User) string {
	return fmt.Sprintf("%s\n\nYour account %q has been created and is pending approval. "+
		"You will be notified once an administrator has reviewed it.", greeting(u), u.Username)
}

func accountDecisionMessage(u *model.User, approved bool, siteURL string) string {
	if !approved {
		return fmt.Sprintf("%s\n\nYour account registration has been denied. "+
			"Please contact the administrator if you believe this is an error.", greeting(u))
	}
	msg := fmt.Sprintf("%s\n\nYour account has been approved. You can now log in and book rooms.", greeting(u))
	if siteURL != "" {
		msg += fmt.Sprintf("\n\nLogin at: %s/login", strings.TrimRight(siteURL, "/"))
	}
	return msg
}

func bookingCreatedMessage(r *model.Reservation, loc *time.Location) string {
	tail := "Your booking is pending approval. You will be notified once it has been reviewed."
	if r.Status == model.StatusApproved {
		tail = "Your booking has been approved."
	}
	return fmt.Sprintf("%s\n\nYour booking #%d has been created.\n\n%s\n\n%s",
		greeting(r.User), r.ID, details(r, loc), tail)
}

func bookingUpdatedMessage(r *model.Reservation, loc *time.Location) string {
	return fmt.Sprintf("%s\n\nYour booking #%d has been updated.\n\n%s", greeting(r.User), r.ID, details(r, loc))
}

func bookingCancelledMessage(r *model.Reservation, loc *time.Location) string {
	return fmt.Sprintf("%s\n\nYour booking #%d has been cancelled.\n\n%s", greeting(r.User), r.ID, details(r, loc))
}

func bookingStatusMessage(r *model.Reservation, loc *time.Location) string {
	return fmt.Sprintf("%s\n\nThe status of your booking #%d is now %s.\n\n%s",
		greeting(r.User), r.ID, r.Status, details(r, loc))
}

func reminderMessage(r *model.Reservation, loc *time.Location) string {
	return fmt.Sprintf("%s\n\nReminder: your booking #%d starts %s.\n\n%s",
		greeting(r.User), r.ID, r.Start.In(loc).Format(longLayout), details(r, loc))
}

func adminNewBookingMessage(r *model.Reservation, loc *time.Location) string {
	who := "unknown user"
	if r.User != nil {
		who = r.User.Username
	}
	return fmt.Sprintf("New booking #%d by %s awaits review.\n\n%s", r.ID, who, details(r, loc))
}

func adminNewUserMessage(u *model.User) string {
	return fmt.Sprintf("New account awaiting approval: %s (%s %s, %s)",
		u.Username, u.FirstName, u.LastName, u.Email)
}
