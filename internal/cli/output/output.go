package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/learnhub/server/internal/cli/client"
)

// Out is where every printer writes.
var Out io.Writer = os.Stdout

// JSON prints v as indented JSON.
func JSON(v interface{}) {
	enc := json.NewEncoder(Out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// UserInfo prints a single user's details.
func UserInfo(u client.User) {
	w := tabwriter.NewWriter(Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Email:\t%s\n", u.Email)
	fmt.Fprintf(w, "Name:\t%s\n", deref(u.Name))
	fmt.Fprintf(w, "Role:\t%s\n", u.Role)
	fmt.Fprintf(w, "Active:\t%v\n", u.IsActive)
	fmt.Fprintf(w, "ID:\t%s\n", u.ID)
	if u.FirebaseUID != nil {
		fmt.Fprintf(w, "Provider UID:\t%s\n", *u.FirebaseUID)
	}
	if u.LineUserID != nil {
		fmt.Fprintf(w, "LINE:\t%s\n", *u.LineUserID)
	}
	if u.LastLoginAt != nil {
		fmt.Fprintf(w, "Last Login:\t%s\n", u.LastLoginAt.Format(time.RFC3339))
	}
	if !u.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:\t%s\n", u.CreatedAt.Format(time.RFC3339))
	}
	w.Flush()
}

// UserTable prints users as a table.
func UserTable(users []client.User) {
	if len(users) == 0 {
		fmt.Fprintln(Out, "No users found.")
		return
	}

	w := tabwriter.NewWriter(Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tNAME\tROLE\tACTIVE\tLAST LOGIN\tID")
	for _, u := range users {
		lastLogin := "never"
		if u.LastLoginAt != nil {
			lastLogin = RelativeTime(*u.LastLoginAt)
		}
		active := "yes"
		if !u.IsActive {
			active = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", u.Email, orDash(deref(u.Name)), u.Role, active, lastLogin, u.ID)
	}
	w.Flush()
}

// AuditTable prints audit entries, newest first as returned by the server.
func AuditTable(logs []client.AuditLog) {
	if len(logs) == 0 {
		fmt.Fprintln(Out, "No audit entries found.")
		return
	}

	w := tabwriter.NewWriter(Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tACTION\tACTOR\tIP\tDETAILS")
	for _, l := range logs {
		actor := "-"
		if l.UserID != nil {
			actor = *l.UserID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", RelativeTime(l.CreatedAt), l.Action, actor, orDash(l.IPAddress), formatDetails(l.Details))
	}
	w.Flush()
}

// RelativeTime formats a timestamp relative to now (e.g. "2h ago", "3d ago").
func RelativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

func formatDetails(details map[string]interface{}) string {
	if len(details) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, " ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
