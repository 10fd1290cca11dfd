package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/notification"
	"github.com/spec-kit/attendance-hub/internal/userdata"
)

var notifyCmd = &cobra.Command{
	Use:   "notify <kind>",
	Short: "Send a notification",
	Long: `Send one notification of the given kind: attendance-reminder,
report-ready, system-update or weekly-summary. Without --to the session
user is the recipient.

Examples:
  attendancectl notify attendance-reminder
  attendancectl notify report-ready --to awa@example.com --report "Mars 2024"
  attendancectl notify weekly-summary --present 4 --late 1 --hours 35.5`,
	Args: cobra.ExactArgs(1),
	RunE: runNotify,
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Inspect the in-app inbox",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications, newest first",
	Args:  cobra.NoArgs,
	RunE:  runNotificationsList,
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Mark one notification, or all with --all, as read",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runNotificationsRead,
}

var notificationsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every notification",
	Args:  cobra.NoArgs,
	RunE:  runNotificationsClear,
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change notification preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the notification preferences",
	Args:  cobra.NoArgs,
	RunE:  runPrefsShow,
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <flag=bool>...",
	Short: "Change preference flags",
	Long: `Change one or more preference flags. Flags: email, push,
pushNotifications, attendanceReminders, reportAlerts, systemUpdates,
weeklySummary.

Example:
  attendancectl prefs set push=false reportAlerts=true`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrefsSet,
}

var (
	notifyTo      string
	notifyName    string
	notifyReport  string
	notifyMessage string
	notifyPresent int
	notifyLate    int
	notifyAbsent  int
	notifyHours   float64

	readAll bool
)

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.Flags().StringVar(&notifyTo, "to", "", "Recipient email (default: session user)")
	notifyCmd.Flags().StringVar(&notifyName, "name", "", "Recipient name (default: session user's name)")
	notifyCmd.Flags().StringVar(&notifyReport, "report", "", "Report name for report-ready")
	notifyCmd.Flags().StringVar(&notifyMessage, "message", "", "Message for system-update")
	notifyCmd.Flags().IntVar(&notifyPresent, "present", 0, "Days present for weekly-summary")
	notifyCmd.Flags().IntVar(&notifyLate, "late", 0, "Late arrivals for weekly-summary")
	notifyCmd.Flags().IntVar(&notifyAbsent, "absent", 0, "Days absent for weekly-summary")
	notifyCmd.Flags().Float64Var(&notifyHours, "hours", 0, "Hours worked for weekly-summary")

	rootCmd.AddCommand(notificationsCmd)
	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsReadCmd)
	notificationsCmd.AddCommand(notificationsClearCmd)
	notificationsReadCmd.Flags().BoolVar(&readAll, "all", false, "Mark every notification as read")

	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsSetCmd)
}

func runNotify(cmd *cobra.Command, args []string) error {
	kind := domain.NotificationKind(args[0])
	if !kind.Valid() {
		return fmt.Errorf("unknown notification kind %q", args[0])
	}

	to, name := notifyTo, notifyName
	if to == "" {
		profile, ok := rt.profiles.Get(cmd.Context())
		if !ok {
			return userdata.ErrNoSession
		}
		to = profile.Email
		if name == "" {
			name = profile.FullName
		}
	}

	payload := notification.Payload{ReportName: notifyReport, Message: notifyMessage}
	if kind == domain.KindWeeklySummary {
		payload.Summary = &notification.WeeklySummary{
			PresentDays: notifyPresent,
			LateDays:    notifyLate,
			AbsentDays:  notifyAbsent,
			HoursWorked: notifyHours,
		}
	}

	res := rt.dispatcher.Send(cmd.Context(), kind, to, name, payload)
	out := cmd.OutOrStdout()
	if !res.Sent {
		fmt.Fprintf(out, "Not sent: %s\n", res.Reason)
		return nil
	}
	fmt.Fprintf(out, "Sent %s (%s) to %s, %d unread\n", res.Notification.ID, res.Notification.Title, to, res.UnreadCount)
	for _, a := range res.Attempts {
		line := fmt.Sprintf("  %-6s %s", a.Channel, a.Status)
		if a.Error != "" {
			line += ": " + a.Error
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func runNotificationsList(cmd *cobra.Command, _ []string) error {
	list := rt.dispatcher.List(cmd.Context())
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No notifications.")
		return nil
	}
	for _, n := range list {
		mark := " "
		if !n.IsRead {
			mark = "*"
		}
		fmt.Fprintf(out, "%s %s  %s  %s: %s\n", mark, n.ID, n.CreatedAt.Format("2006-01-02 15:04"), n.Title, n.Message)
	}
	fmt.Fprintf(out, "%d unread\n", rt.dispatcher.UnreadCount(cmd.Context()))
	return nil
}

func runNotificationsRead(cmd *cobra.Command, args []string) error {
	switch {
	case readAll:
		if err := rt.dispatcher.MarkAllRead(cmd.Context()); err != nil {
			return err
		}
	case len(args) == 1:
		if err := rt.dispatcher.MarkRead(cmd.Context(), args[0]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("give a notification id or --all")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d unread\n", rt.dispatcher.UnreadCount(cmd.Context()))
	return nil
}

func runNotificationsClear(cmd *cobra.Command, _ []string) error {
	if err := rt.dispatcher.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Inbox cleared")
	return nil
}

func runPrefsShow(cmd *cobra.Command, _ []string) error {
	return printPreferences(cmd.OutOrStdout(), rt.dispatcher.Preferences(cmd.Context()))
}

func runPrefsSet(cmd *cobra.Command, args []string) error {
	assignments, err := parseAssignments(args)
	if err != nil {
		return err
	}
	prefs, err := applyPreferenceFlags(rt.dispatcher.Preferences(cmd.Context()), assignments)
	if err != nil {
		return err
	}
	if err := rt.dispatcher.SavePreferences(cmd.Context(), prefs); err != nil {
		return err
	}
	return printPreferences(cmd.OutOrStdout(), prefs)
}

// applyPreferenceFlags sets flags by their stored JSON names.
func applyPreferenceFlags(prefs domain.NotificationPreferences, assignments map[string]string) (domain.NotificationPreferences, error) {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return prefs, err
	}
	var flags map[string]bool
	if err := json.Unmarshal(raw, &flags); err != nil {
		return prefs, err
	}
	for key, value := range assignments {
		if _, known := flags[key]; !known {
			return prefs, fmt.Errorf("unknown preference %q", key)
		}
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return prefs, fmt.Errorf("preference %s: %w", key, err)
		}
		flags[key] = b
	}
	// A single push flag drives both names.
	_, setPush := assignments["push"]
	_, setLegacy := assignments["pushNotifications"]
	if setPush && !setLegacy {
		flags["pushNotifications"] = flags["push"]
	} else if setLegacy && !setPush {
		flags["push"] = flags["pushNotifications"]
	}

	raw, err = json.Marshal(flags)
	if err != nil {
		return prefs, err
	}
	var out domain.NotificationPreferences
	if err := json.Unmarshal(raw, &out); err != nil {
		return prefs, err
	}
	return out, nil
}

func printPreferences(out io.Writer, prefs domain.NotificationPreferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	var flags map[string]bool
	if err := json.Unmarshal(raw, &flags); err != nil {
		return err
	}
	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%-20s %t\n", k, flags[k])
	}
	return nil
}
