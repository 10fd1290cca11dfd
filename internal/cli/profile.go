package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/userdata"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit the session user's profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged profile",
	Long: `Print the session user's profile merged from currentUser, users and
the company employee list. Fields use the persisted (French) names.`,
	Args: cobra.NoArgs,
	RunE: runProfileShow,
}

var profileSetCmd = &cobra.Command{
	Use:   "set <field=value>...",
	Short: "Update profile fields",
	Long: `Update one or more profile fields in every namespace that holds the
session user. Alias spellings (phone, department, fullName...) are accepted.

Example:
  attendancectl profile set telephone=0600000000 departement=RH`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProfileSet,
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start or end the local session",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <email>",
	Short: "Make a registered user the session user",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionStart,
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "Remove the session user",
	Args:  cobra.NoArgs,
	RunE:  runSessionEnd,
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)

	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
}

func runProfileShow(cmd *cobra.Command, _ []string) error {
	profile, ok := rt.profiles.Get(cmd.Context())
	if !ok {
		return userdata.ErrNoSession
	}
	return printProfile(cmd.OutOrStdout(), profile)
}

func runProfileSet(cmd *cobra.Command, args []string) error {
	fields, err := parseAssignments(args)
	if err != nil {
		return err
	}
	patch := make(map[string]any, len(fields))
	for k, v := range fields {
		patch[k] = v
	}
	profile, err := rt.profiles.Update(cmd.Context(), patch)
	if err != nil {
		return err
	}
	return printProfile(cmd.OutOrStdout(), profile)
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	rec, err := rt.profiles.FindUser(cmd.Context(), strings.ToLower(strings.TrimSpace(args[0])))
	if err != nil {
		if errors.Is(err, userdata.ErrUserNotFound) {
			return fmt.Errorf("%s is not registered", args[0])
		}
		return err
	}
	if err := rt.profiles.StartSession(cmd.Context(), rec); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session started for %s\n", rec.Email())
	return nil
}

func runSessionEnd(cmd *cobra.Command, _ []string) error {
	if err := rt.profiles.EndSession(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Session ended")
	return nil
}

func printProfile(out io.Writer, profile domain.UserProfile) error {
	rec := profile.Record()
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := rec[k]
		if s, ok := v.(string); ok {
			fmt.Fprintf(out, "%-16s %s\n", k, s)
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-16s %s\n", k, raw)
	}
	return nil
}

// parseAssignments splits key=value arguments.
func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out[key] = value
	}
	return out, nil
}
