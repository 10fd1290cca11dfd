// Package cli implements attendancectl, which operates on the same storage
// as the API server.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/config"
	"github.com/spec-kit/attendance-hub/internal/events"
	"github.com/spec-kit/attendance-hub/internal/notification"
	"github.com/spec-kit/attendance-hub/internal/observability"
	"github.com/spec-kit/attendance-hub/internal/persistence"
	"github.com/spec-kit/attendance-hub/internal/push"
	"github.com/spec-kit/attendance-hub/internal/userdata"
)

// cliEnv holds what commands operate on. It is opened before each command
// and closed after it.
type cliEnv struct {
	logger     *zap.Logger
	storage    *persistence.Storage
	profiles   *userdata.Store
	dispatcher *notification.Dispatcher
}

var (
	rt *cliEnv

	flagDriver string
	flagPath   string
)

var rootCmd = &cobra.Command{
	Use:   "attendancectl",
	Short: "Inspect and edit attendance-hub profile and notification data",
	Long: `attendancectl reads and writes the same key-value storage the API
server uses. Storage is selected with STORAGE_DRIVER / STORAGE_PATH or the
--driver and --path flags.

Examples:
  attendancectl session start awa@example.com
  attendancectl profile set telephone=0600000000
  attendancectl notify report-ready --report "Mars 2024"
  attendancectl notifications list`,
	SilenceUsage:       true,
	PersistentPreRunE:  openRuntime,
	PersistentPostRunE: closeRuntime,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDriver, "driver", "", "Storage driver (memory, file, bolt, redis, postgres)")
	rootCmd.PersistentFlags().StringVar(&flagPath, "path", "", "Storage path for the file and bolt drivers")
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func openRuntime(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagDriver != "" {
		cfg.Storage.Driver = strings.ToLower(flagDriver)
	}
	if flagPath != "" {
		cfg.Storage.Path = flagPath
	}
	if os.Getenv("LOG_LEVEL") == "" {
		cfg.Logger.Level = "warn"
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	storage, err := persistence.OpenStorage(cmd.Context(), *cfg, logger)
	if err != nil {
		return err
	}

	initial, err := push.ParsePermissionState(cfg.Notification.PushPermission)
	if err != nil {
		_ = storage.Close()
		return err
	}
	prompter, err := newPrompter(cfg.Notification.PromptAnswer, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		_ = storage.Close()
		return err
	}
	host := push.NewStoredHost(storage.Store, initial, prompter, logger)

	bus := events.NewInMemoryDispatcher()
	var pushSender notification.PushSender = printSender{out: cmd.OutOrStdout()}
	if cfg.Notification.WebhookURL != "" {
		pushSender = notification.WebhookSender{URL: cfg.Notification.WebhookURL}
	}
	rt = &cliEnv{
		logger:   logger,
		storage:  storage,
		profiles: userdata.NewStore(storage.Store, bus, logger),
		dispatcher: notification.NewDispatcher(notification.Dependencies{
			Store:       storage.Store,
			Events:      bus,
			Permissions: host,
			Email:       notification.NewEmailChannel(cfg.Notification.EmailFrom, logger),
			Push:        notification.NewPushChannel(host, pushSender, nil, logger),
			Logger:      logger,
		}),
	}
	return nil
}

func closeRuntime(_ *cobra.Command, _ []string) error {
	if rt == nil {
		return nil
	}
	rt.dispatcher.Wait()
	_ = rt.logger.Sync()
	err := rt.storage.Close()
	rt = nil
	return err
}

// newPrompter answers push prompts with a fixed state, or asks on the
// terminal when answer is "ask".
func newPrompter(answer string, in io.Reader, out io.Writer) (push.Prompter, error) {
	if strings.EqualFold(strings.TrimSpace(answer), "ask") {
		return push.PrompterFunc(func(ctx context.Context) (push.PermissionState, error) {
			fmt.Fprint(out, "Autoriser les notifications push ? [o/n] ")
			line, err := bufio.NewReader(in).ReadString('\n')
			if err != nil && line == "" {
				return push.Default, nil
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "o", "oui", "y", "yes":
				return push.Granted, nil
			case "n", "non", "no":
				return push.Denied, nil
			}
			return push.Default, nil
		}), nil
	}
	state, err := push.ParsePermissionState(answer)
	if err != nil {
		return nil, err
	}
	return push.FixedAnswer(state), nil
}

// printSender shows push notifications on the terminal.
type printSender struct {
	out io.Writer
}

func (s printSender) Show(_ context.Context, msg notification.Message) error {
	_, err := fmt.Fprintf(s.out, "[push] %s: %s\n", msg.Title, msg.Body)
	return err
}
