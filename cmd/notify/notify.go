package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sensorhub/annotator/internal/app"
	"github.com/sensorhub/annotator/internal/buildinfo"
	"github.com/sensorhub/annotator/internal/conf"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/notification"
)

// Command returns a cobra command that sends a test notification through the
// configured sinks. Push services only receive error notifications.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		typ       string
		prio      string
		title     string
		message   string
		component string
		metadata  []string
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test notification to the configured push services",
		Long: `Send a test notification through the log and push sinks.

Examples:
  # Test the push configuration
  annotator notify --title="Test" --message="Hello"

  # Attach metadata
  annotator notify --metadata="file_id=5" --metadata="batch_id=abc"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ntype notification.Type
			switch typ {
			case "error":
				ntype = notification.TypeError
			case "warning":
				ntype = notification.TypeWarning
			case "success":
				ntype = notification.TypeSuccess
			case "info":
				ntype = notification.TypeInfo
			default:
				return fmt.Errorf("invalid type: %s", typ)
			}

			var nprio notification.Priority
			switch prio {
			case "high":
				nprio = notification.PriorityHigh
			case "medium":
				nprio = notification.PriorityMedium
			case "low":
				nprio = notification.PriorityLow
			default:
				return fmt.Errorf("invalid priority: %s", prio)
			}

			n := notification.NewNotification(ntype, nprio, title, message).WithComponent(component)
			for _, kv := range metadata {
				key, value, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid metadata format: %s (expected key=value)", kv)
				}
				n.WithMetadata(strings.TrimSpace(key), parseValue(strings.TrimSpace(value)))
			}

			a, err := app.New(settings, build, logger.Global().Module("app"))
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Notifier().Notify(cmd.Context(), n); err != nil {
				return fmt.Errorf("failed to send notification: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Notification sent: id=%s type=%s priority=%s", n.ID, n.Type, n.Priority)
			if len(n.Metadata) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " metadata=%d_keys", len(n.Metadata))
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&typ, "type", "error", "Notification type: error|warning|success|info")
	cmd.Flags().StringVar(&prio, "priority", "high", "Notification priority: high|medium|low")
	cmd.Flags().StringVar(&title, "title", "Test Notification", "Notification title")
	cmd.Flags().StringVar(&message, "message", "This is a test push notification", "Notification message")
	cmd.Flags().StringVar(&component, "component", "cli", "Notification component tag")
	cmd.Flags().StringSliceVar(&metadata, "metadata", nil, "Metadata key-value pairs in format key=value (supports numbers, booleans, and strings)")

	return cmd
}

// parseValue reads a number, then a boolean, and otherwise keeps the string.
func parseValue(value string) any {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
