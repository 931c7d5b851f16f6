package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/yourusername/hotsync-go/internal/domain"
	"go.uber.org/zap"
)

// NotificationService sends desktop notifications about update runs
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if n.config == nil || !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var err error
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification %q with title %q`, message, title)
		err = n.run("osascript", "-e", script)
	case "notify-send":
		err = n.run("notify-send", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// NotifyUpdateCompleted reports a finished update run
func (n *NotificationService) NotifyUpdateCompleted(packages []string) {
	n.Send("Update Completed", fmt.Sprintf("Up to date: %s", truncateString(strings.Join(packages, ", "), 60)))
}

// NotifyUpdateFailed reports a failed update run
func (n *NotificationService) NotifyUpdateFailed(message string) {
	n.Send("Update Failed", truncateString(message, 80))
}

// NotifyDownloadFailed reports a bundle that exhausted its retries
func (n *NotificationService) NotifyDownloadFailed(pkg, file string, err error) {
	n.Send("Download Failed", fmt.Sprintf("%s: %s", pkg, truncateString(file, 40)))
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
