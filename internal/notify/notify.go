// Package notify abstracts the OS-level notification the original pushes
// through system_notification_push: a title/description pair surfacing to
// the user outside the workbench's own window. No corpus library talks to
// a desktop notification center, so the default implementation logs
// structurally; internal/alerts separately emits an AlertTriggered event
// over the event bus for any connected client to pick up.
package notify

import "github.com/rs/zerolog"

// Notifier pushes a one-line title/description notification to the user.
type Notifier interface {
	Push(title, description string) error
}

// LogNotifier is the default Notifier: it writes the notification to the
// structured log.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier builds the default notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

// Push logs the notification. The caller (internal/alerts) supplies a title
// and description already stripped of anything it doesn't want surfaced.
func (n *LogNotifier) Push(title, description string) error {
	n.log.Info().Str("title", title).Str("description", description).Msg("notification")
	return nil
}
