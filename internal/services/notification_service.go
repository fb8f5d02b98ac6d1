package services

import (
	"fmt"
	"strings"
	"sync"

	"github.com/containrrr/shoutrrr"

	"github.com/Wikid82/aegis/internal/logger"
	"github.com/Wikid82/aegis/internal/models"
	"github.com/Wikid82/aegis/internal/util"
	"github.com/Wikid82/aegis/internal/version"
)

// NotificationService pushes action transitions to external channels through
// shoutrrr (Slack, Discord, Teams, generic webhooks, ...). Delivery is
// asynchronous and best effort; failures are logged only.
type NotificationService struct {
	urls []string
	send func(url, message string) error
	wg   sync.WaitGroup
}

// NewNotificationService returns a NotificationService for the given shoutrrr URLs.
func NewNotificationService(urls []string) *NotificationService {
	return &NotificationService{urls: urls, send: shoutrrr.Send}
}

// NotifyTransition implements TransitionNotifier. Rejected attempts are not
// pushed; they stay in the execution log.
func (s *NotificationService) NotifyTransition(rec *models.ActionExecution, entry models.ActionLogEntry) {
	if len(s.urls) == 0 || entry.Outcome == models.OutcomeRejected {
		return
	}
	msg := FormatTransition(rec, entry)

	for _, url := range s.urls {
		s.wg.Add(1)
		go func(url string) {
			defer s.wg.Done()
			// Validate HTTP/HTTPS destinations used by shoutrrr to reduce SSRF risk
			if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
				if _, err := util.ValidateWebhookURL(url, false); err != nil {
					logger.Log().WithError(err).Warn("Skipping notification due to invalid destination")
					return
				}
			}
			if err := s.send(url, msg); err != nil {
				logger.Log().WithError(err).WithField("action_id", rec.ID).Warn("Failed to send action notification")
			}
		}(url)
	}
}

// Wait blocks until in-flight notifications are delivered or have failed.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

// FormatTransition renders a chat-friendly summary of one transition.
func FormatTransition(rec *models.ActionExecution, entry models.ActionLogEntry) string {
	title := fmt.Sprintf("[%s] %s %s %s", version.Name, rec.Type, entry.Operation, entry.Outcome)
	lines := []string{
		title,
		"",
		fmt.Sprintf("Action: %s", rec.ID),
		fmt.Sprintf("Conversation: %s", rec.ConversationID),
		fmt.Sprintf("Status: %s", rec.DeriveStatus()),
	}
	if entry.Actor != "" {
		lines = append(lines, fmt.Sprintf("By: %s", entry.Actor))
	}
	if entry.Detail != "" {
		lines = append(lines, fmt.Sprintf("Detail: %s", util.SanitizeForLog(entry.Detail)))
	}
	return strings.Join(lines, "\n")
}
