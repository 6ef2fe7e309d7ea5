package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// NotificationConfig holds the addresses and links used when rendering notices
type NotificationConfig struct {
	// FinanceEmail receives notices about requests entering finance review
	FinanceEmail string
	FinanceName  string
	// BaseURL prefixes request links; empty omits links
	BaseURL string
}

// NotificationService turns status changes into messages
type NotificationService interface {
	// HandleStatusChanged is a dispatcher handler for event.TypeStatusChanged
	HandleStatusChanged(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	directory port.UserDirectory
	senders   []port.MessageSender
	config    NotificationConfig
	logger    Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	directory port.UserDirectory,
	senders []port.MessageSender,
	config NotificationConfig,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		directory: directory,
		senders:   senders,
		config:    config,
		logger:    logger,
	}
}

// HandleStatusChanged renders the notices for the transition and sends them on every channel.
// Errors of individual deliveries are joined and returned for the dispatcher to log.
func (s *notificationServiceImpl) HandleStatusChanged(ctx context.Context, evt *event.Event) error {
	change := evt.StatusChange()

	action, err := domainwf.ParseAction(change.Action)
	if err != nil {
		return fmt.Errorf("status change event %s: %w", evt.ID, err)
	}
	newStatus, err := domainwf.ParseState(change.NewStatus)
	if err != nil {
		return fmt.Errorf("status change event %s: %w", evt.ID, err)
	}

	planned := notices(action, newStatus)
	if len(planned) == 0 {
		return nil
	}

	submitter, err := s.contact(ctx, change.SubmitterID)
	if err != nil {
		return err
	}
	actorName := change.ActorID
	if actor, err := s.contact(ctx, change.ActorID); err == nil && actor != nil && actor.Name != "" {
		actorName = actor.Name
	}

	var errs []error
	sent := 0
	for _, n := range planned {
		to, err := s.resolve(ctx, n.to, submitter)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if to == nil {
			s.logger.Info("No recipient for notice, skipping",
				"request_id", change.RequestID,
				"action", change.Action,
				"recipient", n.to,
			)
			continue
		}

		subject, text, html, err := n.render(noticeData{
			RecipientName: displayName(to),
			ActorName:     actorName,
			Title:         change.Title,
			Amount:        change.Amount,
			Comment:       change.Comment,
			Status:        change.NewStatus,
			Link:          s.link(change.RequestID),
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}

		msg := &port.Message{
			To:       to.Email,
			ToOpenID: to.LarkOpenID,
			ToName:   displayName(to),
			Subject:  subject,
			Text:     text,
			HTML:     html,
		}
		for _, sender := range s.senders {
			if err := sender.Send(ctx, msg); err != nil {
				s.logger.Error("Failed to send notification",
					"error", err,
					"channel", sender.Name(),
					"request_id", change.RequestID,
					"recipient", to.UserID,
				)
				errs = append(errs, fmt.Errorf("%s to %s: %w", sender.Name(), to.UserID, err))
				continue
			}
			sent++
		}
	}

	s.logger.Info("Notifications processed",
		"request_id", change.RequestID,
		"action", change.Action,
		"delivered", sent,
		"failed", len(errs),
	)

	return errors.Join(errs...)
}

// resolve returns the contact for a recipient kind, or nil when there is nobody to notify
func (s *notificationServiceImpl) resolve(ctx context.Context, to recipient, submitter *entity.Contact) (*entity.Contact, error) {
	switch to {
	case toSubmitter:
		return submitter, nil
	case toManager:
		if submitter == nil || submitter.ManagerID == "" {
			return nil, nil
		}
		return s.contact(ctx, submitter.ManagerID)
	case toFinance:
		if s.config.FinanceEmail == "" {
			return nil, nil
		}
		return &entity.Contact{UserID: "finance", Name: s.config.FinanceName, Email: s.config.FinanceEmail}, nil
	}
	return nil, nil
}

func (s *notificationServiceImpl) contact(ctx context.Context, userID string) (*entity.Contact, error) {
	if userID == "" {
		return nil, nil
	}
	c, err := s.directory.Contact(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup contact %s: %w", userID, err)
	}
	return c, nil
}

func (s *notificationServiceImpl) link(requestID string) string {
	if s.config.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(s.config.BaseURL, "/") + "/requests/" + requestID
}

func displayName(c *entity.Contact) string {
	if c.Name != "" {
		return c.Name
	}
	return c.UserID
}
