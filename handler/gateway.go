package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/7FIl/CS-Bot/domain/model"
	"github.com/slack-go/slack"
)

// OpenThread posts the ticket record into the support channel and returns the
// root message timestamp, which is the thread handle every later notice hangs
// off. The close button for the requester is posted as the first reply.
func (h *Handler) OpenThread(_ context.Context, t *model.Ticket, description string) (string, error) {
	_, ts, err := h.client.PostMessage(
		h.supportChannel,
		slack.MsgOptionBlocks(ticketDetailBlocks(t, description)...),
	)
	if err != nil {
		return "", fmt.Errorf("failed to open ticket thread: %w", err)
	}

	if _, _, err := h.client.PostMessage(
		h.supportChannel,
		slack.MsgOptionTS(ts),
		slack.MsgOptionBlocks(closeControlBlocks(t)...),
	); err != nil {
		// The thread exists and the record is about to be persisted, so the
		// missing button is recoverable through a status lookup.
		slog.Error("Failed to post close control", slog.Any("err", err), slog.String("order_id", t.OrderID))
	}
	return ts, nil
}

func (h *Handler) NotifyStaff(_ context.Context, t *model.Ticket, description string) error {
	if !h.settings.Get().NotifyStaff {
		slog.Info("staff notification suppressed by settings", slog.String("order_id", t.OrderID))
		return nil
	}
	if h.staffChannel == "" {
		return nil
	}

	_, _, err := h.client.PostMessage(
		h.staffChannel,
		slack.MsgOptionBlocks(staffNoticeBlocks(t, description)...),
	)
	if err != nil {
		return fmt.Errorf("failed to notify staff: %w", err)
	}
	return nil
}

func (h *Handler) AddStaffToThread(_ context.Context, threadID, staffID string) error {
	if threadID == "" {
		return nil
	}

	name := fmt.Sprintf("<@%s>", staffID)
	if user, err := h.getUserInfo(staffID); err == nil {
		name = getUserPreferredName(user)
	}
	_, _, err := h.client.PostMessage(
		h.supportChannel,
		slack.MsgOptionTS(threadID),
		slack.MsgOptionText(fmt.Sprintf("🧑‍💻 *%s* has taken this ticket and will assist you shortly.", name), false),
	)
	if err != nil {
		return fmt.Errorf("failed to announce staff in thread: %w", err)
	}
	return nil
}

// ArchiveThread posts the terminal notice into the ticket thread. Slack has
// no per-thread archive primitive, so the notice is the closing marker.
func (h *Handler) ArchiveThread(_ context.Context, threadID, actorID string, status model.Status) error {
	if threadID == "" {
		return nil
	}

	_, _, err := h.client.PostMessage(
		h.supportChannel,
		slack.MsgOptionTS(threadID),
		slack.MsgOptionBlocks(threadFinalNoticeBlocks(actorID, status)...),
	)
	if err != nil {
		return fmt.Errorf("failed to post closing notice: %w", err)
	}
	return nil
}
