package handler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/7FIl/CS-Bot/config"
	"github.com/7FIl/CS-Bot/domain/model"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"
)

func newTestHandler(t *testing.T) (*Handler, *MockSlackAPI) {
	t.Helper()
	ctrl := gomock.NewController(t)

	dir := t.TempDir()
	t.Setenv("DB_PATH", filepath.Join(dir, "test.db"))
	t.Setenv("SUPPORT_CHANNEL_ID", "support_channel")
	t.Setenv("STAFF_CHANNEL_ID", "staff_channel")

	settings, err := config.NewSettingsFile(filepath.Join(dir, "bot_settings.json"))
	require.NoError(t, err)

	handler, err := NewHandler(settings)
	require.NoError(t, err)

	mockClient := NewMockSlackAPI(ctrl)
	handler.client = mockClient
	handler.botID = "bot_id"
	return handler, mockClient
}

func channelFor(id string) slack.Channel {
	ch := slack.Channel{}
	ch.ID = id
	return ch
}

func seedTicket(t *testing.T, h *Handler, status model.Status) {
	t.Helper()
	require.NoError(t, h.ds.SaveTicket(context.Background(), &model.Ticket{
		Timestamp:    "2026-08-30 10:00:00",
		TicketNumber: 1,
		RequesterTag: "requester_id",
		OrderID:      "ORD-1",
		IssueType:    "refund",
		Status:       status,
		ThreadID:     "thread_ts",
	}))
}

func allowStaff(t *testing.T, h *Handler, mockClient *MockSlackAPI, userID string) {
	t.Helper()
	require.NoError(t, h.settings.Update(func(s *config.Settings) {
		s.StaffRoles = []string{"support-team"}
	}))
	mockClient.EXPECT().GetUserGroups().
		Return([]slack.UserGroup{{ID: "G1", Handle: "support-team"}}, nil).AnyTimes()
	mockClient.EXPECT().GetUserGroupMembers("G1").
		Return([]string{userID}, nil).AnyTimes()
}

func TestHandleMentionShowsMenu(t *testing.T) {
	handler, mockClient := newTestHandler(t)

	mockClient.EXPECT().PostEphemeral("channel_id", "user_id", gomock.Any(), gomock.Any()).
		Return("ts", nil).Times(1)

	handler.handleMention(&slackevents.AppMentionEvent{
		User:      "user_id",
		Channel:   "channel_id",
		Text:      "<@bot_id> hello",
		TimeStamp: "111.222",
	})
}

func TestMentionStatsRequiresStaff(t *testing.T) {
	handler, mockClient := newTestHandler(t)

	// No staff roles configured, so stats is denied.
	mockClient.EXPECT().PostEphemeral("channel_id", "user_id", gomock.Any()).
		Return("ts", nil).Times(1)

	handler.handleMention(&slackevents.AppMentionEvent{
		User:    "user_id",
		Channel: "channel_id",
		Text:    "<@bot_id> stats",
	})
}

func TestTicketSubmissionCreatesTicket(t *testing.T) {
	handler, mockClient := newTestHandler(t)

	// Thread root, close control reply, and staff notice.
	mockClient.EXPECT().PostMessage(gomock.Any(), gomock.Any()).
		Return("ok", "thread_ts", nil).AnyTimes()
	mockClient.EXPECT().PostEphemeral("channel_id", "requester_id", gomock.Any()).
		Return("ts", nil).Times(1)

	callback := &slack.InteractionCallback{
		Type: slack.InteractionTypeViewSubmission,
		User: slack.User{ID: "requester_id"},
	}
	callback.View.CallbackID = "ticket_modal"
	callback.View.PrivateMetadata = "channel_id"
	callback.View.State = &slack.ViewState{
		Values: map[string]map[string]slack.BlockAction{
			"name_block":  {"name_input": {Value: "Alex"}},
			"order_block": {"order_input": {Value: "ORD-9"}},
			"issue_block": {"issue_input": {Value: "refund"}},
			"desc_block":  {"desc_input": {Value: "order never arrived"}},
		},
	}

	handler.handleInteractions(callback)

	saved, err := handler.ds.GetTicketByOrderID(context.Background(), "ORD-9")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, model.StatusPending, saved.Status)
	assert.Equal(t, "thread_ts", saved.ThreadID)
	assert.Equal(t, int64(1), saved.TicketNumber)
}

func TestTicketSubmissionValidationError(t *testing.T) {
	handler, mockClient := newTestHandler(t)

	mockClient.EXPECT().PostEphemeral("channel_id", "requester_id", gomock.Any()).
		Return("ts", nil).Times(1)

	callback := &slack.InteractionCallback{
		Type: slack.InteractionTypeViewSubmission,
		User: slack.User{ID: "requester_id"},
	}
	callback.View.CallbackID = "ticket_modal"
	callback.View.PrivateMetadata = "channel_id"
	callback.View.State = &slack.ViewState{
		Values: map[string]map[string]slack.BlockAction{
			"name_block":  {"name_input": {Value: "Alex"}},
			"order_block": {"order_input": {Value: "   "}},
			"issue_block": {"issue_input": {Value: "refund"}},
			"desc_block":  {"desc_input": {Value: "order never arrived"}},
		},
	}

	handler.handleInteractions(callback)

	saved, err := handler.ds.GetTicketByOrderID(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestTakeButton(t *testing.T) {
	handler, mockClient := newTestHandler(t)
	seedTicket(t, handler, model.StatusPending)
	allowStaff(t, handler, mockClient, "staff_id")

	mockClient.EXPECT().GetUserInfo("staff_id").
		Return(&slack.User{Name: "staff"}, nil).AnyTimes()
	// Thread announcement.
	mockClient.EXPECT().PostMessage("support_channel", gomock.Any(), gomock.Any()).
		Return("ok", "ts", nil).Times(1)
	// Staff notice loses its Take button.
	mockClient.EXPECT().UpdateMessage("staff_channel", "123.456", gomock.Any()).
		Return("staff_channel", "123.456", "", nil).Times(1)

	callback := &slack.InteractionCallback{
		Type:    slack.InteractionTypeBlockActions,
		User:    slack.User{ID: "staff_id"},
		Channel: channelFor("staff_channel"),
	}
	callback.Message.Timestamp = "123.456"
	callback.ActionCallback.BlockActions = []*slack.BlockAction{
		{ActionID: "take_ticket", Value: "ORD-1"},
	}

	handler.handleInteractions(callback)

	saved, _ := handler.ds.GetTicketByOrderID(context.Background(), "ORD-1")
	assert.Equal(t, model.StatusInProgress, saved.Status)
}

func TestTakeButtonDeniedForNonStaff(t *testing.T) {
	handler, mockClient := newTestHandler(t)
	seedTicket(t, handler, model.StatusPending)

	mockClient.EXPECT().PostEphemeral("staff_channel", "user_id", gomock.Any()).
		Return("ts", nil).Times(1)

	callback := &slack.InteractionCallback{
		Type:    slack.InteractionTypeBlockActions,
		User:    slack.User{ID: "user_id"},
		Channel: channelFor("staff_channel"),
	}
	callback.ActionCallback.BlockActions = []*slack.BlockAction{
		{ActionID: "take_ticket", Value: "ORD-1"},
	}

	handler.handleInteractions(callback)

	saved, _ := handler.ds.GetTicketByOrderID(context.Background(), "ORD-1")
	assert.Equal(t, model.StatusPending, saved.Status)
}

func TestCloseButtonWithExpiredControl(t *testing.T) {
	handler, mockClient := newTestHandler(t)
	seedTicket(t, handler, model.StatusPending)

	// No control was registered in this process, so the close is refused.
	mockClient.EXPECT().PostEphemeral("support_channel", "requester_id", gomock.Any()).
		Return("ts", nil).Times(1)

	callback := &slack.InteractionCallback{
		Type:    slack.InteractionTypeBlockActions,
		User:    slack.User{ID: "requester_id"},
		Channel: channelFor("support_channel"),
	}
	callback.ActionCallback.BlockActions = []*slack.BlockAction{
		{ActionID: "close_ticket", Value: "ORD-1"},
	}

	handler.handleInteractions(callback)

	saved, _ := handler.ds.GetTicketByOrderID(context.Background(), "ORD-1")
	assert.Equal(t, model.StatusPending, saved.Status)
}

func TestStatusLookup(t *testing.T) {
	handler, mockClient := newTestHandler(t)
	seedTicket(t, handler, model.StatusInProgress)

	mockClient.EXPECT().PostEphemeral("channel_id", "user_id", gomock.Any()).
		Return("ts", nil).Times(1)

	callback := &slack.InteractionCallback{
		Type: slack.InteractionTypeViewSubmission,
		User: slack.User{ID: "user_id"},
	}
	callback.View.CallbackID = "status_modal"
	callback.View.PrivateMetadata = "channel_id"
	callback.View.State = &slack.ViewState{
		Values: map[string]map[string]slack.BlockAction{
			"status_block": {"status_input": {Value: " ORD-1 "}},
		},
	}

	handler.handleInteractions(callback)
}

func TestFAQMenu(t *testing.T) {
	handler, mockClient := newTestHandler(t)
	require.NoError(t, handler.ds.AppendFAQ(context.Background(), &model.FAQEntry{
		TriggerID: "shipping", ButtonLabel: "Where is my order?", ResponseText: "Tracking link.",
	}))

	mockClient.EXPECT().PostEphemeral("channel_id", "user_id", gomock.Any()).
		Return("ts", nil).Times(2)

	listCallback := &slack.InteractionCallback{
		Type:    slack.InteractionTypeBlockActions,
		User:    slack.User{ID: "user_id"},
		Channel: channelFor("channel_id"),
	}
	listCallback.ActionCallback.BlockActions = []*slack.BlockAction{
		{ActionID: "menu_faq"},
	}
	handler.handleInteractions(listCallback)

	answerCallback := &slack.InteractionCallback{
		Type:    slack.InteractionTypeBlockActions,
		User:    slack.User{ID: "user_id"},
		Channel: channelFor("channel_id"),
	}
	answerCallback.ActionCallback.BlockActions = []*slack.BlockAction{
		{ActionID: "faq_entry", Value: "shipping"},
	}
	handler.handleInteractions(answerCallback)
}

func TestContactMenuOpensModal(t *testing.T) {
	handler, mockClient := newTestHandler(t)

	mockClient.EXPECT().OpenView("trigger_id", gomock.Any()).
		Return(&slack.ViewResponse{}, nil).Times(1)

	callback := &slack.InteractionCallback{
		Type:      slack.InteractionTypeBlockActions,
		TriggerID: "trigger_id",
		User:      slack.User{ID: "user_id"},
		Channel:   channelFor("channel_id"),
	}
	callback.ActionCallback.BlockActions = []*slack.BlockAction{
		{ActionID: "menu_contact"},
	}
	handler.handleInteractions(callback)
}
