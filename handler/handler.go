package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/7FIl/CS-Bot/config"
	"github.com/7FIl/CS-Bot/domain/infra"
	"github.com/7FIl/CS-Bot/domain/model"
	"github.com/7FIl/CS-Bot/domain/ticket"
	"github.com/jellydator/ttlcache/v3"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const (
	cmdStats   = "stats"
	cmdSummary = "summary"
	cmdReload  = "reload"
)

// Remote calls made on behalf of one interaction are bounded so a stuck
// store cannot wedge the event loop for other users.
const storeTimeout = 15 * time.Second

type Handler struct {
	client     infra.SlackAPI
	ds         infra.Datastore
	engine     *ticket.Engine
	faq        *ticket.FAQCache
	controls   *ticket.Controls
	settings   *config.SettingsFile
	summarizer *infra.OpenAI

	groupCache    *ttlcache.Cache[string, []slack.UserGroup]
	memberCache   *ttlcache.Cache[string, []string]
	userInfoCache *ttlcache.Cache[string, *slack.User]

	botID          string
	supportChannel string
	staffChannel   string
}

func NewHandler(settings *config.SettingsFile) (*Handler, error) {
	ds, err := infra.NewDatastore(context.Background())
	if err != nil {
		return nil, err
	}

	summarizer, err := infra.NewOpenAI()
	if err != nil {
		slog.Warn("summary feature disabled", slog.Any("err", err))
	}

	api := slack.New(os.Getenv("SLACK_BOT_TOKEN"))
	h := &Handler{
		client:         api,
		ds:             ds,
		faq:            ticket.NewFAQCache(ds),
		controls:       ticket.NewControls(controlTTL()),
		settings:       settings,
		summarizer:     summarizer,
		groupCache:     ttlcache.New(ttlcache.WithTTL[string, []slack.UserGroup](time.Hour)),
		memberCache:    ttlcache.New(ttlcache.WithTTL[string, []string](10 * time.Minute)),
		userInfoCache:  ttlcache.New(ttlcache.WithTTL[string, *slack.User](24 * time.Hour)),
		supportChannel: os.Getenv("SUPPORT_CHANNEL_ID"),
		staffChannel:   os.Getenv("STAFF_CHANNEL_ID"),
	}
	h.engine = ticket.NewEngine(ds, ticket.NewAllocator(ds), h.controls, h, h.isStaff)

	go h.controls.Start()
	go h.groupCache.Start()
	go h.memberCache.Start()
	go h.userInfoCache.Start()

	// Warm the FAQ cache; a cold store at boot is not fatal.
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if _, err := h.faq.Get(ctx, true); err != nil {
		slog.Warn("FAQ cache warmup failed", slog.Any("err", err))
	}
	return h, nil
}

func controlTTL() time.Duration {
	if v := os.Getenv("CONTROL_TTL_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	return 0 // registry default
}

func (h *Handler) Handle() error {
	webApi := slack.New(
		os.Getenv("SLACK_BOT_TOKEN"),
		slack.OptionAppLevelToken(os.Getenv("SLACK_APP_TOKEN")),
	)
	socketMode := socketmode.New(
		webApi,
	)
	authTest, authTestErr := webApi.AuthTest()
	if authTestErr != nil {
		fmt.Fprintf(os.Stderr, "SLACK_BOT_TOKEN is invalid: %v\n", authTestErr)
		os.Exit(1)
	}
	h.botID = authTest.UserID

	go func() {
		for envelope := range socketMode.Events {
			switch envelope.Type {
			case socketmode.EventTypeEventsAPI:
				socketMode.Ack(*envelope.Request)
				eventPayload, ok := envelope.Data.(slackevents.EventsAPIEvent)
				if !ok {
					slog.Error("Failed to cast to EventsAPIEvent")
					continue
				}
				h.handleCallBack(&eventPayload)
			case socketmode.EventTypeInteractive:
				socketMode.Ack(*envelope.Request)
				callback, ok := envelope.Data.(slack.InteractionCallback)
				if !ok {
					slog.Error("Failed to cast to InteractionCallback")
					continue
				}
				h.handleInteractions(&callback)
			default:
				socketMode.Debugf("Skipped: %v", envelope.Type)
			}
		}
	}()

	return socketMode.Run()
}

func (h *Handler) handleCallBack(event *slackevents.EventsAPIEvent) {
	switch event.Type {
	case slackevents.CallbackEvent:
		innerEvent := event.InnerEvent
		switch ev := innerEvent.Data.(type) {
		case *slackevents.AppMentionEvent:
			h.handleMention(ev)
		}
	default:
		slog.Warn("Unsupported EventsAPIEvent type", slog.Any("type", event.Type))
	}
}

func (h *Handler) handleMention(ev *slackevents.AppMentionEvent) {
	text := strings.Replace(ev.Text, fmt.Sprintf("<@%s>", h.getBotUserID()), "", 1)
	text = strings.TrimSpace(text)

	switch text {
	case cmdStats:
		if err := h.showStats(ev.Channel, ev.User); err != nil {
			slog.Error("showStats failed", slog.Any("err", err))
		}
		return
	case cmdSummary:
		if err := h.showSummary(ev.Channel, ev.User, ev.TimeStamp); err != nil {
			slog.Error("showSummary failed", slog.Any("err", err))
		}
		return
	case cmdReload:
		if err := h.reloadFAQ(ev.Channel, ev.User); err != nil {
			slog.Error("reloadFAQ failed", slog.Any("err", err))
		}
		return
	}

	blocks := []slack.Block{
		newSectionBlock("menu_faq_section", "*Read answers to frequently asked questions*", "menu_faq", "View FAQ", ev.TimeStamp),
		newSectionBlock("menu_contact_section", "*Contact our support team*", "menu_contact", "Contact support", ev.TimeStamp),
		newSectionBlock("menu_status_section", "*Check the status of your order ticket*", "menu_status", "Check status", ev.TimeStamp),
	}
	if _, err := h.client.PostEphemeral(
		ev.Channel,
		ev.User,
		slack.MsgOptionText("Choose one of the options below to get help.", false),
		slack.MsgOptionBlocks(blocks...),
	); err != nil {
		slog.Error("Failed to post menu", slog.Any("err", err))
	}
}

func (h *Handler) handleInteractions(callback *slack.InteractionCallback) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	switch callback.Type {
	case slack.InteractionTypeBlockActions:
		if len(callback.ActionCallback.BlockActions) < 1 {
			return
		}
		action := callback.ActionCallback.BlockActions[0]

		switch action.ActionID {
		case "menu_contact":
			if _, err := h.client.OpenView(callback.TriggerID, ticketModalRequest(callback.Channel.ID)); err != nil {
				slog.Error("openView ticket_modal failed", slog.Any("err", err))
			}
		case "menu_status":
			if _, err := h.client.OpenView(callback.TriggerID, statusModalRequest(callback.Channel.ID)); err != nil {
				slog.Error("openView status_modal failed", slog.Any("err", err))
			}
		case "menu_faq":
			if err := h.showFAQList(ctx, callback.Channel.ID, callback.User.ID); err != nil {
				slog.Error("showFAQList failed", slog.Any("err", err))
			}
		case "faq_entry":
			if err := h.showFAQAnswer(ctx, callback.Channel.ID, callback.User.ID, action.Value); err != nil {
				slog.Error("showFAQAnswer failed", slog.Any("err", err))
			}
		case "take_ticket":
			h.handleTake(ctx, callback, action.Value)
		case "resolve_ticket":
			h.handleResolve(ctx, callback, action.Value)
		case "close_ticket":
			h.handleClose(ctx, callback, action.Value)
		}

	case slack.InteractionTypeViewSubmission:
		switch callback.View.CallbackID {
		case "ticket_modal":
			h.handleTicketSubmission(ctx, callback)
		case "status_modal":
			h.handleStatusLookup(ctx, callback)
		}
	}
}

// handleTicketSubmission runs the create transition from the modal form.
func (h *Handler) handleTicketSubmission(ctx context.Context, callback *slack.InteractionCallback) {
	values := callback.View.State.Values
	channelID := callback.View.PrivateMetadata

	req := ticket.CreateRequest{
		RequesterTag:  callback.User.ID,
		RequesterName: values["name_block"]["name_input"].Value,
		OrderID:       values["order_block"]["order_input"].Value,
		IssueType:     values["issue_block"]["issue_input"].Value,
		Description:   values["desc_block"]["desc_input"].Value,
	}

	t, err := h.engine.Create(ctx, req)
	if err != nil {
		h.replyActionError(channelID, callback.User.ID, err)
		return
	}

	if _, err := h.client.PostEphemeral(
		channelID,
		callback.User.ID,
		slack.MsgOptionBlocks(ticketCreatedBlocks(t)...),
	); err != nil {
		slog.Error("Failed to post creation confirmation", slog.Any("err", err))
	}
	slog.Info("ticket created",
		slog.Int64("ticket_number", t.TicketNumber),
		slog.String("order_id", t.OrderID),
		slog.String("requester", t.RequesterTag))
}

func (h *Handler) handleStatusLookup(ctx context.Context, callback *slack.InteractionCallback) {
	channelID := callback.View.PrivateMetadata
	orderID := strings.TrimSpace(callback.View.State.Values["status_block"]["status_input"].Value)

	t, err := h.engine.Status(ctx, orderID)
	if err != nil {
		h.replyActionError(channelID, callback.User.ID, err)
		return
	}
	if _, err := h.client.PostEphemeral(
		channelID,
		callback.User.ID,
		slack.MsgOptionBlocks(statusBlocks(t)...),
	); err != nil {
		slog.Error("Failed to post status", slog.Any("err", err))
	}
}

func (h *Handler) handleTake(ctx context.Context, callback *slack.InteractionCallback, orderID string) {
	t, err := h.engine.Take(ctx, orderID, callback.User.ID)
	if err != nil {
		h.replyActionError(callback.Channel.ID, callback.User.ID, err)
		return
	}

	// Swap out the Take button in the staff notice only after the write is
	// confirmed, so the UI cannot drift ahead of the store.
	if callback.Message.Timestamp != "" {
		if _, _, _, err := h.client.UpdateMessage(
			callback.Channel.ID,
			callback.Message.Timestamp,
			slack.MsgOptionBlocks(ticketTakenBlocks(t, callback.User.ID)...),
		); err != nil {
			slog.Error("Failed to update staff notice", slog.Any("err", err))
		}
	}
	slog.Info("ticket taken", slog.String("order_id", orderID), slog.String("staff", callback.User.ID))
}

func (h *Handler) handleResolve(ctx context.Context, callback *slack.InteractionCallback, orderID string) {
	t, err := h.engine.Resolve(ctx, orderID, callback.User.ID)
	if err != nil {
		h.replyActionError(callback.Channel.ID, callback.User.ID, err)
		return
	}

	if callback.Message.Timestamp != "" {
		if _, _, _, err := h.client.UpdateMessage(
			callback.Channel.ID,
			callback.Message.Timestamp,
			slack.MsgOptionBlocks(ticketFinalizedBlocks(t, callback.User.ID)...),
		); err != nil {
			slog.Error("Failed to update staff notice", slog.Any("err", err))
		}
	}
	slog.Info("ticket resolved", slog.String("order_id", orderID), slog.String("staff", callback.User.ID))
}

func (h *Handler) handleClose(ctx context.Context, callback *slack.InteractionCallback, orderID string) {
	t, err := h.engine.Close(ctx, orderID, callback.User.ID)
	if err != nil {
		h.replyActionError(callback.Channel.ID, callback.User.ID, err)
		return
	}

	if _, err := h.client.PostEphemeral(
		callback.Channel.ID,
		callback.User.ID,
		slack.MsgOptionText(fmt.Sprintf("✅ Ticket #%d has been closed.", t.TicketNumber), false),
	); err != nil {
		slog.Error("Failed to post close confirmation", slog.Any("err", err))
	}
	slog.Info("ticket closed by requester", slog.String("order_id", orderID), slog.String("user", callback.User.ID))
}

// replyActionError turns engine failures into a short ephemeral explanation
// for the actor. No actor-initiated transition fails silently.
func (h *Handler) replyActionError(channelID, userID string, err error) {
	var message string
	var validation *ticket.ValidationError
	var store *infra.StoreError

	switch {
	case errors.As(err, &validation):
		message = fmt.Sprintf(":warning: %s.", validation.Error())
	case errors.As(err, &store):
		message = ":warning: The ticket store is unreachable right now. Please try again later."
	case errors.Is(err, ticket.ErrAlreadyTaken):
		message = ":no_entry: This ticket has already been taken by another staff member."
	case errors.Is(err, ticket.ErrStaffHandling):
		message = ":no_entry: Staff is already handling this ticket. Please wait for them to resolve it."
	case errors.Is(err, ticket.ErrTicketFinalized):
		message = ":no_entry: This ticket is already resolved or closed."
	case errors.Is(err, ticket.ErrNotTicketOwner):
		message = ":no_entry: Only the requester who opened this ticket can close it."
	case errors.Is(err, ticket.ErrNotStaff):
		message = ":no_entry: You need a staff role to do that."
	case errors.Is(err, ticket.ErrControlExpired):
		message = ":hourglass: These ticket buttons have expired. Mention the bot to continue."
	case errors.Is(err, ticket.ErrTicketNotFound):
		message = ":mag: No ticket found for that order id."
	default:
		message = ":warning: Something went wrong while processing your request. Please try again."
	}

	if _, err := h.client.PostEphemeral(channelID, userID, slack.MsgOptionText(message, false)); err != nil {
		slog.Error("Failed to post ephemeral error", slog.Any("err", err))
	}
}

func (h *Handler) showFAQList(ctx context.Context, channelID, userID string) error {
	entries, err := h.faq.Get(ctx, false)
	if err != nil {
		_, postErr := h.client.PostEphemeral(channelID, userID, slack.MsgOptionText("📭 *Failed to load the FAQ. Please try again later.*", false))
		if postErr != nil {
			return postErr
		}
		return err
	}
	if len(entries) == 0 {
		_, err := h.client.PostEphemeral(channelID, userID, slack.MsgOptionText("📭 *No FAQ available at this time.*", false))
		return err
	}

	_, err = h.client.PostEphemeral(channelID, userID, slack.MsgOptionBlocks(faqListBlocks(entries)...))
	return err
}

func (h *Handler) showFAQAnswer(ctx context.Context, channelID, userID, triggerID string) error {
	entry, err := h.faq.Find(ctx, triggerID)
	if err != nil {
		return err
	}
	if entry == nil {
		_, err := h.client.PostEphemeral(channelID, userID, slack.MsgOptionText("📭 *That FAQ entry no longer exists.*", false))
		return err
	}
	_, err = h.client.PostEphemeral(channelID, userID, slack.MsgOptionBlocks(faqAnswerBlocks(entry)...))
	return err
}

func (h *Handler) reloadFAQ(channelID, userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if ok, err := h.isStaff(ctx, userID); err != nil || !ok {
		_, postErr := h.client.PostEphemeral(channelID, userID, slack.MsgOptionText(":no_entry: You need a staff role to do that.", false))
		if postErr != nil {
			return postErr
		}
		return err
	}

	entries, err := h.faq.Get(ctx, true)
	if err != nil {
		_, postErr := h.client.PostEphemeral(channelID, userID, slack.MsgOptionText(":warning: Reload failed. Please try again later.", false))
		if postErr != nil {
			return postErr
		}
		return err
	}
	_, err = h.client.PostEphemeral(channelID, userID, slack.MsgOptionText(fmt.Sprintf("✅ FAQ reloaded. %d entries.", len(entries)), false))
	return err
}

func (h *Handler) showStats(channelID, userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if ok, err := h.isStaff(ctx, userID); err != nil || !ok {
		_, postErr := h.client.PostEphemeral(channelID, userID, slack.MsgOptionText(":no_entry: You need a staff role to do that.", false))
		if postErr != nil {
			return postErr
		}
		return err
	}

	tickets, err := h.ds.ListTickets(ctx, 100)
	if err != nil {
		h.replyActionError(channelID, userID, err)
		return err
	}

	counts := map[model.Status]int{}
	for _, t := range tickets {
		counts[t.Status]++
	}
	_, err = h.client.PostEphemeral(channelID, userID, slack.MsgOptionBlocks(statsBlocks(len(tickets), counts)...))
	return err
}

func (h *Handler) showSummary(channelID, userID, threadTS string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if ok, err := h.isStaff(ctx, userID); err != nil || !ok {
		_, postErr := h.client.PostEphemeral(channelID, userID, slack.MsgOptionText(":no_entry: You need a staff role to do that.", false))
		if postErr != nil {
			return postErr
		}
		return err
	}
	if h.summarizer == nil {
		_, err := h.client.PostEphemeral(channelID, userID, slack.MsgOptionText(":information_source: Summary is not configured.", false))
		return err
	}

	tickets, err := h.ds.ListTickets(ctx, 50)
	if err != nil {
		h.replyActionError(channelID, userID, err)
		return err
	}
	summary, err := h.summarizer.GenerateSummary(ctx, tickets)
	if err != nil {
		_, postErr := h.client.PostEphemeral(channelID, userID, slack.MsgOptionText(":warning: Failed to generate the summary.", false))
		if postErr != nil {
			return postErr
		}
		return err
	}

	_, _, err = h.client.PostMessage(
		channelID,
		slack.MsgOptionText(summary, false),
		slack.MsgOptionTS(threadTS),
	)
	return err
}

// isStaff reports whether the user belongs to any allow-listed staff user
// group. Group and membership lookups are cached.
func (h *Handler) isStaff(_ context.Context, userID string) (bool, error) {
	roles := h.settings.Get().StaffRoles
	if len(roles) == 0 {
		return false, nil
	}

	groups, err := h.getUserGroups()
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		role = strings.TrimPrefix(strings.TrimSpace(role), "@")
		for _, g := range groups {
			if !strings.EqualFold(g.Handle, role) && !strings.EqualFold(g.Name, role) {
				continue
			}
			members, err := h.getUserGroupMembers(g.ID)
			if err != nil {
				return false, err
			}
			for _, m := range members {
				if m == userID {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func (h *Handler) getUserGroups() ([]slack.UserGroup, error) {
	cacheKey := "user_groups"
	if groups := h.groupCache.Get(cacheKey); groups != nil {
		return groups.Value(), nil
	}
	groups, err := h.client.GetUserGroups()
	if err != nil {
		return nil, err
	}
	h.groupCache.Set(cacheKey, groups, ttlcache.DefaultTTL)
	return groups, nil
}

func (h *Handler) getUserGroupMembers(groupID string) ([]string, error) {
	cacheKey := "members_" + groupID
	if members := h.memberCache.Get(cacheKey); members != nil {
		return members.Value(), nil
	}
	members, err := h.client.GetUserGroupMembers(groupID)
	if err != nil {
		return nil, err
	}
	h.memberCache.Set(cacheKey, members, ttlcache.DefaultTTL)
	return members, nil
}

func (h *Handler) getUserInfo(userID string) (*slack.User, error) {
	cacheKey := "user_" + userID
	if user := h.userInfoCache.Get(cacheKey); user != nil {
		return user.Value(), nil
	}
	user, err := h.client.GetUserInfo(userID)
	if err != nil {
		return nil, err
	}
	h.userInfoCache.Set(cacheKey, user, ttlcache.DefaultTTL)
	return user, nil
}

func getUserPreferredName(user *slack.User) string {
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	if user.RealName != "" {
		return user.RealName
	}
	return user.Name
}

func (h *Handler) getBotUserID() string {
	if h.botID == "" {
		authResp, err := h.client.AuthTest()
		if err != nil {
			slog.Error("Failed to get bot user ID", slog.Any("err", err))
			return ""
		}
		h.botID = authResp.UserID
	}
	return h.botID
}
