package handler

import (
	"fmt"

	"github.com/7FIl/CS-Bot/domain/model"
	"github.com/slack-go/slack"
)

const noticeDescriptionLimit = 300

func newSectionBlock(blockID, text, actionID, buttonText, value string) *slack.SectionBlock {
	return &slack.SectionBlock{
		Type:    slack.MBTSection,
		BlockID: blockID,
		Text: &slack.TextBlockObject{
			Type: slack.MarkdownType,
			Text: text,
		},
		Accessory: &slack.Accessory{
			ButtonElement: &slack.ButtonBlockElement{
				Type:     slack.METButton,
				ActionID: actionID,
				Text: &slack.TextBlockObject{
					Type: slack.PlainTextType,
					Text: buttonText,
				},
				Value: value,
			},
		},
	}
}

func ticketModalRequest(channelID string) slack.ModalViewRequest {
	titleText := slack.NewTextBlockObject("plain_text", "🎫 Contact support", false, false)
	submitText := slack.NewTextBlockObject("plain_text", "✅ Submit", false, false)
	closeText := slack.NewTextBlockObject("plain_text", "❌ Cancel", false, false)

	blocks := slack.Blocks{
		BlockSet: []slack.Block{
			slack.NewSectionBlock(
				slack.NewTextBlockObject("mrkdwn", "*Tell us about your order and we will open a ticket for you.*", false, false),
				nil, nil,
			),
			slack.NewDividerBlock(),
			&slack.InputBlock{
				Type:    slack.MBTInput,
				BlockID: "name_block",
				Label: &slack.TextBlockObject{
					Type: slack.PlainTextType,
					Text: "👤 Your name",
				},
				Element: &slack.PlainTextInputBlockElement{
					Type:        slack.METPlainTextInput,
					ActionID:    "name_input",
					MaxLength:   100,
					Placeholder: slack.NewTextBlockObject("plain_text", "The name on your order", false, false),
				},
			},
			&slack.InputBlock{
				Type:    slack.MBTInput,
				BlockID: "order_block",
				Label: &slack.TextBlockObject{
					Type: slack.PlainTextType,
					Text: "🧾 Order id",
				},
				Element: &slack.PlainTextInputBlockElement{
					Type:        slack.METPlainTextInput,
					ActionID:    "order_input",
					MaxLength:   50,
					Placeholder: slack.NewTextBlockObject("plain_text", "e.g. ORD-12345", false, false),
				},
			},
			&slack.InputBlock{
				Type:    slack.MBTInput,
				BlockID: "issue_block",
				Label: &slack.TextBlockObject{
					Type: slack.PlainTextType,
					Text: "❓ Issue type",
				},
				Element: &slack.PlainTextInputBlockElement{
					Type:        slack.METPlainTextInput,
					ActionID:    "issue_input",
					MaxLength:   100,
					Placeholder: slack.NewTextBlockObject("plain_text", "Refund, missing item, delay...", false, false),
				},
			},
			&slack.InputBlock{
				Type:    slack.MBTInput,
				BlockID: "desc_block",
				Label: &slack.TextBlockObject{
					Type: slack.PlainTextType,
					Text: "📝 What happened?",
				},
				Element: &slack.PlainTextInputBlockElement{
					Type:        slack.METPlainTextInput,
					ActionID:    "desc_input",
					Multiline:   true,
					MaxLength:   1000,
					Placeholder: slack.NewTextBlockObject("plain_text", "Describe the problem", false, false),
				},
			},
		},
	}

	return slack.ModalViewRequest{
		Type:            slack.ViewType("modal"),
		Title:           titleText,
		CallbackID:      "ticket_modal",
		Submit:          submitText,
		Close:           closeText,
		Blocks:          blocks,
		PrivateMetadata: channelID,
	}
}

func statusModalRequest(channelID string) slack.ModalViewRequest {
	titleText := slack.NewTextBlockObject("plain_text", "🔍 Ticket status", false, false)
	submitText := slack.NewTextBlockObject("plain_text", "✅ Check", false, false)
	closeText := slack.NewTextBlockObject("plain_text", "❌ Cancel", false, false)

	blocks := slack.Blocks{
		BlockSet: []slack.Block{
			&slack.InputBlock{
				Type:    slack.MBTInput,
				BlockID: "status_block",
				Label: &slack.TextBlockObject{
					Type: slack.PlainTextType,
					Text: "🧾 Order id",
				},
				Element: &slack.PlainTextInputBlockElement{
					Type:        slack.METPlainTextInput,
					ActionID:    "status_input",
					MaxLength:   50,
					Placeholder: slack.NewTextBlockObject("plain_text", "The order id you used when opening the ticket", false, false),
				},
			},
		},
	}

	return slack.ModalViewRequest{
		Type:            slack.ViewType("modal"),
		Title:           titleText,
		CallbackID:      "status_modal",
		Submit:          submitText,
		Close:           closeText,
		Blocks:          blocks,
		PrivateMetadata: channelID,
	}
}

func ticketDetailBlocks(t *model.Ticket, description string) []slack.Block {
	return []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", fmt.Sprintf("🎫 Ticket #%d", t.TicketNumber), false, false),
		),
		slack.NewDividerBlock(),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*👤 Requester:* <@%s>", t.RequesterTag), false, false),
			nil, nil,
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*🧾 Order id:* %s\n*❓ Issue:* %s", t.OrderID, t.IssueType), false, false),
			nil, nil,
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf(">>> %s", description), false, false),
			nil, nil,
		),
		slack.NewDividerBlock(),
		slack.NewContextBlock("ticket_context",
			slack.NewTextBlockObject("mrkdwn", "Please keep the conversation about this ticket in this thread.", false, false),
		),
	}
}

func closeControlBlocks(t *model.Ticket) []slack.Block {
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", "If your problem is solved before staff gets to you, you can close this ticket yourself.", false, false),
			nil, nil,
		),
		slack.NewActionBlock(
			"requester_actions",
			slack.NewButtonBlockElement(
				"close_ticket",
				t.OrderID,
				slack.NewTextBlockObject("plain_text", "🔒 Close ticket", false, false),
			).WithStyle(slack.StyleDanger),
		),
	}
}

func staffNoticeBlocks(t *model.Ticket, description string) []slack.Block {
	if len(description) > noticeDescriptionLimit {
		description = description[:noticeDescriptionLimit] + "…"
	}
	return []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", "🚨 New support ticket", false, false),
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf(
				"*🎫 Ticket:* #%d\n*👤 Requester:* <@%s>\n*🧾 Order id:* %s\n*❓ Issue:* %s",
				t.TicketNumber, t.RequesterTag, t.OrderID, t.IssueType), false, false),
			nil, nil,
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf(">>> %s", description), false, false),
			nil, nil,
		),
		slack.NewDividerBlock(),
		slack.NewActionBlock(
			"staff_actions",
			slack.NewButtonBlockElement(
				"take_ticket",
				t.OrderID,
				slack.NewTextBlockObject("plain_text", "🙋 Take", false, false),
			).WithStyle(slack.StylePrimary),
			slack.NewButtonBlockElement(
				"resolve_ticket",
				t.OrderID,
				slack.NewTextBlockObject("plain_text", "✅ Resolve", false, false),
			).WithStyle(slack.StyleDanger),
		),
	}
}

func ticketTakenBlocks(t *model.Ticket, staffID string) []slack.Block {
	return []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", fmt.Sprintf("🙋 Ticket #%d in progress", t.TicketNumber), false, false),
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf(
				"*🧾 Order id:* %s\n*👤 Requester:* <@%s>\n*🧑‍💻 Taken by:* <@%s>",
				t.OrderID, t.RequesterTag, staffID), false, false),
			nil, nil,
		),
		slack.NewDividerBlock(),
		slack.NewActionBlock(
			"staff_actions",
			slack.NewButtonBlockElement(
				"resolve_ticket",
				t.OrderID,
				slack.NewTextBlockObject("plain_text", "✅ Resolve", false, false),
			).WithStyle(slack.StyleDanger),
		),
	}
}

func ticketFinalizedBlocks(t *model.Ticket, staffID string) []slack.Block {
	return []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", fmt.Sprintf("✅ Ticket #%d resolved", t.TicketNumber), false, false),
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf(
				"*🧾 Order id:* %s\n*👤 Requester:* <@%s>\n*🧑‍💻 Resolved by:* <@%s>",
				t.OrderID, t.RequesterTag, staffID), false, false),
			nil, nil,
		),
	}
}

func threadFinalNoticeBlocks(actorID string, status model.Status) []slack.Block {
	var text string
	switch status {
	case model.StatusResolved:
		text = fmt.Sprintf("✅ This ticket has been *resolved* by <@%s>. Thank you for your patience!", actorID)
	default:
		text = fmt.Sprintf("🔒 This ticket has been *closed* by <@%s>. If you need more help, just open a new ticket.", actorID)
	}
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", text, false, false),
			nil, nil,
		),
	}
}

func ticketCreatedBlocks(t *model.Ticket) []slack.Block {
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf(
				"🎫 *Your ticket #%d has been created.*\nOur support team has been notified. Watch the support channel thread for updates.",
				t.TicketNumber), false, false),
			nil, nil,
		),
	}
}

func statusBlocks(t *model.Ticket) []slack.Block {
	var line string
	switch t.Status {
	case model.StatusPending:
		line = "⏳ *PENDING*. Waiting for a staff member to pick it up."
	case model.StatusInProgress:
		line = "🧑‍💻 *IN PROGRESS*. A staff member is working on it."
	case model.StatusResolved:
		line = "✅ *RESOLVED*. This ticket is done."
	case model.StatusClosed:
		line = "🔒 *CLOSED*. This ticket was closed by its requester."
	default:
		line = fmt.Sprintf("*%s*", t.Status)
	}
	return []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", fmt.Sprintf("🎫 Ticket #%d", t.TicketNumber), false, false),
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*🧾 Order id:* %s\n*❓ Issue:* %s\n*📅 Opened:* %s", t.OrderID, t.IssueType, t.Timestamp), false, false),
			nil, nil,
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", line, false, false),
			nil, nil,
		),
	}
}

func faqListBlocks(entries []model.FAQEntry) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", "📖 Frequently asked questions", false, false),
		),
		slack.NewDividerBlock(),
	}
	for i, e := range entries {
		blocks = append(blocks, newSectionBlock(
			fmt.Sprintf("faq_%d", i),
			fmt.Sprintf("*%s*", e.ButtonLabel),
			"faq_entry",
			"Read",
			e.TriggerID,
		))
	}
	return blocks
}

func faqAnswerBlocks(entry *model.FAQEntry) []slack.Block {
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*%s*", entry.ButtonLabel), false, false),
			nil, nil,
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", entry.ResponseText, false, false),
			nil, nil,
		),
	}
}

func statsBlocks(total int, counts map[model.Status]int) []slack.Block {
	return []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", "📊 Ticket stats", false, false),
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf(
				"*Total (last %d):* %d\n⏳ Pending: %d\n🧑‍💻 In progress: %d\n✅ Resolved: %d\n🔒 Closed: %d",
				total, total,
				counts[model.StatusPending],
				counts[model.StatusInProgress],
				counts[model.StatusResolved],
				counts[model.StatusClosed]), false, false),
			nil, nil,
		),
	}
}
