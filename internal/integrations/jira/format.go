package jira

import (
	"fmt"
	"strings"
)

const slackTicketLimit = 10

// FormatTicketsForChat renders tickets as markdown for the chat widget.
func FormatTicketsForChat(tickets []Ticket) string {
	if len(tickets) == 0 {
		return "No tickets found."
	}

	lines := []string{fmt.Sprintf("📋 **%d Jira Ticket(s) Found**\n", len(tickets))}
	for i, t := range tickets {
		// URL on its own line so the widget does not unfurl it
		lines = append(lines, fmt.Sprintf(
			"%d. **%s** - %s\n   • Status: `%s` | Priority: `%s` | Assignee: %s\n   • Link: %s",
			i+1, t.Key, t.Summary, t.Status, t.Priority, t.Assignee, t.URL,
		))
	}
	return strings.Join(lines, "\n")
}

// FormatTicketsForSlack renders a tech-channel notification for a ticket query.
func FormatTicketsForSlack(tickets []Ticket, userQuery string) string {
	lines := []string{
		"🎫 *Jira Query from FinStackAI*",
		fmt.Sprintf("User asked: _%s_\n", userQuery),
		fmt.Sprintf("Found %d ticket(s):\n", len(tickets)),
	}

	for i, t := range tickets {
		if i == slackTicketLimit {
			break
		}
		lines = append(lines, fmt.Sprintf(
			"• *<%s|%s>* - %s\n  Status: %s | Priority: %s | Assignee: %s",
			t.URL, t.Key, t.Summary, t.Status, t.Priority, t.Assignee,
		))
	}
	if len(tickets) > slackTicketLimit {
		lines = append(lines, fmt.Sprintf("\n_...and %d more tickets_", len(tickets)-slackTicketLimit))
	}
	return strings.Join(lines, "\n")
}
