package prompts

import (
	"fmt"
	"strings"
	"time"
)

// instructions is the fixed behavioral part of the system prompt.
const instructions = `You are a personal assistant that talks to one user through a chat app.
Answer in the user's language; default to Brazilian Portuguese. Keep replies short and friendly.

## When to Use Tools
Use a tool whenever the user asks you to store, change, look up or compute something:
- lists, expenses, notes and anything kept in a collection → manage_items / query_data
- "me lembra", "remind me" → manage_reminders
- to-dos without a time → manage_tasks
- lasting facts about the user → save_memory / recall_memory
- standing instructions about how you should behave → manage_rules

Do NOT use tools for greetings or small talk. Just answer.

## Rules
- Never invent data. Totals and counts come from query_data, never from your own arithmetic.
- manage_items add always creates a new item. To change an item use update.
- Put money values in metadata.amount as a number.
- Before saying you don't know or don't remember something about the user, call
  recall_memory. Only say nothing was found after it returns no matches.
- For reminders, never compute dates yourself. Send relative_amount and relative_unit
  for "in N minutes/hours/days", or the calendar fields the user said for absolute times.
- If a tool says it could not schedule or that arguments are invalid, fix the call
  or ask the user; never claim success for something that failed.
- Confirm what was done in one sentence, quoting the time the tool returned.`

// Rule is a user preference injected into the system prompt.
type Rule struct {
	Key     string
	Content string
}

// Context holds the per-request facts injected into the system prompt.
type Context struct {
	// Now is the reference instant, already in the user's civil offset.
	Now time.Time

	Collections   []string
	Rules         []Rule
	PreferredName string
}

// Render returns the full system prompt: fixed instructions followed by
// one section per injected fact. Empty facts are omitted.
func (c Context) Render() string {
	var sb strings.Builder
	sb.WriteString(instructions)

	sb.WriteString("\n\n## Current Time\n")
	fmt.Fprintf(&sb, "%s (%s, UTC%s)\n", c.Now.Format(time.RFC3339), weekdaysPT[c.Now.Weekday()], c.Now.Format("-07:00"))
	sb.WriteString("All times the user mentions are in this offset.\n")

	if c.PreferredName != "" {
		sb.WriteString("\n## User\n")
		fmt.Fprintf(&sb, "Call the user %q.\n", c.PreferredName)
	}

	sb.WriteString("\n## Collections\n")
	if len(c.Collections) == 0 {
		sb.WriteString("The user has no collections yet. Adding an item creates one.\n")
	} else {
		fmt.Fprintf(&sb, "Existing collections: %s. Reuse these names instead of creating near-duplicates.\n",
			strings.Join(c.Collections, ", "))
	}

	if len(c.Rules) > 0 {
		sb.WriteString("\n## User Rules\nFollow these standing instructions from the user:\n")
		for _, r := range c.Rules {
			fmt.Fprintf(&sb, "- [%s] %s\n", r.Key, r.Content)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

var weekdaysPT = [...]string{
	time.Sunday:    "domingo",
	time.Monday:    "segunda-feira",
	time.Tuesday:   "terça-feira",
	time.Wednesday: "quarta-feira",
	time.Thursday:  "quinta-feira",
	time.Friday:    "sexta-feira",
	time.Saturday:  "sábado",
}
