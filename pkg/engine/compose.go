package engine

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/dhinSgd/fal-to-openai/pkg/api"
)

// Separator joins the fixed system text and the conversation history that
// overflowed into the system slot.
const Separator = "\n\n------- Earlier conversation follows -------\n\n"

// separatorReserve is the room reserved next to non-empty fixed system text
// when deriving the history budget of the system slot.
const separatorReserve = 4

// Default budgets, in characters.
const (
	DefaultSystemLimit = 4800
	DefaultPromptLimit = 4800
)

// Budgets holds the two independent length limits, in characters (Unicode
// code points). Budgets are fixed at startup and never change per request.
type Budgets struct {
	// System bounds the fixed system text and, together with it, the
	// history that overflows into the system slot.
	System int

	// Prompt bounds the conversation history placed in the prompt slot.
	Prompt int
}

// DefaultBudgets returns the default 4800/4800 budgets.
func DefaultBudgets() Budgets {
	return Budgets{System: DefaultSystemLimit, Prompt: DefaultPromptLimit}
}

// ComposedPrompt is the flattened backend input.
type ComposedPrompt struct {
	SystemPrompt string
	Prompt       string

	// SystemTruncated is set when the fixed system text was hard cut.
	SystemTruncated bool

	// DroppedBlocks counts conversation blocks that fit neither slot.
	DroppedBlocks int

	// SkippedMessages counts messages discarded for an unsupported role.
	SkippedMessages int
}

// Compose flattens messages into a system prompt and a prompt that honour
// budgets. The most recent conversation turns are kept; older ones move to
// the system slot and are dropped once both slots are full. Compose never
// fails: null content is empty text and unsupported roles are skipped.
func Compose(messages []api.ChatMessage, budgets Budgets) ComposedPrompt {
	var out ComposedPrompt

	// Partition by role.
	var fixed strings.Builder
	var blocks []string
	for i, msg := range messages {
		switch msg.Role {
		case api.RoleSystem:
			fixed.WriteString("System: " + string(msg.Content) + "\n\n")
		case api.RoleUser:
			blocks = append(blocks, "Human: "+string(msg.Content)+"\n\n")
		case api.RoleAssistant:
			blocks = append(blocks, "Assistant: "+string(msg.Content)+"\n\n")
		default:
			slog.Warn("skipping message with unsupported role", "index", i, "role", msg.Role)
			out.SkippedMessages++
		}
	}

	// Truncate fixed system text.
	fixedText := fixed.String()
	if n := utf8.RuneCountInString(fixedText); n > budgets.System {
		slog.Warn("system prompt truncated", "length", n, "limit", budgets.System)
		fixedText = truncateRunes(fixedText, budgets.System)
		out.SystemTruncated = true
	}
	fixedText = strings.TrimSpace(fixedText)

	// Derive the history budget of the system slot.
	historyBudget := budgets.System
	if fixedText != "" {
		historyBudget = max(0, budgets.System-(utf8.RuneCountInString(fixedText)+separatorReserve))
	}

	// Recency-first fill, newest block first.
	var (
		promptBlocks, systemBlocks []string
		promptUsed, systemUsed     int
		promptFull, systemFull     bool
		kept                       int
	)
	for i := len(blocks) - 1; i >= 0; i-- {
		block := blocks[i]
		n := utf8.RuneCountInString(block)

		if !promptFull {
			if promptUsed+n <= budgets.Prompt {
				promptBlocks = append(promptBlocks, block)
				promptUsed += n
				kept++
				continue
			}
			promptFull = true
		}

		if !systemFull {
			if systemUsed+n <= historyBudget {
				systemBlocks = append(systemBlocks, block)
				systemUsed += n
				kept++
				continue
			}
			systemFull = true
		}

		if promptFull && systemFull {
			break
		}
	}
	out.DroppedBlocks = len(blocks) - kept

	// Blocks were collected newest first.
	out.Prompt = strings.TrimSpace(joinReversed(promptBlocks))
	systemHistory := strings.TrimSpace(joinReversed(systemBlocks))

	switch {
	case fixedText != "" && systemHistory != "":
		out.SystemPrompt = fixedText + Separator + systemHistory
	case fixedText != "":
		out.SystemPrompt = fixedText
	default:
		out.SystemPrompt = systemHistory
	}
	return out
}

// truncateRunes returns the first n code points of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func joinReversed(parts []string) string {
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString(parts[i])
	}
	return b.String()
}
