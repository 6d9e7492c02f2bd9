// Package classify maps incoming comments to an intent and the scripted
// actions to take for it. Pure functions, no I/O.
package classify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"fanpage-agent/internal/graph"
)

// Intent is the classified purpose of a comment.
type Intent string

const (
	IntentAskPrice     Intent = "ask_price"
	IntentInterest     Intent = "interest"
	IntentSpam         Intent = "spam"
	IntentAbuse        Intent = "abuse"
	IntentMissingPhone Intent = "missing_phone"
	IntentUnknown      Intent = "unknown"
)

// Action is one scripted step the agent can take for a comment.
type Action string

const (
	ActionReply     Action = "reply"
	ActionHide      Action = "hide"
	ActionOpenInbox Action = "open_inbox"
)

// Decision is the classification outcome for a single comment.
type Decision struct {
	Intent     Intent
	Actions    []Action
	ReplyText  string
	Confidence float64
	Rationale  string
}

// keywords is matched against the lowercased comment text, first hit wins.
// Order matters: abuse and spam outrank the sales intents.
var keywords = []struct {
	intent Intent
	words  []string
}{
	{IntentAbuse, []string{"lừa", "scam", "đm", "dkm", "địt"}},
	{IntentSpam, []string{"http://", "https://", "cho vay", "săn sale"}},
	{IntentAskPrice, []string{"bao nhiêu", "giá", "gia", "bn", "nhiu"}},
	{IntentInterest, []string{"quan tâm", "tư vấn", "mua", "đặt", "đăt", "shop đâu"}},
	{IntentMissingPhone, []string{"ib", "inbox", "sdt", "sđt", "phone", "call"}},
}

// Classify decides intent, actions and reply text for a comment.
func Classify(c graph.Comment) Decision {
	intent, confidence, rationale := heuristic(c.Message)

	actions := []Action{ActionReply}
	switch intent {
	case IntentSpam, IntentAbuse:
		actions = []Action{ActionHide}
	case IntentMissingPhone:
		actions = []Action{ActionOpenInbox, ActionReply}
	}

	return Decision{
		Intent:     intent,
		Actions:    actions,
		ReplyText:  replyFor(intent, c),
		Confidence: confidence,
		Rationale:  rationale,
	}
}

func heuristic(message string) (Intent, float64, string) {
	text := strings.ToLower(message)
	for _, entry := range keywords {
		for _, w := range entry.words {
			if strings.Contains(text, w) {
				return entry.intent, 0.78, fmt.Sprintf("match %s", entry.intent)
			}
		}
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) <= 2 {
		return IntentSpam, 0.6, "very short"
	}
	return IntentUnknown, 0.4, "fallback"
}

func replyFor(intent Intent, c graph.Comment) string {
	name := c.Author
	if name == "" {
		name = "bạn"
	}
	switch intent {
	case IntentAskPrice:
		return fmt.Sprintf(
			"Chào %s, giá sản phẩm đang ưu đãi. Bạn cho mình xin số điện thoại hoặc để lại tin nhắn để tư vấn nhanh nhé!",
			name,
		)
	case IntentInterest:
		return fmt.Sprintf(
			"Cảm ơn %s đã quan tâm! Bạn để lại SĐT/inbox để mình hỗ trợ chọn mẫu và báo giá chi tiết.",
			name,
		)
	case IntentMissingPhone:
		return "Mình đã mở inbox cho bạn, vui lòng check tin nhắn để được hỗ trợ nhanh."
	case IntentSpam, IntentAbuse:
		return ""
	default:
		return "Cảm ơn bạn đã để lại bình luận! Bạn cần thêm thông tin nào cứ nhắn mình nhé."
	}
}
