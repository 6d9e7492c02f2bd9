package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fanpage-agent/internal/graph"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		message string
		intent  Intent
		actions []Action
	}{
		{"price question", "sản phẩm này giá bao nhiêu vậy shop", IntentAskPrice, []Action{ActionReply}},
		{"interest", "mình quan tâm, tư vấn giúp với", IntentInterest, []Action{ActionReply}},
		{"spam link", "giảm giá sốc tại https://spam.example", IntentSpam, []Action{ActionHide}},
		{"abuse", "shop lừa đảo à", IntentAbuse, []Action{ActionHide}},
		{"wants inbox", "ib mình nhé", IntentMissingPhone, []Action{ActionOpenInbox, ActionReply}},
		{"very short", "ok", IntentSpam, []Action{ActionHide}},
		{"unknown", "hàng về chưa vậy", IntentUnknown, []Action{ActionReply}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := Classify(graph.Comment{ID: "c1", Author: "Lan", Message: tc.message})
			assert.Equal(t, tc.intent, decision.Intent)
			assert.Equal(t, tc.actions, decision.Actions)
		})
	}
}

func TestReplyText(t *testing.T) {
	t.Run("addresses the author by name", func(t *testing.T) {
		decision := Classify(graph.Comment{Author: "Lan", Message: "giá bao nhiêu"})
		assert.Contains(t, decision.ReplyText, "Lan")
	})

	t.Run("falls back to a generic address", func(t *testing.T) {
		decision := Classify(graph.Comment{Message: "giá bao nhiêu"})
		assert.Contains(t, decision.ReplyText, "bạn")
	})

	t.Run("hidden comments get no reply", func(t *testing.T) {
		decision := Classify(graph.Comment{Author: "x", Message: "cho vay nhanh https://spam.example"})
		assert.Empty(t, decision.ReplyText)
	})
}

func TestHeuristicPrecedence(t *testing.T) {
	// A message that matches both abuse and a sales intent is treated as
	// abuse, not answered with a sales pitch.
	decision := Classify(graph.Comment{Message: "giá thì rẻ mà toàn lừa đảo"})
	assert.Equal(t, IntentAbuse, decision.Intent)
	assert.Equal(t, []Action{ActionHide}, decision.Actions)
}
