package usecase

import (
	"deskchat/internal/domain"
)

// transcript is the ordered conversation log. Insertion order is display
// order; the only mutations are append and remove-by-id.
type transcript struct {
	messages []domain.Message
}

func (t *transcript) append(message domain.Message) {
	t.messages = append(t.messages, message)
}

func (t *transcript) byID(id string) (domain.Message, bool) {
	for _, message := range t.messages {
		if message.ID == id {
			return message, true
		}
	}
	return domain.Message{}, false
}

func (t *transcript) removeByID(id string) bool {
	for i, message := range t.messages {
		if message.ID == id {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return true
		}
	}
	return false
}

func (t *transcript) snapshot() []domain.Message {
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *transcript) len() int {
	return len(t.messages)
}
