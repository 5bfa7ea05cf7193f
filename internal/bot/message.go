package bot

// Reply types rendered by the chat transport.
const (
	ReplyText    = "text"
	ReplyButtons = "buttons"
	ReplyList    = "list"
)

// Button is one tappable action on a buttons reply.
type Button struct {
	Label string `json:"label"`
	ID    string `json:"id"`
}

// ListItem is one row of a list reply.
type ListItem struct {
	Title       string `json:"title"`
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

// Message is one outgoing chat reply.
type Message struct {
	Type      string     `json:"type"`
	Content   string     `json:"content"`
	Buttons   []Button   `json:"buttons,omitempty"`
	ListItems []ListItem `json:"listItems,omitempty"`
}

// Text builds a plain text reply.
func Text(content string) Message {
	return Message{Type: ReplyText, Content: content}
}

// ErrorCard builds an error reply with optional remediation hints.
func ErrorCard(title string, hints ...string) Message {
	content := "❌ " + title
	for _, h := range hints {
		content += "\n• " + h
	}
	return Message{Type: ReplyText, Content: content}
}

// SuccessCard builds a confirmation reply with follow-up action buttons.
func SuccessCard(title, detail string, buttons ...Button) Message {
	return Message{
		Type:    ReplyButtons,
		Content: "✅ *" + title + "*\n" + detail,
		Buttons: buttons,
	}
}

// StatusItem is one labelled value on a status card.
type StatusItem struct {
	Emoji string
	Label string
	Value string
}

// StatusCard builds a key/value report reply.
func StatusCard(title string, items []StatusItem, buttons ...Button) Message {
	content := "*" + title + "*\n\n"
	for _, item := range items {
		content += item.Emoji + " " + item.Label + ": " + item.Value + "\n"
	}
	return Message{
		Type:    ReplyButtons,
		Content: content,
		Buttons: buttons,
	}
}

// ListMessage builds a list reply with a header and footer around the rows.
func ListMessage(title, subtitle string, items []ListItem, footer string) Message {
	content := "*" + title + "*\n" + subtitle
	if footer != "" {
		content += "\n\n" + footer
	}
	return Message{
		Type:      ReplyList,
		Content:   content,
		ListItems: items,
	}
}
