package domain

// ActionKind identifies the outbound call an Action maps to.
type ActionKind string

const (
	ActionSendText          ActionKind = "send_text"
	ActionEditText          ActionKind = "edit_text"
	ActionSendInvoice       ActionKind = "send_invoice"
	ActionAnswerCallback    ActionKind = "answer_callback"
	ActionAnswerPrecheckout ActionKind = "answer_precheckout"
)

// Button is a single inline keyboard button.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Keyboard is a grid of inline buttons, row by row.
type Keyboard [][]Button

// Invoice describes a payment request shown to the user.
type Invoice struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Payload     string `json:"payload"`
	Currency    string `json:"currency"`
	PriceUnits  int    `json:"price_units"`
}

// Action is an outbound effect requested by the engine. It is a pure
// description; only the dispatcher executes it.
type Action struct {
	Kind       ActionKind `json:"kind"`
	ChatID     int64      `json:"chat_id,omitempty"`
	MessageID  int        `json:"message_id,omitempty"`
	CallbackID string     `json:"callback_id,omitempty"`
	QueryID    string     `json:"query_id,omitempty"`
	Text       string     `json:"text,omitempty"`
	Keyboard   Keyboard   `json:"keyboard,omitempty"`
	Invoice    *Invoice   `json:"invoice,omitempty"`
	OK         bool       `json:"ok,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// SendText builds a SendText action.
func SendText(chatID int64, text string, kb Keyboard) Action {
	return Action{Kind: ActionSendText, ChatID: chatID, Text: text, Keyboard: kb}
}

// EditText builds an EditText action.
func EditText(chatID int64, messageID int, text string, kb Keyboard) Action {
	return Action{Kind: ActionEditText, ChatID: chatID, MessageID: messageID, Text: text, Keyboard: kb}
}

// SendInvoice builds a SendInvoice action.
func SendInvoice(chatID int64, inv Invoice) Action {
	return Action{Kind: ActionSendInvoice, ChatID: chatID, Invoice: &inv}
}

// AnswerCallback builds an AnswerCallback action.
func AnswerCallback(callbackID, text string) Action {
	return Action{Kind: ActionAnswerCallback, CallbackID: callbackID, Text: text}
}

// AnswerPrecheckout builds an AnswerPrecheckout action.
func AnswerPrecheckout(queryID string, ok bool, reason string) Action {
	return Action{Kind: ActionAnswerPrecheckout, QueryID: queryID, OK: ok, Reason: reason}
}
