// Package hostbridge carries notifications from the wizard to the page that
// embeds it. Messages are fire-and-forget: the wizard never waits on the host.
package hostbridge

import "sync"

// Message actions understood by the embedding page.
const (
	ActionHideFields     = "hideFields"
	ActionHideElement    = "hideElement"
	ActionShowElement    = "showElement"
	ActionFormSubmitted  = "formSubmitted"
	ActionWebhookSuccess = "webhookSuccess"
)

// Message is one tagged notification, serialised as {action, ...payload}.
type Message struct {
	Action    string   `json:"action"`
	Fields    []string `json:"fields,omitempty"`
	ElementID string   `json:"elementId,omitempty"`
	FormData  any      `json:"formData,omitempty"`
}

// Notifier is what the wizard talks to. Implementations must not block.
type Notifier interface {
	NotifyFieldsHidden(ids []string)
	NotifyElementHidden(id string)
	NotifyElementShown(id string)
	NotifyFormSubmitted(payload any)
	NotifyWebhookSuccess()
}

// Outbox collects messages for one request. The server returns them to the
// iframe, which posts each one to window.parent.
type Outbox struct {
	mu   sync.Mutex
	msgs []Message
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) NotifyFieldsHidden(ids []string) {
	if len(ids) == 0 {
		return
	}
	o.push(Message{Action: ActionHideFields, Fields: append([]string(nil), ids...)})
}

func (o *Outbox) NotifyElementHidden(id string) {
	if id == "" {
		return
	}
	o.push(Message{Action: ActionHideElement, ElementID: id})
}

func (o *Outbox) NotifyElementShown(id string) {
	if id == "" {
		return
	}
	o.push(Message{Action: ActionShowElement, ElementID: id})
}

func (o *Outbox) NotifyFormSubmitted(payload any) {
	o.push(Message{Action: ActionFormSubmitted, FormData: payload})
}

func (o *Outbox) NotifyWebhookSuccess() {
	o.push(Message{Action: ActionWebhookSuccess})
}

// Drain returns the queued messages in order and empties the outbox. It
// never returns nil so the JSON form is always an array.
func (o *Outbox) Drain() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.msgs
	o.msgs = nil
	if out == nil {
		out = []Message{}
	}
	return out
}

func (o *Outbox) push(m Message) {
	o.mu.Lock()
	o.msgs = append(o.msgs, m)
	o.mu.Unlock()
}

// Discard drops every message.
type Discard struct{}

func (Discard) NotifyFieldsHidden([]string) {}
func (Discard) NotifyElementHidden(string)  {}
func (Discard) NotifyElementShown(string)   {}
func (Discard) NotifyFormSubmitted(any)     {}
func (Discard) NotifyWebhookSuccess()       {}
