package cards

import "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher/callback"

// Severity is the toast type shown by the client.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Locale keys. A toast always carries exactly these two.
const (
	LocaleZhCN = "zh_cn"
	LocaleEnUS = "en_us"
)

// Toast is a short-lived localized notification shown after a card interaction.
type Toast struct {
	severity Severity
	content  string
	zhCN     string
	enUS     string
}

// NewToast builds a toast. The localized map it exposes always has both locales.
func NewToast(severity Severity, content, zhCN, enUS string) Toast {
	return Toast{severity: severity, content: content, zhCN: zhCN, enUS: enUS}
}

func (t Toast) Severity() Severity { return t.severity }
func (t Toast) Content() string    { return t.content }

// Localized returns a fresh locale → text map.
func (t Toast) Localized() map[string]string {
	return map[string]string{
		LocaleZhCN: t.zhCN,
		LocaleEnUS: t.enUS,
	}
}

func (t Toast) wire() *callback.Toast {
	return &callback.Toast{
		Type:        string(t.severity),
		Content:     t.content,
		I18nContent: t.Localized(),
	}
}

// TriggerResponse is the synchronous answer to a card-action trigger.
// The zero value leaves the card exactly as rendered.
type TriggerResponse struct {
	Card  *CardState
	Toast *Toast
}

// IsEmpty reports whether the response leaves the card unchanged.
func (r TriggerResponse) IsEmpty() bool {
	return r.Card == nil && r.Toast == nil
}

// Wire converts the response to the SDK callback type returned over the connection.
func (r TriggerResponse) Wire() *callback.CardActionTriggerResponse {
	out := &callback.CardActionTriggerResponse{}
	if r.Toast != nil {
		out.Toast = r.Toast.wire()
	}
	if r.Card != nil {
		out.Card = r.Card.Template()
	}
	return out
}
