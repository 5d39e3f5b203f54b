package cards

// TemplateIDs holds the opaque template id of every card the bots send.
// Ids come from configuration and are never validated.
type TemplateIDs struct {
	Welcome   string
	Alarm     string
	Resolved  string
	Approving string
	Approved  string
}
