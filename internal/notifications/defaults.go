package notifications

// Default template bodies keyed by message type. Projects can override
// these through notification settings; the fallbacks keep the product
// usable with zero configuration.
var defaultTemplates = map[MessageType]string{
	MessageIncidentWelcome: "*{{.title}}*\n" +
		"You have been added to this incident as {{default \"participant\" .role}}.\n" +
		"Commander: {{.commander}}\n" +
		"Status: {{.status}} | Priority: {{.priority}} | Severity: {{.severity}}\n" +
		"{{.ticket_weblink}}",
	MessageIncidentUpdate: "*{{.title}}* was updated: {{.changes}}",
	MessageIncidentClosed: "*{{.title}}* has been closed. Review document: {{.review_weblink}}",
	MessageIncidentRoleChange: "{{.individual}} is now the {{.role}} for *{{.title}}*." +
		"{{if .previous}} Previously held by {{.previous}}.{{end}}",
	MessageCaseWelcome: "*{{.title}}*\n" +
		"A new case has been assigned to {{.assignee}}.\n" +
		"Status: {{.status}} | Priority: {{.priority}}",
	MessageCaseUpdate:    "*{{.title}}* was updated: {{.changes}}",
	MessageCaseEscalated: "*{{.title}}* has been escalated to incident {{.incident_name}}.",
	MessageSignalSnoozed: "Signal {{.signal}} matched snooze filter {{.filter}} and was suppressed.",
	MessageEvergreenReminder: "The following resources you own are due for review:\n{{.items}}\n" +
		"Please confirm each one is still accurate.",
	MessageOncallShiftFeedback:  "Your oncall shift for {{.service}} ended. How did it go? {{.form_weblink}}",
	MessageParticipantEphemeral: "{{.body}}",
}

// TemplateFor returns the body for a message type, preferring the
// project override when present.
func TemplateFor(mt MessageType, override string) string {
	if override != "" {
		return override
	}
	return defaultTemplates[mt]
}
