package config

// Field describes one configuration input shown by a host UI.
type Field struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Label    string `json:"label"`
	Width    int    `json:"width"`
	Required bool   `json:"required,omitempty"`
	Value    string `json:"value,omitempty"`
}

// Fields returns the configuration form definition.
func Fields() []Field {
	return []Field{
		{
			Type:  "static-text",
			ID:    "info",
			Label: "Information",
			Width: 12,
			Value: "Use this module to send timestamp information to Notion.",
		},
		{Type: "textinput", ID: "apiKey", Label: "Notion API Key", Width: 12, Required: true},
		{Type: "textinput", ID: "parentPageId", Label: "Parent Page ID", Width: 12, Required: true},
	}
}
