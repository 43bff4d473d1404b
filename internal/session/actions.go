package session

// Action ids exposed to control surfaces.
const (
	ActionStartSession = "startSession"
	ActionCreateMarker = "createMarker"
	ActionStopSession  = "stopSession"
)

// ActionOption is one input of an action.
type ActionOption struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Label   string `json:"label"`
	Default any    `json:"default"`
}

// Action describes a command a control surface can bind to a button.
type Action struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Options []ActionOption `json:"options"`
}

// Actions returns the action definitions in display order.
func Actions() []Action {
	return []Action{
		{
			ID:   ActionStartSession,
			Name: "Start a Session",
			Options: []ActionOption{
				{Type: "textinput", ID: "databaseName", Label: "Database Name", Default: ""},
				{Type: "checkbox", ID: "autoCreateStartRecord", Label: "Automatically create start record?", Default: false},
			},
		},
		{
			ID:   ActionCreateMarker,
			Name: "Create Marker",
			Options: []ActionOption{
				{Type: "textinput", ID: "message", Label: "Message", Default: ""},
			},
		},
		{
			ID:      ActionStopSession,
			Name:    "Stop a Session",
			Options: []ActionOption{},
		},
	}
}
