// Package notion builds Notion API payloads and sends them.
package notion

import (
	"fmt"
	"strings"
)

// Property names shared by the database schema and the page payload.
const (
	PropMessage             = "message"
	PropCompanionTimeMillis = "companionTimeMillis"
	PropCompanionTimeDate   = "companionTimeDate"
	PropElapsedTime         = "elapsedTime"
	PropTimestampValue      = "timestampValue"
	PropLoggingDetails      = "loggingDetails"
	PropCreateTime          = "createTime"
)

// MaxRichTextLength is the per-object content limit of the Notion API.
const MaxRichTextLength = 2000

// TimestampStyle selects how elapsed time is rendered.
type TimestampStyle string

const (
	// StyleFull always renders three segments: 00:MM:SS under an hour.
	StyleFull TimestampStyle = "full"
	// StyleCompact drops the hour segment under an hour: MM:SS.
	StyleCompact TimestampStyle = "compact"
)

// ParseTimestampStyle maps a config value to a style, defaulting to StyleFull.
func ParseTimestampStyle(s string) TimestampStyle {
	if TimestampStyle(strings.ToLower(strings.TrimSpace(s))) == StyleCompact {
		return StyleCompact
	}
	return StyleFull
}

// FormatElapsed renders now-start as HH:MM:SS.
// Negative spans are not guarded and render with signed segments.
func FormatElapsed(nowMs, startMs int64, style TimestampStyle) string {
	elapsed := nowMs - startMs
	seconds := floorDiv(elapsed, 1000)
	minutes := floorDiv(seconds, 60)
	hours := floorDiv(minutes, 60)

	seconds %= 60
	minutes %= 60

	if hours != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	if style == StyleCompact {
		return fmt.Sprintf("%02d:%02d", minutes, seconds)
	}
	return fmt.Sprintf("00:%02d:%02d", minutes, seconds)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Text is the text object of a rich text item.
type Text struct {
	Content string `json:"content"`
}

// RichText is a single rich text item.
type RichText struct {
	Type string `json:"type,omitempty"`
	Text Text   `json:"text"`
}

func richText(content string) []RichText {
	return []RichText{{Text: Text{Content: truncate(content, MaxRichTextLength)}}}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// PageParent points a page at its database.
type PageParent struct {
	DatabaseID string `json:"database_id"`
}

// PageProperty is one typed property value of a page.
type PageProperty struct {
	Title    []RichText `json:"title,omitempty"`
	RichText []RichText `json:"rich_text,omitempty"`
	Number   *int64     `json:"number,omitempty"`
}

// PagePayload is the body of POST /v1/pages.
type PagePayload struct {
	Parent     PageParent              `json:"parent"`
	Properties map[string]PageProperty `json:"properties"`
}

// Message is one row to append to the session database.
type Message struct {
	DatabaseID     string
	Text           string
	NowMillis      int64
	ISODate        string
	ElapsedMillis  int64
	Timestamp      string
	LoggingDetails string
}

// NewPagePayload builds the page-creation body for msg.
func NewPagePayload(msg Message) PagePayload {
	now := msg.NowMillis
	elapsed := msg.ElapsedMillis

	return PagePayload{
		Parent: PageParent{DatabaseID: msg.DatabaseID},
		Properties: map[string]PageProperty{
			PropMessage:             {Title: richText(msg.Text)},
			PropCompanionTimeMillis: {Number: &now},
			PropCompanionTimeDate:   {RichText: richText(msg.ISODate)},
			PropElapsedTime:         {Number: &elapsed},
			PropTimestampValue:      {RichText: richText(msg.Timestamp)},
			PropLoggingDetails:      {RichText: richText(msg.LoggingDetails)},
		},
	}
}

// DatabaseParent points a database at its parent page.
type DatabaseParent struct {
	Type   string `json:"type"`
	PageID string `json:"page_id"`
}

// DatabasePayload is the body of POST /v1/databases/.
// Each schema entry maps a property name to {"<type>": {}}.
type DatabasePayload struct {
	Parent     DatabaseParent                 `json:"parent"`
	Title      []RichText                     `json:"title"`
	Properties map[string]map[string]struct{} `json:"properties"`
}

// NewDatabasePayload builds the database-creation body.
func NewDatabasePayload(parentPageID, title string) DatabasePayload {
	return DatabasePayload{
		Parent: DatabaseParent{Type: "page_id", PageID: parentPageID},
		Title: []RichText{{
			Type: "text",
			Text: Text{Content: truncate(title, MaxRichTextLength)},
		}},
		Properties: map[string]map[string]struct{}{
			PropMessage:             {"title": {}},
			PropCompanionTimeMillis: {"number": {}},
			PropCompanionTimeDate:   {"rich_text": {}},
			PropElapsedTime:         {"number": {}},
			PropTimestampValue:      {"rich_text": {}},
			PropCreateTime:          {"created_time": {}},
			PropLoggingDetails:      {"rich_text": {}},
		},
	}
}
