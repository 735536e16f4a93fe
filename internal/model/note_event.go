package model

// NoteChangedEvent is the payload published to the re-index queue when a
// note's content changes. Delivery is at-least-once; the re-index
// workflow is idempotent, so duplicate deliveries are harmless.
type NoteChangedEvent struct {
	EventID   string  `json:"event_id"`
	NoteID    uint    `json:"note_id"`
	UserID    uint    `json:"user_id"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	CourseTag *string `json:"course_tag,omitempty"`
}
