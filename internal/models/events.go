package models

// ChatEvent is one of MessageCreated, MessageChanged or MessageDeleted.
type ChatEvent interface {
	isChatEvent()
}

// MessageCreated is a new Slack message.
type MessageCreated struct {
	Location       ChatLocation
	Text           string
	EventTimestamp string
}

// MessageChanged is an edit of an existing Slack message.
type MessageChanged struct {
	Location       ChatLocation
	PreviousText   string
	Text           string
	EventTimestamp string
}

// MessageDeleted is the removal of a Slack message.
type MessageDeleted struct {
	Location       ChatLocation
	PreviousText   string
	EventTimestamp string
}

func (MessageCreated) isChatEvent() {}
func (MessageChanged) isChatEvent() {}
func (MessageDeleted) isChatEvent() {}

// CodeEventKind enumerates the pull request state changes that trigger a reaction.
type CodeEventKind string

const (
	CodeEventClosed           CodeEventKind = "closed"
	CodeEventMerged           CodeEventKind = "merged"
	CodeEventCommented        CodeEventKind = "commented"
	CodeEventChangesRequested CodeEventKind = "changes_requested"
	CodeEventApproved         CodeEventKind = "approved"
)

// CodeEvent is a normalized GitHub event. Actor is empty for Closed and Merged.
type CodeEvent struct {
	Kind  CodeEventKind
	URL   string
	Actor string
}

func Closed(url string) *CodeEvent {
	return &CodeEvent{Kind: CodeEventClosed, URL: url}
}

func Merged(url string) *CodeEvent {
	return &CodeEvent{Kind: CodeEventMerged, URL: url}
}

func Commented(url, actor string) *CodeEvent {
	return &CodeEvent{Kind: CodeEventCommented, URL: url, Actor: actor}
}

func ChangesRequested(url, actor string) *CodeEvent {
	return &CodeEvent{Kind: CodeEventChangesRequested, URL: url, Actor: actor}
}

func Approved(url, actor string) *CodeEvent {
	return &CodeEvent{Kind: CodeEventApproved, URL: url, Actor: actor}
}
