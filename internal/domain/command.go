package domain

// Command is an inbound request from the messaging channel: a command name,
// positional arguments, and the stable identity of the sender. The core
// never sees transport details.
type Command struct {
	Name   string   `json:"command"`
	Args   []string `json:"args,omitempty"`
	Sender string   `json:"sender_identity"`

	// SenderName is the sender's display name as reported by the channel,
	// used on first registration. Optional.
	SenderName string `json:"sender_name,omitempty"`
}

// Option is one selectable follow-up choice attached to a reply. The
// channel renders these as inline buttons; Value is opaque to it and comes
// back as the next command's argument.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Reply is the outcome of a command: text plus optional ordered choices.
type Reply struct {
	Text    string   `json:"text"`
	Options []Option `json:"options,omitempty"`
}
