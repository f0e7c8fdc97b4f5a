package models

import "time"

// Chat_Request is the body of a chat turn.
type Chat_Request struct {
	ThreadID  string `json:"thread_id"`
	UserInput string `json:"user_input"`
}

// ChatReply is the structured answer shown to the user. Products is null
// when the reply is not about catalog items.
type ChatReply struct {
	Message  string   `json:"message"`
	Products []string `json:"products"`
}

// Classification is the result of image analysis. Both fields are null when
// no vocabulary entry matched.
type Classification struct {
	Category *string `json:"category"`
	Color    *string `json:"color"`
}

// CheckpointResponse describes a stored checkpoint without its message bodies.
type CheckpointResponse struct {
	ThreadID     string                 `json:"thread_id"`
	CheckpointID string                 `json:"checkpoint_id"`
	Version      int64                  `json:"version"`
	MessageCount int                    `json:"message_count"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	UpdatedAt    time.Time              `json:"updated_at"`
}
