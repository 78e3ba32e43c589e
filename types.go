package kick

import "encoding/json"

// User is the authenticated user's own record as returned by
// GET /public/v1/users.
type User struct {
	UserID         int64  `json:"user_id"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// Category identifies a stream category.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Channel is the broadcaster's own channel record as returned by
// GET /public/v1/channels.
type Channel struct {
	BroadcasterUserID  int64    `json:"broadcaster_user_id"`
	Slug               string   `json:"slug"`
	ChannelDescription string   `json:"channel_description,omitempty"`
	StreamTitle        string   `json:"stream_title,omitempty"`
	Category           Category `json:"category"`
	CustomTags         []string `json:"custom_tags,omitempty"`
}

// ChannelUpdate names the channel fields that can be changed with
// PATCH /public/v1/channels. Nil fields are left untouched; at least one
// must be set. A non-nil empty CustomTags slice clears all tags.
type ChannelUpdate struct {
	StreamTitle *string
	CategoryID  *int64
	CustomTags  []string
}

// MarshalJSON emits only the fields that are set. Nil means "leave
// untouched" and is omitted; a non-nil empty CustomTags slice must survive
// as [] so a clear-tags request reaches the server.
func (u ChannelUpdate) MarshalJSON() ([]byte, error) {
	payload := make(map[string]any, 3)
	if u.StreamTitle != nil {
		payload["stream_title"] = *u.StreamTitle
	}
	if u.CategoryID != nil {
		payload["category_id"] = *u.CategoryID
	}
	if u.CustomTags != nil {
		payload["custom_tags"] = u.CustomTags
	}
	return json.Marshal(payload)
}

// dataEnvelope is the {"data": [...]} wrapper the API puts around every
// response body.
type dataEnvelope[T any] struct {
	Data []T `json:"data"`
}
