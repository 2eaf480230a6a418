// Package model holds the wire and domain types shared by every client
// package. Field tags follow the chat backend's JSON contract exactly.
package model

import "time"

// Direction is the local classification of a message relative to the
// current session identity. It is computed client-side and never
// transmitted.
type Direction string

const (
	DirectionSelf     Direction = "self"
	DirectionReceived Direction = "recv"
)

// Marker contents the server uses for membership notifications. A
// message whose content equals one of these literals is a join or
// leave notice, not an ordinary chat message.
const (
	ContentJoined = "joined the room"
	ContentLeft   = "left the room"
)

// Credential is the identity record issued by the auth API. Replaced
// wholesale on login, refresh and logout; never mutated field by field.
type Credential struct {
	Nickname     string `json:"nickname"`
	ID           string `json:"id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Room is a chat room as listed by the directory API.
type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Participant is a member of a room session. Identity within a session
// is the nickname string; two participants with the same nickname are
// indistinguishable.
type Participant struct {
	Nickname string `json:"nickname"`
}

// Message is a single chat message as delivered over the channel.
// Direction is filled in by the session engine before the message is
// appended to the log.
type Message struct {
	Content     string    `json:"content"`
	UserID      string    `json:"user_id"`
	Nickname    string    `json:"nickname"`
	RoomID      string    `json:"room_id"`
	TimeCreated time.Time `json:"time_created"`
	Direction   Direction `json:"-"`
}
