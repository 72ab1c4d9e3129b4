package api

import "encoding/json"

type SessionInfo struct {
	Id   string `json:"sid"`
	Name string `json:"name,omitempty"`
}

type JoinRequest struct {
	Name string `json:"name"`
}

type JoinAckResponse struct {
	Sid string `json:"sid"`
}

type PresenceSnapshotResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

type SessionJoinedNotice = SessionInfo

type SessionLeftNotice struct {
	Id string `json:"sid"`
}

type OfferRequest struct {
	Sdp string `json:"sdp"`
}

type AnswerRequest struct {
	Sdp string `json:"sdp"`
}

type IceCandidateRequest struct {
	Candidate json.RawMessage `json:"candidate"`
}

type VideoMessageRequest struct {
	VideoUrl string `json:"video_url"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type VideoMessageAckNotice struct {
	To string `json:"to"`
}

type StickerUpdateNotice struct {
	Stickers json.RawMessage `json:"stickers"`
}

type StudioJoinNotice struct {
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
}

type CursorUpdateNotice struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color,omitempty"`
	Name  string  `json:"name,omitempty"`
}

type ObjectChangeNotice struct {
	ObjectId int64           `json:"oid"`
	State    json.RawMessage `json:"json,omitempty"`
}

type ReactionNotice struct {
	Emoji string `json:"emoji"`
}

type CanvasSyncAskNotice struct {
	RequestId string `json:"rid"`
}

type CanvasObject struct {
	ObjectId int64           `json:"oid"`
	OwnerId  string          `json:"owner,omitempty"`
	State    json.RawMessage `json:"json"`
}

type CanvasSyncResponse struct {
	RequestId    string         `json:"rid"`
	Objects      []CanvasObject `json:"objects"`
	NextObjectId int64          `json:"next_oid"`
}
