package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Identity is the authenticated user's profile as derived from the access token.
type Identity struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsAdmin    bool   `json:"is_admin"`
	Email      string `json:"email"`
	StudentNum string `json:"student_num"`
}

// Anonymous reports whether the identity carries no claims at all.
func (i Identity) Anonymous() bool {
	return i == Identity{}
}

// StatusTag is a thread's lifecycle label.
type StatusTag string

const (
	TagInProgress StatusTag = "IN_PROGRESS"
	TagAdopt      StatusTag = "ADOPT"
	TagReject     StatusTag = "REJECT"
	TagEnd        StatusTag = "END"
)

// AllTags lists every tag in display order.
var AllTags = []StatusTag{TagInProgress, TagAdopt, TagReject, TagEnd}

// ParseStatusTag accepts the wire value in any case.
func ParseStatusTag(value string) (StatusTag, error) {
	tag := StatusTag(strings.ToUpper(strings.TrimSpace(value)))
	switch tag {
	case TagInProgress, TagAdopt, TagReject, TagEnd:
		return tag, nil
	case "INPROGRESS", "IN-PROGRESS":
		return TagInProgress, nil
	}
	return "", fmt.Errorf("unknown status tag %q", value)
}

// Closing reports whether the tag is a valid close transition target.
func (t StatusTag) Closing() bool {
	return t == TagAdopt || t == TagReject || t == TagEnd
}

// Label is the Korean display text used by the original screens.
func (t StatusTag) Label() string {
	switch t {
	case TagInProgress:
		return "진행중"
	case TagAdopt:
		return "채택"
	case TagReject:
		return "반려"
	case TagEnd:
		return "종료"
	}
	return string(t)
}

// UnmarshalJSON accepts either a string or a list whose first entry is the tag.
func (t *StatusTag) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = StatusTag(single)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	if len(list) == 0 {
		*t = ""
		return nil
	}
	*t = StatusTag(list[0])
	return nil
}

// DateOrder is the directory sort order.
type DateOrder string

const (
	OrderRecent DateOrder = "RECENT"
	OrderOldest DateOrder = "OLDEST"
)

// ParseDateOrder defaults to RECENT for an empty value.
func ParseDateOrder(value string) (DateOrder, error) {
	switch DateOrder(strings.ToUpper(strings.TrimSpace(value))) {
	case "", OrderRecent:
		return OrderRecent, nil
	case OrderOldest:
		return OrderOldest, nil
	}
	return "", fmt.Errorf("unknown date order %q (use RECENT or OLDEST)", value)
}

// ReactionType is a like/dislike vote. The empty value means no reaction.
type ReactionType string

const (
	ReactionNone    ReactionType = ""
	ReactionLike    ReactionType = "LIKE"
	ReactionDislike ReactionType = "DISLIKE"
)

// ParseReactionType accepts like/dislike in any case.
func ParseReactionType(value string) (ReactionType, error) {
	switch ReactionType(strings.ToUpper(strings.TrimSpace(value))) {
	case ReactionLike, "UP", "+1":
		return ReactionLike, nil
	case ReactionDislike, "DOWN", "-1":
		return ReactionDislike, nil
	}
	return ReactionNone, fmt.Errorf("unknown reaction %q (use like or dislike)", value)
}

// ReactionState holds the counts and the current user's vote for a thread.
type ReactionState struct {
	LikeCount    int          `json:"likeCnt"`
	DislikeCount int          `json:"dislikeCnt"`
	Mine         ReactionType `json:"myReaction"`
}

// Toggle returns the vote that results from selecting next.
// Selecting the current vote again clears it.
func (r ReactionState) Toggle(next ReactionType) ReactionType {
	if r.Mine == next {
		return ReactionNone
	}
	return next
}

// Timestamp decodes the server's ISO date-times, with or without a zone.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses zone-less values in the local zone.
func ParseTimestamp(value string) (Timestamp, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", value)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var millis int64
		if numErr := json.Unmarshal(data, &millis); numErr != nil {
			return err
		}
		*t = Timestamp{Time: time.UnixMilli(millis)}
		return nil
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

// Thread is a single 1:1 inquiry conversation.
type Thread struct {
	ID         int64     `json:"chatRoomId"`
	Title      string    `json:"title"`
	Tag        StatusTag `json:"tag"`
	Author     string    `json:"author,omitempty"`
	StudentNum int64     `json:"studentNum,omitempty"`
	CreatedAt  Timestamp `json:"createdAt"`
}

// ThreadDetail is a thread snapshot with its reaction state.
type ThreadDetail struct {
	Thread
	Reactions ReactionState `json:"-"`
	// Items is populated by endpoints that embed the message list.
	Items []Message `json:"items,omitempty"`
}

type threadDetailWire struct {
	Thread
	LikeCount    int          `json:"likeCnt"`
	DislikeCount int          `json:"dislikeCnt"`
	Mine         ReactionType `json:"myReaction"`
	Items        []Message    `json:"items,omitempty"`
}

func (d *ThreadDetail) UnmarshalJSON(data []byte) error {
	var wire threadDetailWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	d.Thread = wire.Thread
	d.Reactions = ReactionState{LikeCount: wire.LikeCount, DislikeCount: wire.DislikeCount, Mine: wire.Mine}
	d.Items = wire.Items
	return nil
}

func (d ThreadDetail) MarshalJSON() ([]byte, error) {
	return json.Marshal(threadDetailWire{
		Thread:       d.Thread,
		LikeCount:    d.Reactions.LikeCount,
		DislikeCount: d.Reactions.DislikeCount,
		Mine:         d.Reactions.Mine,
		Items:        d.Items,
	})
}

// AdminThreadPage is one server-side page of the admin directory.
type AdminThreadPage struct {
	Threads    []Thread `json:"content"`
	TotalPages int      `json:"totalPages"`
	Page       int      `json:"number"`
	Size       int      `json:"size"`
}

// DeletedPlaceholder replaces the text of deleted messages at render time.
const DeletedPlaceholder = "삭제된 메시지입니다."

// Message is one chat line in a thread.
type Message struct {
	Text       string    `json:"message"`
	Sender     int64     `json:"sender"`
	SenderName string    `json:"senderName"`
	CreatedAt  Timestamp `json:"createdAt"`
	Deleted    bool      `json:"deleted"`
}

type messageWire struct {
	Text       string    `json:"message"`
	Sender     int64     `json:"sender"`
	SenderName string    `json:"senderName"`
	CreatedAt  Timestamp `json:"createdAt"`
	Deleted    bool      `json:"deleted"`
	IsDeleted  bool      `json:"isDeleted"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var wire messageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*m = Message{
		Text:       wire.Text,
		Sender:     wire.Sender,
		SenderName: wire.SenderName,
		CreatedAt:  wire.CreatedAt,
		Deleted:    wire.Deleted || wire.IsDeleted,
	}
	return nil
}

// DisplayText never exposes the body of a deleted message.
func (m Message) DisplayText() string {
	if m.Deleted {
		return DeletedPlaceholder
	}
	return m.Text
}

// SenderID formats the numeric sender for comparison with Identity.ID.
func (m Message) SenderID() string {
	return fmt.Sprintf("%d", m.Sender)
}

// Visibility is how a closed thread is published to the public board.
type Visibility string

const (
	VisibilityPrivate   Visibility = "private"
	VisibilityAnonymous Visibility = "anonymous"
	VisibilityNamed     Visibility = "named"
)

// ParseVisibility accepts the English names and the original Korean labels.
func ParseVisibility(value string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "private", "비공개":
		return VisibilityPrivate, nil
	case "anonymous", "anon", "익명":
		return VisibilityAnonymous, nil
	case "named", "public", "실명":
		return VisibilityNamed, nil
	}
	return "", fmt.Errorf("unknown visibility %q (use private, anonymous or named)", value)
}

// Flags maps the visibility onto the server's isPublic/isAnonymous pair.
func (v Visibility) Flags() (isPublic, isAnonymous bool) {
	return v != VisibilityPrivate, v == VisibilityAnonymous
}

// BoardPost is a published thread on the public board.
type BoardPost struct {
	ThreadDetail
	Anonymous bool
}

func (p *BoardPost) UnmarshalJSON(data []byte) error {
	if err := p.ThreadDetail.UnmarshalJSON(data); err != nil {
		return err
	}
	var flags struct {
		IsAnonymous bool `json:"isAnonymous"`
	}
	if err := json.Unmarshal(data, &flags); err != nil {
		return err
	}
	p.Anonymous = flags.IsAnonymous
	return nil
}

func (p BoardPost) MarshalJSON() ([]byte, error) {
	data, err := p.ThreadDetail.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	fields["isAnonymous"] = p.Anonymous
	return json.Marshal(fields)
}

// Credentials is the access/refresh token pair returned by login.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Profile is the server's view of the current user.
type Profile struct {
	UserID     int64  `json:"userId"`
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	StudentNum int64  `json:"studentNum"`
}

// EffectiveID prefers userId over id, as the server uses both.
func (p Profile) EffectiveID() int64 {
	if p.UserID != 0 {
		return p.UserID
	}
	return p.ID
}
