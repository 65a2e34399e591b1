package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/campusdesk/desk/internal/core"
	"github.com/campusdesk/desk/internal/types"
)

var (
	opListMine  = operation{name: "list my threads", fallback: "채팅 목록을 불러오는데 실패했습니다."}
	opListAdmin = operation{name: "list admin threads", fallback: "관리자 채팅 목록 조회 실패"}
	opDetail    = operation{
		name:     "thread detail",
		fallback: "채팅방 정보를 불러오는데 실패했습니다.",
		missing:  "채팅방 데이터가 없습니다.",
		byStatus: threadStatusTexts,
	}
	opHistory = operation{
		name:     "message history",
		fallback: "메시지를 불러오는데 실패했습니다.",
		byStatus: threadStatusTexts,
	}
	opCreate   = operation{name: "create thread", fallback: "채팅 생성에 실패했습니다.", missing: "채팅 생성에 실패했습니다."}
	opClose    = operation{name: "close thread", fallback: "채팅 종료에 실패했습니다."}
	opSetting  = operation{name: "thread setting", fallback: "공개 설정 변경에 실패했습니다."}
	opReaction = operation{name: "toggle reaction", fallback: "공감 처리에 실패했습니다.", missing: "공감 처리에 실패했습니다."}
)

var threadStatusTexts = map[int]string{
	http.StatusForbidden: "채팅방에 접근할 권한이 없습니다.",
	http.StatusNotFound:  "채팅방을 찾을 수 없습니다.",
}

// ListMyThreads returns the caller's threads. An empty tag lists all.
func (c *Client) ListMyThreads(ctx context.Context, tag types.StatusTag, order types.DateOrder) ([]types.Thread, error) {
	query := url.Values{}
	if order != "" {
		query.Set("datefilter", string(order))
	}
	if tag != "" {
		query.Set("tag", string(tag))
	}
	var threads []types.Thread
	if err := c.doJSON(ctx, opListMine, request{method: http.MethodGet, path: "/api/chats/me", query: query}, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}

// AdminQuery selects one page of the admin directory.
type AdminQuery struct {
	Tag   types.StatusTag
	Order types.DateOrder
	Page  int
	Size  int
}

// DefaultAdminPageSize matches the admin list screen.
const DefaultAdminPageSize = 10

// ListAdminThreads returns one page of every user's threads.
func (c *Client) ListAdminThreads(ctx context.Context, q AdminQuery) (types.AdminThreadPage, error) {
	if q.Page < 0 {
		return types.AdminThreadPage{}, invalid("page", "페이지는 0 이상이어야 합니다.")
	}
	if q.Size <= 0 {
		q.Size = DefaultAdminPageSize
	}
	query := url.Values{}
	if q.Tag != "" {
		query.Set("chatTags", string(q.Tag))
	}
	if q.Order != "" {
		query.Set("dateFilter", string(q.Order))
	}
	query.Set("page", strconv.Itoa(q.Page))
	query.Set("size", strconv.Itoa(q.Size))

	var page types.AdminThreadPage
	if err := c.doJSON(ctx, opListAdmin, request{method: http.MethodGet, path: "/api/admin/chats", query: query}, &page); err != nil {
		return types.AdminThreadPage{}, err
	}
	if page.Size == 0 {
		page.Page, page.Size = q.Page, q.Size
	}
	return page, nil
}

// DetailScope picks the detail endpoint.
type DetailScope int

const (
	// ScopeMine reads a thread owned by (or assigned to) the caller.
	ScopeMine DetailScope = iota
	// ScopeAny reads any visible thread, including public board posts.
	ScopeAny
)

// GetThreadDetail returns thread metadata with its reaction state.
func (c *Client) GetThreadDetail(ctx context.Context, id int64, scope DetailScope) (types.ThreadDetail, error) {
	path := fmt.Sprintf("/api/chats/me/%d", id)
	if scope == ScopeAny {
		path = fmt.Sprintf("/api/chats/%d", id)
	}
	var detail types.ThreadDetail
	if err := c.doJSON(ctx, opDetail, request{method: http.MethodGet, path: path}, &detail); err != nil {
		return types.ThreadDetail{}, err
	}
	if detail.ID == 0 {
		detail.ID = id
	}
	return detail, nil
}

// GetMessageHistory returns up to size messages, oldest first. When the
// server returns more than size, the most recent ones are kept.
func (c *Client) GetMessageHistory(ctx context.Context, id int64, size int) ([]types.Message, error) {
	if size <= 0 {
		size = core.DefaultHistorySize
	}
	query := url.Values{}
	query.Set("page", "0")
	query.Set("size", strconv.Itoa(size))
	query.Set("sort", "createdAt,asc")

	var messages []types.Message
	path := fmt.Sprintf("/api/messages/%d", id)
	if err := c.doJSON(ctx, opHistory, request{method: http.MethodGet, path: path, query: query}, &messages); err != nil {
		return nil, err
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt.Time)
	})
	if len(messages) > size {
		messages = messages[len(messages)-size:]
	}
	return messages, nil
}

type createdThread struct {
	types.Thread
	ChatID int64 `json:"chatId"`
}

// CreateThread opens a new inquiry thread.
func (c *Client) CreateThread(ctx context.Context, title string) (types.Thread, error) {
	title = core.NormalizeText(title)
	if title == "" {
		return types.Thread{}, invalid("title", "채팅 제목을 입력해주세요.")
	}
	var created createdThread
	body := map[string]string{"title": title}
	if err := c.doJSON(ctx, opCreate, request{method: http.MethodPost, path: "/api/chats", body: body}, &created); err != nil {
		return types.Thread{}, err
	}
	thread := created.Thread
	if thread.ID == 0 {
		thread.ID = created.ChatID
	}
	if thread.Title == "" {
		thread.Title = title
	}
	if thread.Tag == "" {
		thread.Tag = types.TagInProgress
	}
	return thread, nil
}

// CloseThread moves a thread to a closing tag.
func (c *Client) CloseThread(ctx context.Context, id int64, tag types.StatusTag) error {
	if !tag.Closing() {
		return invalid("tag", fmt.Sprintf("종료 상태는 ADOPT, REJECT, END 중 하나여야 합니다: %q", tag))
	}
	body := map[string]any{"chatRoomId": id, "tag": tag}
	return c.doJSON(ctx, opClose, request{method: http.MethodPatch, path: "/api/chats/close", body: body}, nil)
}

// UpdateThreadSetting publishes or hides a thread on the board.
func (c *Client) UpdateThreadSetting(ctx context.Context, id int64, visibility types.Visibility) error {
	if _, err := types.ParseVisibility(string(visibility)); err != nil {
		return invalid("visibility", err.Error())
	}
	public, anonymous := visibility.Flags()
	body := map[string]any{"chatRoomId": id, "isPublic": public, "isAnonymous": anonymous}
	return c.doJSON(ctx, opSetting, request{method: http.MethodPatch, path: "/api/chats/setting", body: body}, nil)
}

// ReactionCounts is the server's tally after a reaction toggle.
type ReactionCounts struct {
	ChatRoomID   int64 `json:"chatRoomId"`
	LikeCount    int   `json:"likeCnt"`
	DislikeCount int   `json:"dislikeCnt"`
}

// ToggleReaction sends a like or dislike; repeating the caller's current
// reaction clears it on the server.
func (c *Client) ToggleReaction(ctx context.Context, id int64, reaction types.ReactionType) (ReactionCounts, error) {
	if reaction != types.ReactionLike && reaction != types.ReactionDislike {
		return ReactionCounts{}, invalid("reactionType", "공감 종류는 LIKE 또는 DISLIKE 여야 합니다.")
	}
	var counts ReactionCounts
	body := map[string]any{"reactionType": reaction}
	path := fmt.Sprintf("/api/chats/%d", id)
	if err := c.doJSON(ctx, opReaction, request{method: http.MethodPatch, path: path, body: body}, &counts); err != nil {
		return ReactionCounts{}, err
	}
	return counts, nil
}
