package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/campusdesk/desk/internal/types"
)

var opBoard = operation{name: "public board", fallback: "게시판을 불러오는데 실패했습니다."}

// ValidateBoardTag accepts the empty tag, ADOPT and REJECT.
func ValidateBoardTag(tag types.StatusTag) error {
	switch tag {
	case "", types.TagAdopt, types.TagReject:
		return nil
	}
	return invalid("tag", "필터링은 채택 또는 반려만 선택할 수 있습니다.")
}

// ListBoard returns published threads.
func (c *Client) ListBoard(ctx context.Context, tag types.StatusTag, order types.DateOrder) ([]types.BoardPost, error) {
	if err := ValidateBoardTag(tag); err != nil {
		return nil, err
	}
	query := url.Values{}
	if order != "" {
		query.Set("datefilter", string(order))
	}
	if tag != "" {
		query.Set("tag", string(tag))
	}
	var posts []types.BoardPost
	if err := c.doJSON(ctx, opBoard, request{method: http.MethodGet, path: "/api/board", query: query}, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}
