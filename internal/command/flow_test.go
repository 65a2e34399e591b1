package command

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/campusdesk/desk/internal/core"
	"github.com/campusdesk/desk/internal/db"
	"github.com/campusdesk/desk/internal/types"
	"github.com/golang-jwt/jwt/v4"
)

func setupCommandEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DESK_CONFIG_DIR", t.TempDir())
	t.Setenv("DESK_STATE_DIR", t.TempDir())
}

// fakeDesk is an in-memory help desk backend.
type fakeDesk struct {
	mu      sync.Mutex
	token   string
	nextID  int64
	threads []types.Thread
	history []types.Message
}

func newFakeDesk(t *testing.T) (*fakeDesk, *httptest.Server) {
	t.Helper()
	return newFakeDeskWithClaims(t, jwt.MapClaims{
		"userId": 42,
		"name":   "관리자",
		"email":  "admin@campus.ac.kr",
		"role":   "ADMIN",
	})
}

func newFakeDeskWithClaims(t *testing.T, claims jwt.MapClaims) (*fakeDesk, *httptest.Server) {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	desk := &fakeDesk{token: token, nextID: 1}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", desk.login)
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, nil)
	})
	mux.HandleFunc("GET /api/users/me", desk.authed(desk.me))
	mux.HandleFunc("POST /api/chats", desk.authed(desk.create))
	mux.HandleFunc("GET /api/chats/me", desk.authed(desk.listMine))
	mux.HandleFunc("GET /api/chats/me/{id}", desk.authed(desk.detail))
	mux.HandleFunc("GET /api/chats/{id}", desk.authed(desk.detail))
	mux.HandleFunc("PATCH /api/chats/close", desk.authed(desk.close))
	mux.HandleFunc("GET /api/admin/chats", desk.authed(desk.listAdmin))
	mux.HandleFunc("GET /api/messages/{id}", desk.authed(func(w http.ResponseWriter, r *http.Request) {
		desk.mu.Lock()
		history := append([]types.Message{}, desk.history...)
		desk.mu.Unlock()
		writeData(w, history)
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return desk, srv
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}

func (d *fakeDesk) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+d.token {
			writeFailure(w, http.StatusUnauthorized, "인증이 필요합니다.")
			return
		}
		next(w, r)
	}
}

func (d *fakeDesk) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password != "pw1234" {
		writeFailure(w, http.StatusUnauthorized, "이메일 또는 비밀번호가 올바르지 않습니다.")
		return
	}
	writeData(w, types.Credentials{AccessToken: d.token, RefreshToken: "refresh"})
}

func (d *fakeDesk) me(w http.ResponseWriter, r *http.Request) {
	writeData(w, types.Profile{UserID: 42, Email: "admin@campus.ac.kr", Name: "관리자", StudentNum: 2020001})
}

func (d *fakeDesk) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFailure(w, http.StatusBadRequest, "잘못된 요청입니다.")
		return
	}
	d.mu.Lock()
	thread := types.Thread{
		ID:        d.nextID,
		Title:     body.Title,
		Tag:       types.TagInProgress,
		Author:    "관리자",
		CreatedAt: types.Timestamp{Time: time.Now().Add(-time.Minute)},
	}
	d.nextID++
	d.threads = append(d.threads, thread)
	d.mu.Unlock()
	writeData(w, map[string]any{"chatId": thread.ID, "title": thread.Title, "tag": []string{string(thread.Tag)}})
}

func (d *fakeDesk) filtered(tag string) []types.Thread {
	d.mu.Lock()
	defer d.mu.Unlock()
	threads := []types.Thread{}
	for _, thread := range d.threads {
		if tag == "" || string(thread.Tag) == tag {
			threads = append(threads, thread)
		}
	}
	return threads
}

func (d *fakeDesk) listMine(w http.ResponseWriter, r *http.Request) {
	writeData(w, d.filtered(r.URL.Query().Get("tag")))
}

func (d *fakeDesk) listAdmin(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	size, _ := strconv.Atoi(query.Get("size"))
	writeData(w, types.AdminThreadPage{
		Threads:    d.filtered(query.Get("chatTags")),
		TotalPages: 1,
		Page:       page,
		Size:       size,
	})
}

func (d *fakeDesk) detail(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, thread := range d.threads {
		if thread.ID == id {
			writeData(w, types.ThreadDetail{Thread: thread})
			return
		}
	}
	writeFailure(w, http.StatusNotFound, "채팅방을 찾을 수 없습니다.")
}

func (d *fakeDesk) close(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChatRoomID int64           `json:"chatRoomId"`
		Tag        types.StatusTag `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFailure(w, http.StatusBadRequest, "잘못된 요청입니다.")
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.threads {
		if d.threads[i].ID == body.ChatRoomID {
			d.threads[i].Tag = body.Tag
			writeData(w, nil)
			return
		}
	}
	writeFailure(w, http.StatusNotFound, "채팅방을 찾을 수 없습니다.")
}

// run executes one command against the fake backend and fails the test on error.
func run(t *testing.T, srv *httptest.Server, stdin string, args ...string) string {
	t.Helper()
	cmd := NewRootCmd("test")
	if stdin != "" {
		cmd.SetIn(strings.NewReader(stdin))
	}
	output, err := executeCommand(cmd, append([]string{"--api", srv.URL}, args...)...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, output)
	}
	return output
}

func decodeThreads(t *testing.T, output string) []types.Thread {
	t.Helper()
	var threads []types.Thread
	if err := json.Unmarshal([]byte(output), &threads); err != nil {
		t.Fatalf("decode threads: %v\n%s", err, output)
	}
	return threads
}

func containsThread(threads []types.Thread, id int64) bool {
	for _, thread := range threads {
		if thread.ID == id {
			return true
		}
	}
	return false
}

func TestLoginCreateCloseFlow(t *testing.T) {
	setupCommandEnv(t)
	_, srv := newFakeDesk(t)

	output := run(t, srv, "pw1234\n", "login", "--email", "admin@campus.ac.kr", "--password-stdin")
	if !strings.Contains(output, "Logged in as 관리자 <admin@campus.ac.kr> [admin]") {
		t.Fatalf("unexpected login output: %q", output)
	}

	var created types.Thread
	if err := json.Unmarshal([]byte(run(t, srv, "", "--json", "new", "문의합니다")), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ID != 1 || created.Tag != types.TagInProgress || created.Title != "문의합니다" {
		t.Fatalf("unexpected thread: %+v", created)
	}

	inProgress := decodeThreads(t, run(t, srv, "", "--json", "threads", "--tag", "IN_PROGRESS"))
	if !containsThread(inProgress, created.ID) {
		t.Fatalf("expected #%d under IN_PROGRESS, got %+v", created.ID, inProgress)
	}

	output = run(t, srv, "", "close", "1", "--tag", "ADOPT", "--yes")
	if !strings.Contains(output, "Closed #1") {
		t.Fatalf("unexpected close output: %q", output)
	}

	// The cached listing picks up the new tag without a network call.
	cached := decodeThreads(t, run(t, srv, "", "--json", "threads", "--cached", "--tag", "ADOPT"))
	if !containsThread(cached, created.ID) {
		t.Fatalf("expected cached #%d under ADOPT, got %+v", created.ID, cached)
	}

	var shown struct {
		Detail types.ThreadDetail `json:"detail"`
	}
	if err := json.Unmarshal([]byte(run(t, srv, "", "--json", "show", "1")), &shown); err != nil {
		t.Fatalf("decode show: %v", err)
	}
	if shown.Detail.Tag != types.TagAdopt {
		t.Fatalf("detail tag: got %q", shown.Detail.Tag)
	}

	if mine := decodeThreads(t, run(t, srv, "", "--json", "threads", "--tag", "ADOPT")); !containsThread(mine, created.ID) {
		t.Fatalf("expected #%d under ADOPT, got %+v", created.ID, mine)
	}
	if open := decodeThreads(t, run(t, srv, "", "--json", "threads", "--tag", "IN_PROGRESS")); len(open) != 0 {
		t.Fatalf("expected no IN_PROGRESS threads, got %+v", open)
	}

	var page types.AdminThreadPage
	if err := json.Unmarshal([]byte(run(t, srv, "", "--json", "threads", "--admin", "--tag", "ADOPT")), &page); err != nil {
		t.Fatalf("decode admin page: %v", err)
	}
	if !containsThread(page.Threads, created.ID) {
		t.Fatalf("expected #%d in admin ADOPT page, got %+v", created.ID, page)
	}
}

func TestCloseDeclinedLeavesThreadOpen(t *testing.T) {
	setupCommandEnv(t)
	desk, srv := newFakeDesk(t)

	run(t, srv, "pw1234\n", "login", "--email", "admin@campus.ac.kr", "--password-stdin")
	run(t, srv, "", "new", "수강신청", "문의")

	output := run(t, srv, "n\n", "close", "1", "--tag", "END")
	if !strings.Contains(output, "Cancelled") {
		t.Fatalf("expected cancellation, got %q", output)
	}
	if threads := desk.filtered("IN_PROGRESS"); len(threads) != 1 {
		t.Fatalf("thread should stay open, got %+v", threads)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	setupCommandEnv(t)
	_, srv := newFakeDesk(t)

	cmd := NewRootCmd("test")
	cmd.SetIn(strings.NewReader("wrong\n"))
	output, err := executeCommand(cmd, "--api", srv.URL, "login", "--email", "admin@campus.ac.kr", "--password-stdin")
	if err == nil {
		t.Fatalf("expected login failure, got %q", output)
	}
	if !strings.Contains(output, "Error: ") {
		t.Fatalf("expected error line, got %q", output)
	}

	output, err = executeCommand(NewRootCmd("test"), "--api", srv.URL, "threads")
	if err == nil {
		t.Fatalf("expected threads to require login, got %q", output)
	}
}

func TestLogoutForgetsLocalThreads(t *testing.T) {
	setupCommandEnv(t)
	_, srv := newFakeDesk(t)

	run(t, srv, "pw1234\n", "login", "--email", "admin@campus.ac.kr", "--password-stdin")
	run(t, srv, "", "new", "비밀 문의")
	run(t, srv, "", "threads")
	run(t, srv, "", "logout")

	state, err := core.ResolveStateDir(core.Config{StateDir: os.Getenv("DESK_STATE_DIR")})
	if err != nil {
		t.Fatalf("state dir: %v", err)
	}
	conn, err := db.OpenDatabase(state)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	cached, err := db.GetCachedThreads(conn, db.ScopeMine)
	if err != nil {
		t.Fatalf("cached threads: %v", err)
	}
	if len(cached) != 0 {
		t.Fatalf("expected no cached threads after logout, got %d", len(cached))
	}
	if last, err := db.GetConfig(conn, db.LastThreadKey); err != nil || last != "" {
		t.Fatalf("expected no remembered thread, got %q (%v)", last, err)
	}

	output, err := executeCommand(NewRootCmd("test"), "--api", srv.URL, "threads", "--cached")
	if err == nil {
		t.Fatalf("cached listing should require login, got %q", output)
	}
}

func TestShowMarksOwnMessagesWithSubOnlyToken(t *testing.T) {
	setupCommandEnv(t)
	desk, srv := newFakeDeskWithClaims(t, jwt.MapClaims{"sub": "admin@campus.ac.kr", "role": "ADMIN"})

	run(t, srv, "pw1234\n", "login", "--email", "admin@campus.ac.kr", "--password-stdin")
	run(t, srv, "", "new", "성적 문의")
	desk.mu.Lock()
	desk.history = []types.Message{
		{Text: "제 질문입니다", Sender: 42, SenderName: "관리자", CreatedAt: types.Timestamp{Time: time.Now().Add(-time.Minute)}},
		{Text: "확인해 보겠습니다", Sender: 7, SenderName: "상담원", CreatedAt: types.Timestamp{Time: time.Now()}},
	}
	desk.mu.Unlock()

	output := run(t, srv, "", "show", "1")
	var own, other string
	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.Contains(line, "제 질문입니다"):
			own = line
		case strings.Contains(line, "확인해 보겠습니다"):
			other = line
		}
	}
	if !strings.Contains(own, "›") || strings.Contains(own, "관리자:") {
		t.Fatalf("own message not marked as mine: %q\n%s", own, output)
	}
	if !strings.Contains(other, "상담원") {
		t.Fatalf("other sender lost: %q\n%s", other, output)
	}
}
