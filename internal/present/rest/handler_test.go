package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/aviary-social/aviary"
	"github.com/aviary-social/aviary/internal/domain"
	"github.com/aviary-social/aviary/internal/infrastructure/repository"
	"github.com/aviary-social/aviary/internal/usecase"
)

const (
	testServiceDid   = "did:web:feeds.example.com"
	testPublisherDid = "did:plc:publisher000000000000000"
	testRequester    = "did:plc:requester0000000000000000"
)

var testIdentity = domain.ServiceIdentity{
	ServiceDid:      testServiceDid,
	PublisherDid:    testPublisherDid,
	ServiceEndpoint: "https://feeds.example.com",
	FeedRkey:        domain.DefaultFeedRkey,
}

type stubFeedRepo struct {
	entries []domain.FeedEntry
	feed    string
}

func (r *stubFeedRepo) FanOutPost(ctx context.Context, postURI string, ts int64, followee string) (int64, error) {
	return 0, nil
}

func (r *stubFeedRepo) FanOutReply(ctx context.Context, postURI string, ts int64, followee string) (int64, error) {
	return 0, nil
}

func (r *stubFeedRepo) FanOutReplyTarget(ctx context.Context, postURI string, ts int64, followee string) (int64, error) {
	return 0, nil
}

func (r *stubFeedRepo) FanOutRepost(ctx context.Context, repostURI, subjectURI string, ts int64, followee string) (int64, error) {
	return 0, nil
}

func (r *stubFeedRepo) DeleteByPostURI(ctx context.Context, postURI string) (int64, error) {
	return 0, nil
}

func (r *stubFeedRepo) ListPage(ctx context.Context, feed string, cursor int64, limit int) ([]domain.FeedEntry, error) {
	r.feed = feed
	return r.entries, nil
}

func (r *stubFeedRepo) PruneBoundaries(ctx context.Context, keep int64) ([]repository.FeedBoundary, error) {
	return nil, nil
}

func (r *stubFeedRepo) PruneFeed(ctx context.Context, feed string, ts int64) (int64, error) {
	return 0, nil
}

type stubRelationRepo struct {
	relations map[string]domain.Relation
	puts      []domain.Relation
}

func (r *stubRelationRepo) Get(ctx context.Context, follower, followee string) (domain.Relation, error) {
	rel, ok := r.relations[follower+"/"+followee]
	if !ok {
		return domain.Relation{Follower: follower, Followee: followee}, nil
	}
	return rel, nil
}

func (r *stubRelationRepo) Put(ctx context.Context, rel domain.Relation) error {
	r.puts = append(r.puts, rel)
	return nil
}

func newTestHandler(feeds *stubFeedRepo, relations *stubRelationRepo) *Handler {
	return NewHandler(
		usecase.NewFeedUsecase(feeds),
		usecase.NewRelationUsecase(relations),
		testIdentity,
	)
}

// authed simulates what the auth middleware leaves on the request context.
func authed(req *http.Request, did, aud, lxm string) *http.Request {
	ctx := context.WithValue(req.Context(), domain.RequesterDidCtxKey, did)
	ctx = context.WithValue(ctx, domain.RequesterAudCtxKey, aud)
	ctx = context.WithValue(ctx, domain.RequesterLxmCtxKey, lxm)
	return req.WithContext(ctx)
}

func TestDescribeFeedGenerator(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/xrpc/app.bsky.feed.describeFeedGenerator", nil)
	rec := httptest.NewRecorder()

	handler := newTestHandler(&stubFeedRepo{}, &stubRelationRepo{})
	if err := handler.DescribeFeedGenerator(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var body aviary.DescribeFeedGenerator
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.DID != testServiceDid {
		t.Errorf("did: got %s", body.DID)
	}
	want := "at://" + testPublisherDid + "/app.bsky.feed.generator/home"
	if len(body.Feeds) != 1 || body.Feeds[0].URI != want {
		t.Errorf("feeds: got %v", body.Feeds)
	}
}

func TestDIDDocument(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/.well-known/did.json", nil)
	rec := httptest.NewRecorder()

	handler := newTestHandler(&stubFeedRepo{}, &stubRelationRepo{})
	if err := handler.DIDDocument(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}

	var doc aviary.DIDDocument
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.ID != testServiceDid {
		t.Errorf("id: got %s", doc.ID)
	}
	if len(doc.Service) != 1 || doc.Service[0].Type != "BskyFeedGenerator" {
		t.Errorf("service: got %v", doc.Service)
	}
}

func skeletonRequest(t *testing.T, handler *Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	if err := handler.GetFeedSkeleton(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestGetFeedSkeleton(t *testing.T) {
	feeds := &stubFeedRepo{entries: []domain.FeedEntry{
		{Feed: testRequester, PostURI: "at://did:plc:alice/app.bsky.feed.post/3k1", TS: 500},
		{Feed: testRequester, PostURI: "at://did:plc:bob/app.bsky.feed.post/3k2", TS: 400},
	}}
	handler := newTestHandler(feeds, &stubRelationRepo{})

	target := "/xrpc/app.bsky.feed.getFeedSkeleton?feed=" + url.QueryEscape(testIdentity.FeedURI())
	req := authed(httptest.NewRequest(http.MethodGet, target, nil),
		testRequester, testServiceDid, aviary.LxmGetFeedSkeleton)
	rec := skeletonRequest(t, handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rec.Code, rec.Body.String())
	}
	if feeds.feed != testRequester {
		t.Errorf("queried feed: got %s", feeds.feed)
	}

	var skeleton aviary.FeedSkeleton
	if err := json.Unmarshal(rec.Body.Bytes(), &skeleton); err != nil {
		t.Fatal(err)
	}
	if len(skeleton.Feed) != 2 {
		t.Fatalf("items: got %d", len(skeleton.Feed))
	}
	if skeleton.Cursor != "400" {
		t.Errorf("cursor: got %q", skeleton.Cursor)
	}
}

func TestGetFeedSkeletonRejectsUnknownFeed(t *testing.T) {
	handler := newTestHandler(&stubFeedRepo{}, &stubRelationRepo{})

	req := authed(httptest.NewRequest(http.MethodGet,
		"/xrpc/app.bsky.feed.getFeedSkeleton?feed=at://did:plc:other/app.bsky.feed.generator/what", nil),
		testRequester, testServiceDid, "")
	rec := skeletonRequest(t, handler, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", rec.Code)
	}
}

func TestGetFeedSkeletonRejectsWrongAudience(t *testing.T) {
	handler := newTestHandler(&stubFeedRepo{}, &stubRelationRepo{})

	target := "/xrpc/app.bsky.feed.getFeedSkeleton?feed=" + url.QueryEscape(testIdentity.FeedURI())
	req := authed(httptest.NewRequest(http.MethodGet, target, nil),
		testRequester, testPublisherDid, "")
	rec := skeletonRequest(t, handler, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d", rec.Code)
	}
}

func TestGetFeedSkeletonRejectsBoundLxmMismatch(t *testing.T) {
	handler := newTestHandler(&stubFeedRepo{}, &stubRelationRepo{})

	target := "/xrpc/app.bsky.feed.getFeedSkeleton?feed=" + url.QueryEscape(testIdentity.FeedURI())
	req := authed(httptest.NewRequest(http.MethodGet, target, nil),
		testRequester, testServiceDid, aviary.LxmCreateReport)
	rec := skeletonRequest(t, handler, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d", rec.Code)
	}
}

func reportRequest(t *testing.T, handler *Handler, body string, aud string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/xrpc/com.atproto.moderation.createReport",
		strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = authed(req, testRequester, aud, aviary.LxmCreateReport)
	rec := httptest.NewRecorder()
	if err := handler.CreateReport(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestCreateReportAppliesCommand(t *testing.T) {
	relations := &stubRelationRepo{}
	handler := newTestHandler(&stubFeedRepo{}, relations)

	body := `{
		"reasonType": "com.atproto.moderation.defs#reasonOther",
		"reason": "+ +rt +to",
		"subject": {"$type": "com.atproto.admin.defs#repoRef", "did": "did:plc:followee00000000000000000"}
	}`
	rec := reportRequest(t, handler, body, testPublisherDid)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rec.Code, rec.Body.String())
	}
	if len(relations.puts) != 1 {
		t.Fatalf("puts: got %d", len(relations.puts))
	}
	rel := relations.puts[0]
	if rel.Follower != testRequester || rel.Followee != "did:plc:followee00000000000000000" {
		t.Errorf("edge: got %+v", rel)
	}
	if !rel.Posts || !rel.Reposts || !rel.RepliesTo || rel.Replies {
		t.Errorf("flags: got %+v", rel)
	}

	var resp aviary.CreateReportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ReportedBy != testRequester {
		t.Errorf("reportedBy: got %s", resp.ReportedBy)
	}
	if resp.Reason != "+ +rt +to" {
		t.Errorf("reason: got %q", resp.Reason)
	}
}

func TestCreateReportRejectsInvalidCommand(t *testing.T) {
	relations := &stubRelationRepo{}
	handler := newTestHandler(&stubFeedRepo{}, relations)

	body := `{
		"reasonType": "com.atproto.moderation.defs#reasonOther",
		"reason": "+ +bogus",
		"subject": {"$type": "com.atproto.admin.defs#repoRef", "did": "did:plc:followee00000000000000000"}
	}`
	rec := reportRequest(t, handler, body, testPublisherDid)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", rec.Code)
	}
	if len(relations.puts) != 0 {
		t.Errorf("puts after invalid command: got %d", len(relations.puts))
	}
}

func TestCreateReportRejectsBlankCommand(t *testing.T) {
	relations := &stubRelationRepo{}
	handler := newTestHandler(&stubFeedRepo{}, relations)

	body := `{
		"reasonType": "com.atproto.moderation.defs#reasonOther",
		"reason": "   ",
		"subject": {"$type": "com.atproto.admin.defs#repoRef", "did": "did:plc:followee00000000000000000"}
	}`
	rec := reportRequest(t, handler, body, testPublisherDid)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", rec.Code)
	}
	if len(relations.puts) != 0 {
		t.Errorf("puts after blank command: got %d", len(relations.puts))
	}
}

func TestCreateReportRejectsNonRepoSubject(t *testing.T) {
	handler := newTestHandler(&stubFeedRepo{}, &stubRelationRepo{})

	body := `{
		"reasonType": "com.atproto.moderation.defs#reasonOther",
		"reason": "+",
		"subject": {"$type": "com.atproto.repo.strongRef", "did": "did:plc:followee00000000000000000"}
	}`
	rec := reportRequest(t, handler, body, testPublisherDid)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", rec.Code)
	}
}

func TestCreateReportRejectsServiceAudience(t *testing.T) {
	handler := newTestHandler(&stubFeedRepo{}, &stubRelationRepo{})

	body := `{
		"reasonType": "com.atproto.moderation.defs#reasonOther",
		"reason": "+",
		"subject": {"$type": "com.atproto.admin.defs#repoRef", "did": "did:plc:followee00000000000000000"}
	}`
	rec := reportRequest(t, handler, body, testServiceDid)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d", rec.Code)
	}
}
