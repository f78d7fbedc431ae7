package aviary

import "encoding/json"

const (
	CollectionPost   = "app.bsky.feed.post"
	CollectionRepost = "app.bsky.feed.repost"

	EventKindCommit = "commit"

	OperationCreate = "create"
	OperationDelete = "delete"

	LxmGetFeedSkeleton = "app.bsky.feed.getFeedSkeleton"
	LxmCreateReport    = "com.atproto.moderation.createReport"

	ReasonTypeRepost = "app.bsky.feed.defs#skeletonReasonRepost"
	SubjectRepoRef   = "com.atproto.admin.defs#repoRef"
)

// Event is one Jetstream firehose message.
type Event struct {
	DID    string  `json:"did"`
	TimeUS int64   `json:"time_us"`
	Kind   string  `json:"kind"`
	Commit *Commit `json:"commit,omitempty"`
}

type Commit struct {
	Rev        string          `json:"rev"`
	Operation  string          `json:"operation"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey"`
	Record     json.RawMessage `json:"record,omitempty"`
	CID        string          `json:"cid"`
}

type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type ReplyRef struct {
	Root   StrongRef `json:"root"`
	Parent StrongRef `json:"parent"`
}

type PostRecord struct {
	Type      string    `json:"$type"`
	Text      string    `json:"text"`
	CreatedAt string    `json:"createdAt"`
	Langs     []string  `json:"langs,omitempty"`
	Reply     *ReplyRef `json:"reply,omitempty"`
}

type RepostRecord struct {
	Type      string    `json:"$type"`
	Subject   StrongRef `json:"subject"`
	CreatedAt string    `json:"createdAt"`
}

// FeedSkeleton is the getFeedSkeleton response body.
type FeedSkeleton struct {
	Feed   []SkeletonItem `json:"feed"`
	Cursor string         `json:"cursor,omitempty"`
}

type SkeletonItem struct {
	Post   string                `json:"post"`
	Reason *SkeletonReasonRepost `json:"reason,omitempty"`
}

type SkeletonReasonRepost struct {
	Type   string `json:"$type"`
	Repost string `json:"repost"`
}

type FeedGeneratorView struct {
	URI string `json:"uri"`
}

type DescribeFeedGenerator struct {
	DID   string              `json:"did"`
	Feeds []FeedGeneratorView `json:"feeds"`
}

type ReportSubject struct {
	Type string `json:"$type"`
	DID  string `json:"did,omitempty"`
}

type CreateReportRequest struct {
	ReasonType string        `json:"reasonType"`
	Reason     string        `json:"reason,omitempty"`
	Subject    ReportSubject `json:"subject"`
}

type CreateReportResponse struct {
	ID         int64         `json:"id"`
	ReportedBy string        `json:"reportedBy"`
	ReasonType string        `json:"reasonType"`
	Reason     string        `json:"reason,omitempty"`
	Subject    ReportSubject `json:"subject"`
	CreatedAt  string        `json:"createdAt"`
}

// DIDDocument is the subset of a resolved DID document we consume.
type DIDDocument struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	AlsoKnownAs        []string             `json:"alsoKnownAs,omitempty"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
	Service            []DIDService         `json:"service,omitempty"`
}

type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

type DIDService struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}
