// Package models defines the named record types materialized by the
// dataset ingesters and read back by the search surface. Every archive
// payload is decoded into one of these structs with
// json.Decoder.DisallowUnknownFields, rejecting schema drift at the
// ingest boundary rather than passing a typeless map through the system.
package models

// CrawlSource is the index's record for a known archive origin.
type CrawlSource struct {
	ID                   int64  `json:"id"`
	Origin               string `json:"origin"`                 // canonical scheme://host
	DNSBindingID         int64  `json:"dnsBindingId,omitempty"`  // 0 when unbound
	GlobalResetRequired  bool   `json:"-"`                       // in-memory only, set on DNS-change detection
}

// CrawlSourceMeta is the per-(source,dataset) ingest checkpoint.
type CrawlSourceMeta struct {
	SourceID            int64  `json:"sourceId"`
	DatasetTag          string `json:"datasetTag"`
	CrawlSourceVersion  int64  `json:"crawlSourceVersion"`  // last archive version consumed
	CrawlDatasetVersion int    `json:"crawlDatasetVersion"` // dataset schema (TABLE_VERSION) at checkpoint time
	UpdatedAt           int64  `json:"updatedAt"`           // epoch ms
}

// DNSBinding records a DNS-name <-> archive-key binding observed by the
// coordinator's DNS-change detection.
type DNSBinding struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Key              string `json:"key"`
	IsCurrent        bool   `json:"isCurrent"`
	FirstConfirmedAt int64  `json:"firstConfirmedAt"`
	LastConfirmedAt  int64  `json:"lastConfirmedAt"`
}

// Post is a `unwalled.garden/post` record.
type Post struct {
	Type      string   `json:"type" validate:"required,eq=unwalled.garden/post"`
	Body      string   `json:"body" validate:"max=1000000"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
	Tags      []string `json:"tags,omitempty" validate:"omitempty,dive,tagpattern"`
}

// Bookmark is a `unwalled.garden/bookmark` record.
type Bookmark struct {
	Type      string   `json:"type" validate:"required,eq=unwalled.garden/bookmark"`
	Href      string   `json:"href" validate:"required,uri"`
	Title     string   `json:"title" validate:"max=280"`
	Pinned    bool     `json:"pinned,omitempty"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
	Tags      []string `json:"tags,omitempty" validate:"omitempty,dive,tagpattern"`
}

// FollowsList is the single-file `/data/follows.json` payload.
type FollowsList struct {
	Type string   `json:"type" validate:"required,eq=unwalled.garden/follows"`
	URLs []string `json:"urls" validate:"dive,uri"`
}

// CanonicalURLList is the shared single-file-set shape (spec.md §4.3.2):
// one JSON file holding an array of origin URLs. The follows ingester is
// its only user; published sites are stored one file per hostname.
type CanonicalURLList struct {
	Type string   `json:"type"`
	URLs []string `json:"urls" validate:"dive,uri"`
}

// Reaction is a `/data/reactions/<slug>.json` payload.
type Reaction struct {
	Type   string   `json:"type" validate:"required,eq=unwalled.garden/reactions"`
	Topic  string   `json:"topic" validate:"required,uri"`
	Emojis []string `json:"emojis"`
}

// Discussion is a `unwalled.garden/discussion` record.
type Discussion struct {
	Type      string   `json:"type" validate:"required,eq=unwalled.garden/discussion"`
	Title     string   `json:"title" validate:"max=280"`
	Body      string   `json:"body" validate:"max=1000000"`
	Href      string   `json:"href,omitempty" validate:"omitempty,uri"` // subject this discussion is about
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
	Tags      []string `json:"tags,omitempty" validate:"omitempty,dive,tagpattern"`
}

// Comment is a `unwalled.garden/comment` record.
type Comment struct {
	Type       string `json:"type" validate:"required,eq=unwalled.garden/comment"`
	Href       string `json:"href" validate:"required,uri"` // subject being commented on
	Body       string `json:"body" validate:"max=1000000"`
	ParentHref string `json:"parentHref,omitempty" validate:"omitempty,uri"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// Media is a `unwalled.garden/media` record.
type Media struct {
	Type      string   `json:"type" validate:"required,eq=unwalled.garden/media"`
	Caption   string   `json:"caption,omitempty" validate:"max=280"`
	MimeType  string   `json:"mimeType" validate:"required"`
	BlobName  string   `json:"blobName" validate:"required"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
	Tags      []string `json:"tags,omitempty" validate:"omitempty,dive,tagpattern"`
}

// Vote is a `unwalled.garden/vote` record.
type Vote struct {
	Type      string `json:"type" validate:"required,eq=unwalled.garden/vote"`
	Href      string `json:"href" validate:"required,uri"`
	Vote      int    `json:"vote" validate:"oneof=-1 1"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// PublishedSite is a `unwalled.garden/published-site` record, one file per
// published hostname under `/data/published-sites/<hostname>.json`.
type PublishedSite struct {
	Type      string `json:"type" validate:"required,eq=unwalled.garden/published-site"`
	Hostname  string `json:"hostname" validate:"required"`
	CreatedAt string `json:"createdAt"`
}

// SiteDescription is a record describing any subject origin from a
// source's perspective: either `/dat.json` (self) or
// `/data/known_sites/<hostname>/dat.json` (about another origin).
type SiteDescription struct {
	Title       string `json:"title" validate:"max=280"`
	Description string `json:"description"`
	Type        string `json:"type"` // comma-joined multi-label
	CreatedAt   string `json:"createdAt,omitempty"`
}

// Record is the generic row shape shared by all per-file collection
// datasets: the archive-relative location plus the decoded payload.
type Record[T any] struct {
	SourceID  int64
	Pathname  string
	CrawledAt int64
	Payload   T
}
