package domain

import "time"

// Document is company-scoped content, addressed by the md5 fingerprint of its
// raw bytes plus its logical name. Repeated ingestion of the same bytes under
// the same name never creates a second row.
type Document struct {
	ID                 string    `json:"id"`
	CompanyID          string    `json:"company_id"`
	Name               string    `json:"name"`
	Fingerprint        string    `json:"fingerprint"`
	Text               string    `json:"-"`
	Language           string    `json:"language"`
	LanguageConfidence float64   `json:"language_confidence"`
	Size               int64     `json:"size"`
	Extension          string    `json:"extension"`
	LastModified       time.Time `json:"last_modified"`
	Validated          bool      `json:"validated"`
	// Fresh is cleared when a later ingestion supersedes this extraction.
	Fresh        bool      `json:"fresh"`
	AccessGroups []string  `json:"access_groups,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// OwnershipLink binds a Document to the crawl context that discovered it.
// Many links may point at one document; one link is created per ingestion
// event even when the document already existed.
type OwnershipLink struct {
	ID              string    `json:"id"`
	DocumentID      string    `json:"document_id"`
	ScanID          string    `json:"scan_id"`
	Path            string    `json:"path"`
	Timestamp       time.Time `json:"timestamp"`
	OriginTag       string    `json:"origin_tag"`
	TrackedFolderID string    `json:"tracked_folder_id,omitempty"`
	Private         bool      `json:"private"`
}

// TrackedFolder is a source folder singled out for continuous scanning. Its
// privacy flag and access groups propagate to documents discovered under it.
type TrackedFolder struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Private      bool     `json:"private"`
	AccessGroups []string `json:"access_groups,omitempty"`
}

// Classification is one edge of a document's taxonomy chain, root to leaf.
type Classification struct {
	Category     string    `json:"category"`
	Confidence   float64   `json:"confidence"`
	ClassifierID string    `json:"classifier_id"`
	Timestamp    time.Time `json:"timestamp"`
	Validated    bool      `json:"validated"`
}

type MentionKind string

const (
	MentionCPR   MentionKind = "CPR_NUMBER"
	MentionPhone MentionKind = "PHONE_NUMBER"
)

// Mention is an entity occurrence in a document's text. Immutable after
// creation except for the validated flag.
type Mention struct {
	ID         string      `json:"id"`
	DocumentID string      `json:"document_id"`
	Kind       MentionKind `json:"kind"`
	Start      int         `json:"start"`
	End        int         `json:"end"`
	Occurrence string      `json:"occurrence"`
	Validated  bool        `json:"validated"`
}

type PersonRelation string

const (
	RelationEmployee       PersonRelation = "employee"
	RelationFormerEmployee PersonRelation = "former_employee"
	RelationCustomer       PersonRelation = "customer"
	RelationFormerCustomer PersonRelation = "former_customer"
)

// GDPRPerson is a named individual of interest to a company.
type GDPRPerson struct {
	ID        string         `json:"id"`
	CompanyID string         `json:"company_id"`
	Name      string         `json:"name"`
	Relation  PersonRelation `json:"relation"`
}

// DocumentJob describes one discovered file travelling through the queue:
// where its bytes sit, where it came from and which scan it belongs to.
type DocumentJob struct {
	CompanyID       string    `json:"company_id"`
	ScanID          string    `json:"scan_id"`
	UserID          string    `json:"user_id"`
	StorageKey      string    `json:"storage_key"`
	Name            string    `json:"name"`
	OriginPath      string    `json:"origin_path"`
	OriginTag       string    `json:"origin_tag"`
	Extension       string    `json:"extension"`
	Timestamp       time.Time `json:"timestamp"`
	LastModified    time.Time `json:"last_modified"`
	TrackedFolderID string    `json:"tracked_folder_id,omitempty"`
}
