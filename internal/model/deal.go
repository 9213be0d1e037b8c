package model

import "time"

// SchemaVersion is stamped onto every deal at creation and checked on open.
const SchemaVersion = 3

// Deal is the root scoping entity. Every document, fact, and conflict
// belongs to exactly one deal. Deals are never deleted, only superseded.
type Deal struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	DealType      string    `json:"deal_type"`
	Jurisdiction  string    `json:"jurisdiction"`
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// Case is a named assumption scenario, unique per (deal, name). Cases are
// created lazily the first time a document declares a new case name.
type Case struct {
	ID        string    `json:"id"`
	DealID    string    `json:"deal_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultCase is assigned to facts whose source declares no scenario.
const DefaultCase = "base_case"
