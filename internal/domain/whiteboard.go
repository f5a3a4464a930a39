package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotSchemaVersion is the current persisted snapshot format. Older
// versions must be migrated explicitly; unknown versions are rejected.
const SnapshotSchemaVersion = 1

// ElementKind tags the variants of the whiteboard element union.
type ElementKind string

const (
	ElementShape ElementKind = "shape"
	ElementArrow ElementKind = "arrow"
	ElementNote  ElementKind = "note"
)

// Element is one item on the whiteboard. Which fields are meaningful
// depends on Kind; unused fields stay at their zero value and are omitted
// from the encoded form.
type Element struct {
	Kind ElementKind `json:"kind"`
	ID   string      `json:"id"`

	// shape
	ShapeType string  `json:"shapeType,omitempty"` // "rect", "ellipse", "line"
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Width     float64 `json:"width,omitempty"`
	Height    float64 `json:"height,omitempty"`
	Color     string  `json:"color,omitempty"`

	// arrow
	FromID string `json:"fromId,omitempty"`
	ToID   string `json:"toId,omitempty"`

	// note
	Text string `json:"text,omitempty"`
}

// Snapshot is the whiteboard document. The store holds the authoritative
// encoded copy; client copies are eventually consistent with it and
// concurrent edits are last-write-wins at push granularity.
type Snapshot struct {
	SchemaVersion int                `json:"schemaVersion"`
	Elements      map[string]Element `json:"elements"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// NewSnapshot returns an empty whiteboard at the current schema version.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		SchemaVersion: SnapshotSchemaVersion,
		Elements:      make(map[string]Element),
	}
}

// DecodeSnapshot parses an encoded snapshot blob. An empty blob decodes to
// an empty whiteboard so freshly created rooms need no seed document.
func DecodeSnapshot(blob string) (*Snapshot, error) {
	if blob == "" {
		return NewSnapshot(), nil
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(blob), &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.SchemaVersion != SnapshotSchemaVersion {
		return nil, fmt.Errorf("decode snapshot: unsupported schema version %d", s.SchemaVersion)
	}
	if s.Elements == nil {
		s.Elements = make(map[string]Element)
	}
	return &s, nil
}

// Encode serializes the snapshot for storage in the room document.
func (s *Snapshot) Encode() (string, error) {
	bytes, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(bytes), nil
}

// Clone returns a deep copy, safe to hand to callers outside the
// synchronizer's lock.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		SchemaVersion: s.SchemaVersion,
		Elements:      make(map[string]Element, len(s.Elements)),
		UpdatedAt:     s.UpdatedAt,
	}
	for id, el := range s.Elements {
		out.Elements[id] = el
	}
	return out
}

// Put inserts or replaces an element, keyed by its ID.
func (s *Snapshot) Put(el Element) {
	s.Elements[el.ID] = el
	s.UpdatedAt = time.Now().UTC()
}

// Delete removes an element if present.
func (s *Snapshot) Delete(id string) {
	delete(s.Elements, id)
	s.UpdatedAt = time.Now().UTC()
}
