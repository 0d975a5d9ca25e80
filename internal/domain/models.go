// Package domain defines the persistence models for chains, missions,
// entries, chapters, and the cross-chain bridge records. These types are
// mapped with GORM and form the core data layer of the mission backend.
package domain

import "time"

// MissionState enumerates the lifecycle phases of a mission.
//
// The only legal forward path is LOBBY → CAPTURE → FUSING → RECAP → ARCHIVED.
// CAPTURE may be entered directly at creation for missions that start hot.
// ARCHIVED is terminal.
type MissionState string

const (
	StateLobby    MissionState = "LOBBY"
	StateCapture  MissionState = "CAPTURE"
	StateFusing   MissionState = "FUSING"
	StateRecap    MissionState = "RECAP"
	StateArchived MissionState = "ARCHIVED"
)

// Valid reports whether s is one of the known mission states.
func (s MissionState) Valid() bool {
	switch s {
	case StateLobby, StateCapture, StateFusing, StateRecap, StateArchived:
		return true
	}
	return false
}

// Chain represents a persistent group of users that runs missions together.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: human-readable chain name.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Chain struct {
	ID        string    `json:"id"   gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(120);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Chain.
func (Chain) TableName() string { return "chains" }

// ChainMember records a user's membership in a chain. A user joins a chain
// at most once (enforced by unique index).
type ChainMember struct {
	ID       string    `json:"id"       gorm:"type:char(36);primaryKey"`
	ChainID  string    `json:"chain_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_chain_member"`
	UserID   string    `json:"user_id"  gorm:"type:varchar(64);not null;index;uniqueIndex:ux_chain_member"`
	JoinedAt time.Time `json:"joined_at"`

	Chain Chain `json:"-" gorm:"foreignKey:ChainID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChainMember.
func (ChainMember) TableName() string { return "chain_members" }

// Mission represents a single timed photo-capture challenge belonging to a
// chain. Missions are mutated only by the orchestrator and are never
// deleted; the terminal state is ARCHIVED, retained for history.
//
// SubmissionsReceived is a cache of the entry ledger's true count for this
// mission. It is recomputed from the entries table on every submission and
// must never be trusted as a source of truth.
//
// The lifecycle timestamps are each set exactly once and are monotonically
// non-decreasing with state order: LockedAt is set iff the state has passed
// CAPTURE, RecapReadyAt iff it has reached RECAP, ArchivedAt iff ARCHIVED.
type Mission struct {
	ID                  string       `json:"id"       gorm:"type:char(36);primaryKey"`
	ChainID             string       `json:"chain_id" gorm:"type:char(36);not null;index:idx_chain_missions"`
	Prompt              string       `json:"prompt"   gorm:"type:text;not null"`
	State               MissionState `json:"state"    gorm:"type:varchar(16);not null;default:'LOBBY';check:state IN ('LOBBY','CAPTURE','FUSING','RECAP','ARCHIVED')"`
	SubmissionsRequired int          `json:"submissions_required" gorm:"not null"`
	SubmissionsReceived int          `json:"submissions_received" gorm:"not null;default:0"`
	StartsAt            *time.Time   `json:"starts_at,omitempty"`
	EndsAt              *time.Time   `json:"ends_at,omitempty"`
	LockedAt            *time.Time   `json:"locked_at,omitempty"`
	RecapReadyAt        *time.Time   `json:"recap_ready_at,omitempty" gorm:"index"`
	ArchivedAt          *time.Time   `json:"archived_at,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`

	Chain Chain `json:"-" gorm:"foreignKey:ChainID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Mission.
func (Mission) TableName() string { return "missions" }

// Entry represents one participant's submitted photo/video for a mission.
// A user holds at most one entry per mission (unique index); re-submission
// overwrites the existing row rather than duplicating it.
//
// DominantHue, Palette, SceneTags, and ObjectTags are filled in
// asynchronously by the metadata enrichment worker when the client did not
// supply them; enrichment failures never affect mission state or counts.
type Entry struct {
	ID          string     `json:"id"         gorm:"type:char(36);primaryKey"`
	MissionID   string     `json:"mission_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_entry_mission_user"`
	UserID      string     `json:"user_id"    gorm:"type:varchar(64);not null;index;uniqueIndex:ux_entry_mission_user"`
	MediaRef    string     `json:"media_ref"  gorm:"type:text;not null"`
	DominantHue *int       `json:"dominant_hue,omitempty"`
	Palette     []string   `json:"palette,omitempty"     gorm:"type:text;serializer:json"`
	SceneTags   []string   `json:"scene_tags,omitempty"  gorm:"type:text;serializer:json"`
	ObjectTags  []string   `json:"object_tags,omitempty" gorm:"type:text;serializer:json"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	CapturedAt  *time.Time `json:"captured_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Mission Mission `json:"-" gorm:"foreignKey:MissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Entry.
func (Entry) TableName() string { return "entries" }

// Tags returns the union of scene and object tags, deduplicated, in
// first-seen order.
func (e Entry) Tags() []string {
	seen := make(map[string]struct{}, len(e.SceneTags)+len(e.ObjectTags))
	out := make([]string, 0, len(e.SceneTags)+len(e.ObjectTags))
	for _, t := range append(append([]string{}, e.SceneTags...), e.ObjectTags...) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Chapter is the generated recap artifact for a completed mission: title,
// poem, aggregate palette, collage, and an optionally delayed video render.
// A mission has at most one chapter (unique index); it is created when the
// orchestrator transitions the mission into RECAP and later mutated only to
// attach the video.
type Chapter struct {
	ID         string    `json:"id"         gorm:"type:char(36);primaryKey"`
	MissionID  string    `json:"mission_id" gorm:"type:char(36);not null;uniqueIndex:ux_chapter_mission"`
	Title      string    `json:"title"      gorm:"type:varchar(255);not null"`
	Poem       string    `json:"poem"       gorm:"type:text;not null"`
	Palette    []string  `json:"palette,omitempty" gorm:"type:text;serializer:json"`
	CollageRef string    `json:"collage_ref" gorm:"type:text"`
	VideoRef   *string   `json:"video_ref,omitempty" gorm:"type:text"`
	Shareable  bool      `json:"shareable"  gorm:"not null;default:true"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Mission Mission `json:"-" gorm:"foreignKey:MissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Chapter.
func (Chapter) TableName() string { return "chapters" }

// Connection is a chain-to-chain graph edge created when two missions
// bridge. Edges are stored directed but always created in symmetric pairs,
// so the graph is effectively undirected. Re-creating an existing edge is a
// no-op (unique index on the ordered pair).
type Connection struct {
	ID          string    `json:"id"            gorm:"type:char(36);primaryKey"`
	FromChainID string    `json:"from_chain_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_connection_pair"`
	ToChainID   string    `json:"to_chain_id"   gorm:"type:char(36);not null;uniqueIndex:ux_connection_pair"`
	Reason      string    `json:"reason"        gorm:"type:varchar(64);not null"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for Connection.
func (Connection) TableName() string { return "connections" }

// BridgeEvent is the audit record of a single mission-pair match. The pair
// is stored canonicalized (smaller mission id first) under a unique index,
// so each unordered pair produces at most one event regardless of which
// mission triggered the evaluation or how many times it runs.
type BridgeEvent struct {
	ID         string    `json:"id"           gorm:"type:char(36);primaryKey"`
	MissionAID string    `json:"mission_a_id" gorm:"type:char(36);not null;uniqueIndex:ux_bridge_pair"`
	MissionBID string    `json:"mission_b_id" gorm:"type:char(36);not null;uniqueIndex:ux_bridge_pair"`
	ChainAID   string    `json:"chain_a_id"   gorm:"type:char(36);not null;index"`
	ChainBID   string    `json:"chain_b_id"   gorm:"type:char(36);not null;index"`
	SharedTags []string  `json:"shared_tags"  gorm:"type:text;serializer:json"`
	HueDelta   int       `json:"hue_delta"    gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for BridgeEvent.
func (BridgeEvent) TableName() string { return "bridge_events" }
