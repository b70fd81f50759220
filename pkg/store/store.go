// Package store defines the persistence boundary for incidents, diagrams,
// and users.
//
// The [Store] interface is injected into consumers; backends are swappable
// without touching business logic. Two implementations ship here:
// [NewMemoryStore] (process-local maps, the default for tests and single
// user CLI work) and [NewMongoStore] (MongoDB, for the server).
//
// Ownership: a Diagram belongs to exactly one Incident; an Incident may
// have zero or more Diagrams. Deleting an incident cascades to its
// diagrams; diagrams are never deleted on their own.
//
// Updates use explicit patch structs with pointer fields: only fields that
// are set get applied, so callers never have to strip zero values before a
// partial update. Both entities carry a version number incremented on
// every update; a patch carrying a stale ExpectedVersion is rejected with
// CONFLICT.
package store

import (
	"context"
	"time"

	"github.com/safetydesk/causemap/pkg/tree"
)

// Incident is a persisted incident record.
type Incident struct {
	ID            int       `json:"id" bson:"id"`
	Owner         string    `json:"owner" bson:"owner"`
	Title         string    `json:"title" bson:"title"`
	Description   string    `json:"description" bson:"description"`
	Details       string    `json:"details,omitempty" bson:"details,omitempty"`
	AnalysisLevel string    `json:"analysisLevel" bson:"analysis_level"` // "Level N - <description>"
	RecordedAt    time.Time `json:"recordedAt" bson:"recorded_at"`
	Version       int       `json:"version" bson:"version"`
}

// Diagram is a persisted causal diagram attached to one incident.
// NodesJSON is the flat TreeNode list in its canonical JSON form.
type Diagram struct {
	ID         int       `json:"id" bson:"id"`
	IncidentID int       `json:"incidentId" bson:"incident_id"`
	Title      string    `json:"title" bson:"title"`
	NodesJSON  string    `json:"nodesJson" bson:"nodes_json"`
	CreatedAt  time.Time `json:"createdAt" bson:"created_at"`
	Version    int       `json:"version" bson:"version"`
}

// Nodes parses the serialized node list back into its flat form.
func (d *Diagram) Nodes() ([]tree.Node, error) {
	return tree.Unmarshal([]byte(d.NodesJSON))
}

// User is an account. PasswordHash is a bcrypt hash, never the password.
type User struct {
	Name         string    `json:"name" bson:"name"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	Admin        bool      `json:"admin" bson:"admin"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
}

// NewIncident carries the fields of an incident save request.
// Level is numeric here; the store formats the stored label.
type NewIncident struct {
	Title       string
	Description string
	Details     string
	Level       int
}

// IncidentPatch is a partial incident update. Only set (non-nil) fields
// are applied. ExpectedVersion, when non-zero, must match the stored
// version or the update fails with CONFLICT.
type IncidentPatch struct {
	Title           *string
	Description     *string
	Details         *string
	Level           *int
	ExpectedVersion int
}

// DiagramPatch is a partial diagram update. Nodes replaces the whole
// serialized list when non-nil.
type DiagramPatch struct {
	Title           *string
	Nodes           []tree.Node
	ExpectedVersion int
}

// Store is the persistence interface injected into consumers.
// Every call takes a context; implementations must honor cancellation.
type Store interface {
	// SaveIncident creates a new incident owned by owner. The analysis
	// level is clamped to the valid range before the label is formatted.
	SaveIncident(ctx context.Context, owner string, in NewIncident) (*Incident, error)

	// GetIncident returns the incident or INCIDENT_NOT_FOUND.
	GetIncident(ctx context.Context, id int) (*Incident, error)

	// UpdateIncident applies a partial update and bumps the version.
	UpdateIncident(ctx context.Context, id int, patch IncidentPatch) (*Incident, error)

	// DeleteIncident removes the incident and all its diagrams.
	DeleteIncident(ctx context.Context, id int) error

	// ListIncidents returns the incidents owned by owner, newest first.
	ListIncidents(ctx context.Context, owner string) ([]Incident, error)

	// ListAllIncidents returns every incident, newest first (admin view).
	ListAllIncidents(ctx context.Context) ([]Incident, error)

	// CreateDiagram attaches a new diagram to an incident. The node list
	// is validated and serialized; broken trees are rejected.
	CreateDiagram(ctx context.Context, incidentID int, title string, nodes []tree.Node) (*Diagram, error)

	// GetDiagram returns the diagram or DIAGRAM_NOT_FOUND.
	GetDiagram(ctx context.Context, id int) (*Diagram, error)

	// UpdateDiagram applies a partial update and bumps the version.
	UpdateDiagram(ctx context.Context, id int, patch DiagramPatch) (*Diagram, error)

	// ListDiagrams returns the diagrams of an incident, oldest first.
	ListDiagrams(ctx context.Context, incidentID int) ([]Diagram, error)

	// CreateUser adds an account; the name must be unused.
	CreateUser(ctx context.Context, u User) error

	// GetUser returns the account or USER_NOT_FOUND.
	GetUser(ctx context.Context, name string) (*User, error)

	// ListUsers returns all accounts sorted by name.
	ListUsers(ctx context.Context) ([]User, error)

	// DeleteUser removes an account.
	DeleteUser(ctx context.Context, name string) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}
