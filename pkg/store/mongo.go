package store

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/safetydesk/causemap/pkg/errors"
	"github.com/safetydesk/causemap/pkg/generate"
	"github.com/safetydesk/causemap/pkg/tree"
)

// Collection names.
const (
	colIncidents = "incidents"
	colDiagrams  = "diagrams"
	colUsers     = "users"
	colCounters  = "counters"
)

// MongoStore is the MongoDB Store backend used by the server.
// Integer ids come from a counters collection so they stay compatible
// with the memory backend and the wire format.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// MongoConfig holds connection settings for the mongo backend.
type MongoConfig struct {
	URI      string
	Database string
}

// NewMongoStore connects to MongoDB and pings the deployment.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "causemap"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "connect to mongodb")
	}

	// The deployment may still be coming up; give it a few attempts.
	err = errors.RetryWithBackoff(ctx, func() error {
		if err := client.Ping(ctx, nil); err != nil {
			return errors.Wrap(errors.ErrCodeNetwork, err, "ping mongodb")
		}
		return nil
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &MongoStore{client: client, db: client.Database(cfg.Database)}, nil
}

// nextID atomically increments and returns the counter for an entity.
func (s *MongoStore) nextID(ctx context.Context, entity string) (int, error) {
	var doc struct {
		Seq int `bson:"seq"`
	}
	err := s.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": entity},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeNetwork, err, "allocate %s id", entity)
	}
	return doc.Seq, nil
}

func (s *MongoStore) SaveIncident(ctx context.Context, owner string, in NewIncident) (*Incident, error) {
	if err := errors.ValidateUsername(owner); err != nil {
		return nil, err
	}
	if err := errors.ValidateTitle(in.Title); err != nil {
		return nil, err
	}

	id, err := s.nextID(ctx, colIncidents)
	if err != nil {
		return nil, err
	}

	rec := Incident{
		ID:            id,
		Owner:         owner,
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		Details:       in.Details,
		AnalysisLevel: generate.FormatLevelLabel(in.Level),
		RecordedAt:    time.Now().UTC(),
		Version:       1,
	}
	if _, err := s.db.Collection(colIncidents).InsertOne(ctx, rec); err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "insert incident")
	}
	return &rec, nil
}

func (s *MongoStore) GetIncident(ctx context.Context, id int) (*Incident, error) {
	var rec Incident
	err := s.db.Collection(colIncidents).FindOne(ctx, bson.M{"id": id}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New(errors.ErrCodeIncidentNotFound, "incident %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "find incident %d", id)
	}
	return &rec, nil
}

func (s *MongoStore) UpdateIncident(ctx context.Context, id int, patch IncidentPatch) (*Incident, error) {
	set := bson.M{}
	if patch.Title != nil {
		if err := errors.ValidateTitle(*patch.Title); err != nil {
			return nil, err
		}
		set["title"] = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Details != nil {
		set["details"] = *patch.Details
	}
	if patch.Level != nil {
		set["analysis_level"] = generate.FormatLevelLabel(*patch.Level)
	}

	filter := bson.M{"id": id}
	if patch.ExpectedVersion != 0 {
		filter["version"] = patch.ExpectedVersion
	}

	update := bson.M{"$inc": bson.M{"version": 1}}
	if len(set) > 0 {
		update["$set"] = set
	}

	var rec Incident
	err := s.db.Collection(colIncidents).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		// Disambiguate a missing record from a stale version.
		if _, getErr := s.GetIncident(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, errors.New(errors.ErrCodeConflict, "incident %d version mismatch, expected %d", id, patch.ExpectedVersion)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "update incident %d", id)
	}
	return &rec, nil
}

func (s *MongoStore) DeleteIncident(ctx context.Context, id int) error {
	res, err := s.db.Collection(colIncidents).DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "delete incident %d", id)
	}
	if res.DeletedCount == 0 {
		return errors.New(errors.ErrCodeIncidentNotFound, "incident %d not found", id)
	}
	if _, err := s.db.Collection(colDiagrams).DeleteMany(ctx, bson.M{"incident_id": id}); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "cascade delete diagrams of incident %d", id)
	}
	return nil
}

func (s *MongoStore) ListIncidents(ctx context.Context, owner string) ([]Incident, error) {
	return s.findIncidents(ctx, bson.M{"owner": owner})
}

func (s *MongoStore) ListAllIncidents(ctx context.Context) ([]Incident, error) {
	return s.findIncidents(ctx, bson.M{})
}

func (s *MongoStore) findIncidents(ctx context.Context, filter bson.M) ([]Incident, error) {
	cur, err := s.db.Collection(colIncidents).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "recorded_at", Value: -1}, {Key: "id", Value: -1}}),
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "list incidents")
	}
	defer cur.Close(ctx)

	var out []Incident
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "decode incidents")
	}
	return out, nil
}

func (s *MongoStore) CreateDiagram(ctx context.Context, incidentID int, title string, nodes []tree.Node) (*Diagram, error) {
	if err := tree.Validate(nodes); err != nil {
		return nil, err
	}
	data, err := tree.Marshal(nodes)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}

	id, err := s.nextID(ctx, colDiagrams)
	if err != nil {
		return nil, err
	}

	d := Diagram{
		ID:         id,
		IncidentID: incidentID,
		Title:      title,
		NodesJSON:  string(data),
		CreatedAt:  time.Now().UTC(),
		Version:    1,
	}
	if _, err := s.db.Collection(colDiagrams).InsertOne(ctx, d); err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "insert diagram")
	}
	return &d, nil
}

func (s *MongoStore) GetDiagram(ctx context.Context, id int) (*Diagram, error) {
	var d Diagram
	err := s.db.Collection(colDiagrams).FindOne(ctx, bson.M{"id": id}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New(errors.ErrCodeDiagramNotFound, "diagram %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "find diagram %d", id)
	}
	return &d, nil
}

func (s *MongoStore) UpdateDiagram(ctx context.Context, id int, patch DiagramPatch) (*Diagram, error) {
	set := bson.M{}
	if patch.Title != nil {
		set["title"] = strings.TrimSpace(*patch.Title)
	}
	if patch.Nodes != nil {
		if err := tree.Validate(patch.Nodes); err != nil {
			return nil, err
		}
		data, err := tree.Marshal(patch.Nodes)
		if err != nil {
			return nil, err
		}
		set["nodes_json"] = string(data)
	}

	filter := bson.M{"id": id}
	if patch.ExpectedVersion != 0 {
		filter["version"] = patch.ExpectedVersion
	}

	update := bson.M{"$inc": bson.M{"version": 1}}
	if len(set) > 0 {
		update["$set"] = set
	}

	var d Diagram
	err := s.db.Collection(colDiagrams).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if err == mongo.ErrNoDocuments {
		if _, getErr := s.GetDiagram(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, errors.New(errors.ErrCodeConflict, "diagram %d version mismatch, expected %d", id, patch.ExpectedVersion)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "update diagram %d", id)
	}
	return &d, nil
}

func (s *MongoStore) ListDiagrams(ctx context.Context, incidentID int) ([]Diagram, error) {
	cur, err := s.db.Collection(colDiagrams).Find(ctx, bson.M{"incident_id": incidentID},
		options.Find().SetSort(bson.D{{Key: "id", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "list diagrams")
	}
	defer cur.Close(ctx)

	var out []Diagram
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "decode diagrams")
	}
	return out, nil
}

func (s *MongoStore) CreateUser(ctx context.Context, u User) error {
	if err := errors.ValidateUsername(u.Name); err != nil {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	res := s.db.Collection(colUsers).FindOne(ctx, bson.M{"name": u.Name})
	if res.Err() == nil {
		return errors.New(errors.ErrCodeConflict, "user %q already exists", u.Name)
	}
	if res.Err() != mongo.ErrNoDocuments {
		return errors.Wrap(errors.ErrCodeNetwork, res.Err(), "check user %q", u.Name)
	}

	if _, err := s.db.Collection(colUsers).InsertOne(ctx, u); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "insert user")
	}
	return nil
}

func (s *MongoStore) GetUser(ctx context.Context, name string) (*User, error) {
	var u User
	err := s.db.Collection(colUsers).FindOne(ctx, bson.M{"name": name}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New(errors.ErrCodeUserNotFound, "user %q not found", name)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "find user %q", name)
	}
	return &u, nil
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]User, error) {
	cur, err := s.db.Collection(colUsers).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "list users")
	}
	defer cur.Close(ctx)

	var out []User
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "decode users")
	}
	return out, nil
}

func (s *MongoStore) DeleteUser(ctx context.Context, name string) error {
	res, err := s.db.Collection(colUsers).DeleteOne(ctx, bson.M{"name": name})
	if err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "delete user %q", name)
	}
	if res.DeletedCount == 0 {
		return errors.New(errors.ErrCodeUserNotFound, "user %q not found", name)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ensure MongoStore implements Store.
var _ Store = (*MongoStore)(nil)
