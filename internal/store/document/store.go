// Package document implements the Document Store side of the Store Pair
// (§4.A): the dynamic, per-user state that changes shape over time
// (current_state, preferences, besitos_balance, narrative_level,
// view_history). Grounded on the reference MongoDBHandler
// (original_source/src/database/mongodb.py), translated from "hand a
// caller the raw *Collection" to a narrow Store interface so callers never
// depend on mongo-driver directly — the same boundary the teacher's
// DatabaseService interface draws around *sql.DB.
package document

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Doc is a loosely-typed document, mirroring how the reference handler
// treats Mongo documents as plain dicts rather than fixed structs.
type Doc = bson.M

// Store is the narrow interface the rest of this core depends on instead
// of *mongo.Collection directly.
type Store interface {
	FindOne(ctx context.Context, collection string, filter Doc) (Doc, error)
	FindMany(ctx context.Context, collection string, filter Doc) ([]Doc, error)
	UpdateOne(ctx context.Context, collection string, filter, update Doc) error
	InsertOne(ctx context.Context, collection string, doc Doc) error
	DeleteOne(ctx context.Context, collection string, filter Doc) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Collection names, matching original_source/src/database/mongodb.py.
const (
	CollectionUsers              = "users"
	CollectionNarrativeFragments = "narrative_fragments"
	CollectionItems              = "items"
	CollectionLucienMessages     = "lucien_messages"
	CollectionNarrativeTemplates = "narrative_templates"
)

// mongoStore is the production Store backed by mongo-driver/v2.
type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri and returns a Store over the named database.
// connectTimeout bounds the initial handshake only.
func Connect(ctx context.Context, uri, database string, connectTimeout time.Duration) (Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("document: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("document: ping after connect: %w", err)
	}

	return &mongoStore{client: client, db: client.Database(database)}, nil
}

func (s *mongoStore) FindOne(ctx context.Context, collection string, filter Doc) (Doc, error) {
	var out Doc
	err := s.db.Collection(collection).FindOne(ctx, filter).Decode(&out)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("document: find one in %s: %w", collection, err)
	}
	return out, nil
}

// FindMany returns every document matching filter, used by the hint
// system to scan unlock_conditions over the items collection (the
// reference handler's hints_collection.find({...})).
func (s *mongoStore) FindMany(ctx context.Context, collection string, filter Doc) ([]Doc, error) {
	cur, err := s.db.Collection(collection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("document: find many in %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var out []Doc
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("document: decode find many in %s: %w", collection, err)
	}
	return out, nil
}

func (s *mongoStore) UpdateOne(ctx context.Context, collection string, filter, update Doc) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("document: update one in %s: %w", collection, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("document: update one in %s: no matching document", collection)
	}
	return nil
}

func (s *mongoStore) InsertOne(ctx context.Context, collection string, doc Doc) error {
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("document: insert one in %s: %w", collection, err)
	}
	return nil
}

func (s *mongoStore) DeleteOne(ctx context.Context, collection string, filter Doc) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("document: delete one in %s: %w", collection, err)
	}
	return nil
}

func (s *mongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("document: ping: %w", err)
	}
	return nil
}

func (s *mongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("document: disconnect: %w", err)
	}
	return nil
}

// InitializeCollections creates the indexes the reference
// initialize_collections() creates, one call per collection. It is
// idempotent: creating an index that already exists is a no-op in Mongo.
func InitializeCollections(ctx context.Context, client *mongo.Client, database string) error {
	db := client.Database(database)

	users := db.Collection(CollectionUsers)
	if _, err := users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "current_state.narrative_progress.current_fragment", Value: 1}}},
		{Keys: bson.D{{Key: "preferences.language", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("document: create users indexes: %w", err)
	}

	fragments := db.Collection(CollectionNarrativeFragments)
	if _, err := fragments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "fragment_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "metadata.tags", Value: 1}}},
		{Keys: bson.D{{Key: "metadata.vip_required", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("document: create narrative_fragments indexes: %w", err)
	}

	items := db.Collection(CollectionItems)
	if _, err := items.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "item_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "type", Value: 1}}},
		{Keys: bson.D{{Key: "metadata.value", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("document: create items indexes: %w", err)
	}

	return nil
}
