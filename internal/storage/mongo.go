package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/types"
)

// MongoStore keeps one collection per category in MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// NewMongoStore connects to uri and uses the named database.
func NewMongoStore(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoStore{
		client: client,
		db:     client.Database(database),
		logger: logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStore) Name() string { return "mongodb" }

func (s *MongoStore) collection(d *category.Descriptor) *mongo.Collection {
	return s.db.Collection(d.Table())
}

// Ensure creates the unique identifier index. Documents are schemaless, so
// new attribute fields need no migration.
func (s *MongoStore) Ensure(ctx context.Context, d *category.Descriptor) error {
	_, err := s.collection(d).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: types.FieldID, Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Op: "ensure", Err: err}
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, d *category.Descriptor) (map[string]*types.CatalogRecord, error) {
	records, err := s.Query(ctx, d, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*types.CatalogRecord, len(records))
	for _, r := range records {
		out[r.ID] = r
	}
	return out, nil
}

func (s *MongoStore) Query(ctx context.Context, d *category.Descriptor, conds []category.Condition) ([]*types.CatalogRecord, error) {
	filter, err := mongoFilter(conds)
	if err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "query", Err: err}
	}

	cur, err := s.collection(d).Find(ctx, filter)
	if err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "query", Err: err}
	}
	defer cur.Close(ctx)

	var records []*types.CatalogRecord
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, &types.StorageError{Backend: s.Name(), Op: "query", Err: err}
		}
		records = append(records, recordFromRow(d, normalizeRow(fromBSON(doc))))
	}
	if err := cur.Err(); err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "query", Err: err}
	}

	// Mongo sorts nulls first; order in memory to keep them last.
	category.SortByUnitPrice(records, d.ScoreField)
	return records, nil
}

func (s *MongoStore) Upsert(ctx context.Context, d *category.Descriptor, rec *types.CatalogRecord) error {
	values := rec.ToMap()
	set := bson.M{}
	for _, c := range tableColumns(d) {
		if c.name == types.FieldCreatedAt {
			continue
		}
		set[c.name] = sqlValue(c.kind, values[c.name])
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = rec.LastFetchedAt
	}

	_, err := s.collection(d).UpdateOne(ctx,
		bson.M{types.FieldID: rec.ID},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{types.FieldCreatedAt: created.UTC()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return upsertError(s.Name(), rec, err)
	}
	s.logger.Debug("record stored", "collection", d.Table(), "asin", rec.ID)
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// mongoFilter translates filter conditions into a query document.
func mongoFilter(conds []category.Condition) (bson.M, error) {
	if len(conds) == 0 {
		return bson.M{}, nil
	}
	clauses := make(bson.A, 0, len(conds))
	for _, c := range conds {
		switch c.Op {
		case category.OpEq:
			clauses = append(clauses, bson.M{c.Field: c.Value})
		case category.OpGte:
			clauses = append(clauses, bson.M{c.Field: bson.M{"$gte": c.Value}})
		case category.OpLt:
			clauses = append(clauses, bson.M{c.Field: bson.M{"$lt": c.Value}})
		case category.OpIsNull:
			clauses = append(clauses, bson.M{c.Field: nil})
		default:
			return nil, fmt.Errorf("unsupported filter operator %q", c.Op)
		}
	}
	return bson.M{"$and": clauses}, nil
}

// fromBSON drops the object id and converts BSON dates.
func fromBSON(doc bson.M) map[string]any {
	row := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		if dt, ok := v.(primitive.DateTime); ok {
			row[k] = dt.Time()
			continue
		}
		row[k] = v
	}
	return row
}
