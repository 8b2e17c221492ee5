package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/user/college-service/internal/entity"
	"github.com/user/college-service/internal/repository"
)

const collegeCollection = "colleges"

// CollegeRepoImpl provides a concrete implementation for the CollegeRepository interface using MongoDB.
type CollegeRepoImpl struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewCollegeRepo creates a new instance of CollegeRepoImpl on the given database.
func NewCollegeRepo(client *mongo.Client, database string) *CollegeRepoImpl {
	return &CollegeRepoImpl{
		client: client,
		coll:   client.Database(database).Collection(collegeCollection),
	}
}

// Find retrieves every college matching the filter, oldest first.
func (r *CollegeRepoImpl) Find(ctx context.Context, filter repository.CollegeFilter) ([]entity.College, error) {
	query := bson.D{}
	if filter.CollegeName != "" {
		query = bson.D{{Key: entity.FieldCollegeName, Value: filter.CollegeName}}
	}

	cur, err := r.coll.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	colleges := []entity.College{}
	for cur.Next(ctx) {
		var raw bson.D
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		colleges = append(colleges, toCollege(raw))
	}
	return colleges, cur.Err()
}

// FindByID retrieves a single college.
func (r *CollegeRepoImpl) FindByID(ctx context.Context, id string) (*entity.College, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	var raw bson.D
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&raw); err != nil {
		return nil, notFound(err)
	}
	c := toCollege(raw)
	return &c, nil
}

// Insert stores a new college document.
func (r *CollegeRepoImpl) Insert(ctx context.Context, doc entity.Record) (*entity.College, error) {
	oid := bson.NewObjectID()
	fields := toBSON(doc)
	fields[entity.IDField] = oid

	if _, err := r.coll.InsertOne(ctx, fields); err != nil {
		return nil, err
	}
	return &entity.College{ID: oid.Hex(), Document: doc.Clone()}, nil
}

// UpdateByID sets the given top-level fields and returns the updated document.
func (r *CollegeRepoImpl) UpdateByID(ctx context.Context, id string, doc entity.Record) (*entity.College, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	if len(doc) == 0 {
		// $set rejects an empty document
		return r.FindByID(ctx, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var raw bson.D
	err = r.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: toBSON(doc)}},
		opts,
	).Decode(&raw)
	if err != nil {
		return nil, notFound(err)
	}
	c := toCollege(raw)
	return &c, nil
}

// DeleteByID removes a college document.
func (r *CollegeRepoImpl) DeleteByID(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return repository.ErrNotFound
	}
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ping checks the connection to the primary.
func (r *CollegeRepoImpl) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	return err
}

func toBSON(doc entity.Record) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc.Native() {
		out[k] = v
	}
	return out
}

func toCollege(raw bson.D) entity.College {
	c := entity.College{Document: make(entity.Record, len(raw))}
	for _, e := range raw {
		if e.Key == entity.IDField {
			c.ID = idString(e.Value)
			continue
		}
		c.Document[e.Key] = normalize(e.Value)
	}
	return c
}

func idString(v any) string {
	if oid, ok := v.(bson.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(v)
}

// normalize converts driver values into the record model.
func normalize(v any) entity.Value {
	switch t := v.(type) {
	case nil:
		return entity.Null()
	case bson.D:
		rec := make(entity.Record, len(t))
		for _, e := range t {
			rec[e.Key] = normalize(e.Value)
		}
		return entity.Mapping(rec)
	case bson.M:
		rec := make(entity.Record, len(t))
		for k, el := range t {
			rec[k] = normalize(el)
		}
		return entity.Mapping(rec)
	case map[string]any:
		return normalize(bson.M(t))
	case bson.A:
		seq := make([]entity.Value, len(t))
		for i, el := range t {
			seq[i] = normalize(el)
		}
		return entity.Sequence(seq...)
	case []any:
		return normalize(bson.A(t))
	case bson.ObjectID:
		return entity.String(t.Hex())
	case bson.Binary:
		return entity.Bytes(t.Data)
	case []byte:
		return entity.Bytes(t)
	case bson.DateTime:
		return entity.Scalar(t.Time())
	case bson.Decimal128:
		return entity.String(t.String())
	case bson.Null, bson.Undefined:
		return entity.Null()
	}
	return entity.Scalar(v)
}
