package cv

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campustrack/internal/scoring"
)

const collection = "cv_versions"

// MongoArena keeps versions in the cv_versions collection.
type MongoArena struct {
	coll *mongo.Collection
}

func NewMongoArena(db *mongo.Database) *MongoArena {
	return &MongoArena{coll: db.Collection(collection)}
}

// EnsureIndexes creates the unique (studentId, version) index and a partial
// unique index that allows one active version per student.
func (a *MongoArena) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "studentId", Value: 1}, {Key: "version", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("student_version_unique"),
		},
		{
			Keys: bson.D{{Key: "studentId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("student_active_unique").
				SetPartialFilterExpression(bson.M{"isActive": true}),
		},
		{
			Keys:    bson.D{{Key: "studentId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("student_created"),
		},
	})
	if err != nil {
		return fmt.Errorf("cv indexes: %w", err)
	}
	return nil
}

func (a *MongoArena) LatestVersion(ctx context.Context, studentID string) (int, error) {
	var doc struct {
		Version int `bson:"version"`
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}}).SetProjection(bson.M{"version": 1})
	err := a.coll.FindOne(ctx, bson.M{"studentId": studentID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.Version, nil
}

func (a *MongoArena) Insert(ctx context.Context, v Version) error {
	v.IsActive = false
	if _, err := a.coll.InsertOne(ctx, v); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrVersionTaken
		}
		return err
	}
	return nil
}

func (a *MongoArena) Activate(ctx context.Context, studentID string, version int) error {
	n, err := a.coll.CountDocuments(ctx, bson.M{"studentId": studentID, "version": version})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionNotFound
	}
	if _, err := a.coll.UpdateMany(ctx,
		bson.M{"studentId": studentID, "isActive": true, "version": bson.M{"$ne": version}},
		bson.M{"$set": bson.M{"isActive": false}},
	); err != nil {
		return fmt.Errorf("deactivate siblings: %w", err)
	}
	if _, err := a.coll.UpdateOne(ctx,
		bson.M{"studentId": studentID, "version": version},
		bson.M{"$set": bson.M{"isActive": true}},
	); err != nil {
		return fmt.Errorf("activate version: %w", err)
	}
	return nil
}

func (a *MongoArena) Active(ctx context.Context, studentID string) (*Version, error) {
	var v Version
	err := a.coll.FindOne(ctx, bson.M{"studentId": studentID, "isActive": true}).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (a *MongoArena) List(ctx context.Context, studentID string) ([]Version, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "version", Value: -1}}).
		SetProjection(bson.M{"parsedContent": 0})
	cur, err := a.coll.Find(ctx, bson.M{"studentId": studentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []Version{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *MongoArena) SaveScore(ctx context.Context, id string, res scoring.Result) error {
	var v Version
	applyScore(&v, res)
	out, err := a.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"parsedData":     v.ParsedData,
		"atsScore":       v.ATSScore,
		"scoreBreakdown": v.ScoreBreakdown,
		"topReasons":     v.TopReasons,
		"missingSkills":  v.MissingSkills,
	}})
	if err != nil {
		return err
	}
	if out.MatchedCount == 0 {
		return ErrVersionNotFound
	}
	return nil
}
