package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"burrito-analytics/internal/model"
)

// SnapshotRepo handles MongoDB operations for analytics snapshots. All state
// transitions are single-document, field-matching conditional writes so that
// concurrent appliers (consumers, reaper, redelivered duplicates) stay
// commutative and idempotent.
type SnapshotRepo interface {
	FindByKey(ctx context.Context, formID, windowKey string) (*model.Snapshot, error)
	FindByID(ctx context.Context, id string) (*model.Snapshot, error)

	// Upsert atomically replaces the whole snapshot document keyed by
	// (formId, windowKey) and returns the stored document.
	Upsert(ctx context.Context, formID, windowKey string, payload model.SnapshotPayload) (*model.Snapshot, error)

	// MarkAnalysisPending moves a question's text analysis to PENDING with the
	// given hash and clears any previous error.
	MarkAnalysisPending(ctx context.Context, snapshotID, questionID, hash string) error

	// ResolveAnalysis conditionally moves a question from PENDING to the
	// resolution's terminal state, but only while the stored document still
	// matches (questionId, hash, status=PENDING). Returns false when nothing
	// matched, i.e. someone else already resolved it.
	ResolveAnalysis(ctx context.Context, snapshotID, questionID, hash string, res model.AnalysisResolution) (bool, error)

	// FindStalePending returns snapshots generated at or before cutoff that
	// still have a PENDING text question.
	FindStalePending(ctx context.Context, cutoff time.Time) ([]*model.Snapshot, error)
}

type snapshotRepo struct {
	collection *mongo.Collection
}

// NewSnapshotRepo creates a new snapshot repository.
func NewSnapshotRepo(db *mongo.Database) SnapshotRepo {
	return &snapshotRepo{
		collection: db.Collection("analytics_snapshots"),
	}
}

// EnsureSnapshotIndexes creates the unique (formId, windowKey) identity index
// and the TTL index that expires documents at staleAt.
func EnsureSnapshotIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection("analytics_snapshots")
	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "formId", Value: 1}, {Key: "windowKey", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "staleAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	return err
}

func (r *snapshotRepo) FindByKey(ctx context.Context, formID, windowKey string) (*model.Snapshot, error) {
	var snapshot model.Snapshot
	err := r.collection.FindOne(ctx, bson.M{"formId": formID, "windowKey": windowKey}).Decode(&snapshot)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *snapshotRepo) FindByID(ctx context.Context, id string) (*model.Snapshot, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	var snapshot model.Snapshot
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&snapshot)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *snapshotRepo) Upsert(ctx context.Context, formID, windowKey string, payload model.SnapshotPayload) (*model.Snapshot, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var saved model.Snapshot
	err := r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"formId": formID, "windowKey": windowKey},
		bson.M{"$set": payload},
		opts,
	).Decode(&saved)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *snapshotRepo) MarkAnalysisPending(ctx context.Context, snapshotID, questionID, hash string) error {
	oid, err := primitive.ObjectIDFromHex(snapshotID)
	if err != nil {
		return err
	}

	_, err = r.collection.UpdateOne(ctx,
		bson.M{"_id": oid, "questions.questionId": questionID},
		bson.M{
			"$set": bson.M{
				"questions.$.text.analysisStatus": model.AnalysisPending,
				"questions.$.text.analysisHash":   hash,
			},
			"$unset": bson.M{"questions.$.text.analysisError": ""},
		},
	)
	return err
}

func (r *snapshotRepo) ResolveAnalysis(ctx context.Context, snapshotID, questionID, hash string, res model.AnalysisResolution) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(snapshotID)
	if err != nil {
		return false, nil
	}

	filter := bson.M{
		"_id": oid,
		"questions": bson.M{"$elemMatch": bson.M{
			"questionId":          questionID,
			"text.analysisHash":   hash,
			"text.analysisStatus": model.AnalysisPending,
		}},
	}

	set := bson.M{
		"questions.$.text.analysisStatus": res.Status,
		"questions.$.text.lastEnrichedAt": res.LastEnrichedAt,
	}
	unset := bson.M{}
	if res.Status == model.AnalysisReady {
		topIdeas := res.TopIdeas
		if topIdeas == nil {
			topIdeas = []model.TextIdea{}
		}
		set["questions.$.text.topIdeas"] = topIdeas
		if res.Sentiment != nil {
			set["questions.$.text.sentiment"] = res.Sentiment
		} else {
			unset["questions.$.text.sentiment"] = ""
		}
		unset["questions.$.text.analysisError"] = ""
	} else {
		set["questions.$.text.analysisError"] = res.AnalysisError
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *snapshotRepo) FindStalePending(ctx context.Context, cutoff time.Time) ([]*model.Snapshot, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"generatedAt":                 bson.M{"$lte": cutoff},
		"questions.text.analysisStatus": model.AnalysisPending,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var snapshots []*model.Snapshot
	if err := cursor.All(ctx, &snapshots); err != nil {
		return nil, err
	}
	return snapshots, nil
}
