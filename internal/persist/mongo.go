package persist

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var _ Reader = (*MongoReader)(nil)

// MongoReader reads scene-object documents directly from the persistence
// service's MongoDB. Documents carry "namespace" and "sceneId" fields; the
// reader only ever aggregates names, it never touches object payloads.
type MongoReader struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoReader creates a reader over the given database's scene-object
// collection.
func NewMongoReader(client *mongo.Client, db *mongo.Database, collection string) *MongoReader {
	return &MongoReader{
		client:     client,
		collection: db.Collection(collection),
	}
}

func (r *MongoReader) AllNamespaces(ctx context.Context) ([]string, error) {
	values, err := r.collection.Distinct(ctx, "namespace", bson.M{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *MongoReader) AllScenes(ctx context.Context) ([]string, error) {
	return r.sceneNames(ctx, bson.M{})
}

func (r *MongoReader) ScenesUnderNamespaces(ctx context.Context, namespaces []string) ([]string, error) {
	return r.sceneNames(ctx, bson.M{"namespace": bson.M{"$in": namespaces}})
}

func (r *MongoReader) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.PrimaryPreferred())
}

// sceneNames groups documents into distinct "namespace/sceneId" names.
func (r *MongoReader) sceneNames(ctx context.Context, match bson.M) ([]string, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": bson.M{
			"namespace": "$namespace",
			"sceneId":   "$sceneId",
		}}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var groups []struct {
		ID struct {
			Namespace string `bson:"namespace"`
			SceneID   string `bson:"sceneId"`
		} `bson:"_id"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(groups))
	for _, g := range groups {
		if g.ID.Namespace == "" || g.ID.SceneID == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%s/%s", g.ID.Namespace, g.ID.SceneID))
	}
	sort.Strings(out)
	return out, nil
}
