package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sells-group/newsstream/internal/model"
)

// MongoStore implements Store on a MongoDB collection, one document per URL.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// MongoConfig names the database and collection that hold articles.
type MongoConfig struct {
	Database   string `yaml:"database" mapstructure:"database"`
	Collection string `yaml:"collection" mapstructure:"collection"`
}

// NewMongo connects to MongoDB and verifies the connection.
func NewMongo(ctx context.Context, uri string, cfg MongoConfig) (*MongoStore, error) {
	if cfg.Database == "" {
		cfg.Database = "newsstream_db"
	}
	if cfg.Collection == "" {
		cfg.Collection = "articles"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, eris.Wrap(err, "mongo: connect")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, eris.Wrap(err, "mongo: ping")
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// NewMongoFromCollection wraps an existing collection handle.
func NewMongoFromCollection(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return eris.Wrap(s.client.Ping(ctx, readpref.Primary()), "mongo: ping")
}

func (s *MongoStore) Migrate(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "article_text", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "processed", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	return eris.Wrap(err, "mongo: create indexes")
}

func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

func (s *MongoStore) UpsertStub(ctx context.Context, a *model.Article) (bool, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"url": a.URL},
		bson.M{"$setOnInsert": bson.M{
			"_id":          id,
			"title":        a.Title,
			"rss_category": a.FeedCategory,
			"published_at": a.PublishedAt,
			"article_text": "",
			"created_at":   now,
			"updated_at":   now,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, eris.Wrapf(err, "mongo: upsert stub %s", a.URL)
	}
	if res.UpsertedCount == 0 {
		return false, nil
	}
	a.ID = id
	a.CreatedAt = now
	a.UpdatedAt = now
	return true, nil
}

func (s *MongoStore) GetArticleByURL(ctx context.Context, url string) (*model.Article, error) {
	var a model.Article
	err := s.coll.FindOne(ctx, bson.M{"url": url}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("url", url)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "mongo: get article %s", url)
	}
	return &a, nil
}

func (s *MongoStore) ListPendingExtraction(ctx context.Context, limit int) ([]model.Article, error) {
	return s.find(ctx, bson.M{"article_text": ""}, ascending(), limit)
}

func (s *MongoStore) ListPendingEnrichment(ctx context.Context, limit int) ([]model.Article, error) {
	return s.find(ctx, bson.M{"processed": false, "article_text": bson.M{"$ne": ""}}, ascending(), limit)
}

func (s *MongoStore) SaveArticleText(ctx context.Context, id, text string) error {
	return s.updateByID(ctx, id, bson.M{
		"$set":   bson.M{"article_text": text, "processed": false, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"scrape_status": ""},
	}, "save article text")
}

func (s *MongoStore) MarkScrapeFailed(ctx context.Context, id string) error {
	return s.updateByID(ctx, id, bson.M{
		"$set": bson.M{"scrape_status": model.ScrapeStatusFailed, "updated_at": time.Now().UTC()},
	}, "mark scrape failed")
}

func (s *MongoStore) ResetForRescrape(ctx context.Context, url string) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"url": url}, bson.M{
		"$set":   bson.M{"article_text": "", "processed": false, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"scrape_status": ""},
	})
	if err != nil {
		return eris.Wrapf(err, "mongo: reset article %s", url)
	}
	if res.MatchedCount == 0 {
		return notFound("url", url)
	}
	return nil
}

func (s *MongoStore) SaveEnrichment(ctx context.Context, id string, e model.Enrichment) (bool, error) {
	filter := idFilter(id)
	filter["processed"] = false
	filter["article_text"] = bson.M{"$ne": ""}

	res, err := s.coll.UpdateOne(ctx, filter,
		bson.M{"$set": bson.M{
			"summary":            e.Summary,
			"predicted_category": string(e.Category),
			"sentiment":          string(e.Sentiment),
			"processed":          true,
			"updated_at":         time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, eris.Wrapf(err, "mongo: save enrichment %s", id)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) CategoryBreakdown(ctx context.Context, f CleanFilter) ([]model.CountBucket, error) {
	key := bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{"$predicted_category", string(model.CategoryUnknown)}},
		model.DisplayCategory(model.CategoryUnknown),
		"$predicted_category",
	}}
	return s.breakdown(ctx, f, key)
}

func (s *MongoStore) SentimentBreakdown(ctx context.Context, f CleanFilter) ([]model.CountBucket, error) {
	return s.breakdown(ctx, f, "$sentiment")
}

func (s *MongoStore) LatestClean(ctx context.Context, f CleanFilter, n int) ([]model.ArticleDigest, error) {
	if n <= 0 {
		n = DefaultLatestLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(n)).
		SetProjection(bson.M{"_id": 0, "title": 1, "summary": 1, "predicted_category": 1, "sentiment": 1})

	cur, err := s.coll.Find(ctx, mongoCleanFilter(f), opts)
	if err != nil {
		return nil, eris.Wrap(err, "mongo: latest clean")
	}
	var out []model.ArticleDigest
	if err := cur.All(ctx, &out); err != nil {
		return nil, eris.Wrap(err, "mongo: decode digests")
	}
	return out, nil
}

func (s *MongoStore) ListClean(ctx context.Context, f CleanFilter) ([]model.Article, error) {
	return s.find(ctx, mongoCleanFilter(f), ascending(), 0)
}

func (s *MongoStore) breakdown(ctx context.Context, f CleanFilter, key any) ([]model.CountBucket, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: mongoCleanFilter(f)}},
		{{Key: "$group", Value: bson.M{"_id": key, "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, eris.Wrap(err, "mongo: aggregate")
	}
	var out []model.CountBucket
	if err := cur.All(ctx, &out); err != nil {
		return nil, eris.Wrap(err, "mongo: decode buckets")
	}
	return out, nil
}

func (s *MongoStore) find(ctx context.Context, filter any, sort bson.D, limit int) ([]model.Article, error) {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, eris.Wrap(err, "mongo: find articles")
	}
	var out []model.Article
	if err := cur.All(ctx, &out); err != nil {
		return nil, eris.Wrap(err, "mongo: decode articles")
	}
	return out, nil
}

func (s *MongoStore) updateByID(ctx context.Context, id string, update bson.M, action string) error {
	res, err := s.coll.UpdateOne(ctx, idFilter(id), update)
	if err != nil {
		return eris.Wrapf(err, "mongo: %s %s", action, id)
	}
	if res.MatchedCount == 0 {
		return notFound("article", id)
	}
	return nil
}

// idFilter matches an article by id. Documents inserted outside this store
// may carry ObjectId keys, which decode into Article.ID as hex strings.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{"_id": id}
}

func ascending() bson.D {
	return bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
}

// mongoCleanFilter renders the clean filter as a query document.
func mongoCleanFilter(f CleanFilter) bson.M {
	summary := bson.M{"$exists": true, "$nin": bson.A{nil, ""}}
	if p := f.Pattern(); p != "" {
		summary["$not"] = primitive.Regex{Pattern: p, Options: "i"}
	}
	return bson.M{"processed": true, "summary": summary}
}
