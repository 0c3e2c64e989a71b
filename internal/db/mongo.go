package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"semaphore/posts/internal/model"
)

const postsCollection = "posts"

type mongoPost struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Content     string             `bson:"content"`
	Author      string             `bson:"author"`
	AuthorName  string             `bson:"authorName"`
	AuthorRole  string             `bson:"authorRole"`
	Category    string             `bson:"category"`
	Tags        []string           `bson:"tags"`
	Attachments []model.Attachment `bson:"attachments"`
	Status      string             `bson:"status"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

// MongoStore keeps posts as documents keyed by ObjectID. BSON dates carry
// millisecond precision, so timestamps are truncated to milliseconds.
type MongoStore struct {
	client *mongo.Client
	posts  *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	store := &MongoStore{client: client, posts: client.Database(database).Collection(postsCollection)}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "author", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "tags", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create post indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Find(ctx context.Context, filter Filter, page Page) ([]model.Post, int64, error) {
	query := mongoFilter(filter)
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if page.Skip > 0 {
		opts.SetSkip(int64(page.Skip))
	}
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}
	cursor, err := s.posts.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	var docs []mongoPost
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode posts: %w", err)
	}
	total, err := s.posts.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}
	posts := make([]model.Post, 0, len(docs))
	for _, doc := range docs {
		posts = append(posts, doc.toModel())
	}
	return posts, total, nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (model.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.Post{}, ErrNotFound
	}
	var doc mongoPost
	err = s.posts.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Post{}, ErrNotFound
	}
	if err != nil {
		return model.Post{}, fmt.Errorf("get post %s: %w", id, err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) Insert(ctx context.Context, post model.Post) (model.Post, error) {
	post, err := prepareInsert(post, time.Millisecond)
	if err != nil {
		return model.Post{}, err
	}
	doc := fromModel(post)
	doc.ID = primitive.NewObjectID()
	if _, err := s.posts.InsertOne(ctx, doc); err != nil {
		return model.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) Save(ctx context.Context, post model.Post) (model.Post, error) {
	if post.ID == "" {
		return s.Insert(ctx, post)
	}
	oid, err := primitive.ObjectIDFromHex(post.ID)
	if err != nil {
		return model.Post{}, ErrNotFound
	}
	post, err = prepareSave(post, time.Millisecond)
	if err != nil {
		return model.Post{}, err
	}
	doc := fromModel(post)
	doc.ID = oid
	opts := options.Replace().SetUpsert(true)
	if _, err := s.posts.ReplaceOne(ctx, bson.M{"_id": oid}, doc, opts); err != nil {
		return model.Post{}, fmt.Errorf("save post %s: %w", post.ID, err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) DeleteByID(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.posts.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func mongoFilter(filter Filter) bson.M {
	query := bson.M{}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Author != "" {
		query["author"] = filter.Author
	}
	if filter.Tag != "" {
		// equality on an array field matches any element
		query["tags"] = filter.Tag
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	return query
}

func fromModel(post model.Post) mongoPost {
	return mongoPost{
		Title:       post.Title,
		Content:     post.Content,
		Author:      post.Author,
		AuthorName:  post.AuthorName,
		AuthorRole:  string(post.AuthorRole),
		Category:    string(post.Category),
		Tags:        post.Tags,
		Attachments: post.Attachments,
		Status:      string(post.Status),
		CreatedAt:   post.CreatedAt,
		UpdatedAt:   post.UpdatedAt,
	}
}

func (d mongoPost) toModel() model.Post {
	post := model.Post{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Content:     d.Content,
		Author:      d.Author,
		AuthorName:  d.AuthorName,
		AuthorRole:  model.Role(d.AuthorRole),
		Category:    model.Category(d.Category),
		Tags:        d.Tags,
		Attachments: d.Attachments,
		Status:      model.Status(d.Status),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	post.Normalize()
	return post
}
