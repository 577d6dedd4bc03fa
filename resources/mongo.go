package resources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoOptions MongoDB 存储配置选项
type MongoOptions struct {
	Name        string
	Uri         string
	Username    string
	Password    string
	Database    string
	Collection  string
	MaxPoolSize uint64
	MinPoolSize uint64
	Timeout     time.Duration
}

// NewDefaultMongoOptions 创建默认配置
func NewDefaultMongoOptions(name string, uri string) *MongoOptions {
	return &MongoOptions{
		Name:        name,
		Uri:         uri,
		Database:    "installkit",
		Collection:  "resources",
		MaxPoolSize: 100,
		MinPoolSize: 0,
		Timeout:     10 * time.Second,
	}
}

// Validate 验证配置
func (o *MongoOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("mongo store name is required")
	}
	if o.Uri == "" {
		return fmt.Errorf("mongo uri is required")
	}
	if o.Database == "" || o.Collection == "" {
		return fmt.Errorf("mongo database and collection are required")
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("mongo timeout must be positive")
	}
	return nil
}

// mongoResource 集合中的文档，_id 为资源名
type mongoResource struct {
	Name      string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// MongoStore 以文档形式保存资源
type MongoStore struct {
	name    string
	timeout time.Duration
	client  *mongo.Client
	coll    *mongo.Collection
}

var _ WritableStore = (*MongoStore)(nil)

// NewMongoStore 创建客户端。驱动按需建立连接，这里不会阻塞等待服务器。
func NewMongoStore(opts MongoOptions) (*MongoStore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// 构建配置
	clientOpts := options.Client().ApplyURI(opts.Uri)
	if opts.Username != "" || opts.Password != "" {
		clientOpts.SetAuth(options.Credential{
			Username: opts.Username,
			Password: opts.Password,
		})
	}
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(opts.MinPoolSize)
	}
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetServerSelectionTimeout(opts.Timeout)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client '%s': %w", opts.Name, err)
	}

	return &MongoStore{
		name:    opts.Name,
		timeout: opts.Timeout,
		client:  client,
		coll:    client.Database(opts.Database).Collection(opts.Collection),
	}, nil
}

func (s *MongoStore) Name() string { return "mongo:" + s.name }

func (s *MongoStore) Get(ctx context.Context, name string) ([]byte, error) {
	var doc mongoResource
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: name}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

func (s *MongoStore) Put(ctx context.Context, name string, data []byte) error {
	doc := mongoResource{Name: name, Data: data, UpdatedAt: time.Now().UTC()}
	_, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: name}}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) Delete(ctx context.Context, name string) error {
	_, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: name}})
	return err
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
