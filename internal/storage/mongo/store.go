package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"studio/backend/internal/config"
	"studio/backend/internal/domain"
	"studio/backend/internal/storage"
)

const (
	messagesCollection = "messages"
	usersCollection    = "users"
)

// 用户名按不区分大小写比较
var usernameCollation = &options.Collation{Locale: "en", Strength: 2}

// Store MongoDB 文档存储实现
type Store struct {
	client   *mongo.Client
	messages *mongo.Collection
	users    *mongo.Collection
	log      *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// Open 连接 MongoDB 并返回存储实例
func Open(ctx context.Context, cfg *config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	opts := options.Client().
		ApplyURI(cfg.DSN).
		SetConnectTimeout(10 * time.Second)
	if cfg.MaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxOpenConns))
	}
	if cfg.MaxIdleConns > 0 {
		opts.SetMinPoolSize(uint64(cfg.MaxIdleConns))
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info("connected to MongoDB", zap.String("database", cfg.Name))
	store := NewStore(client, cfg.Name)
	store.log = log
	return store, nil
}

// NewStore 基于已连接的客户端创建存储
func NewStore(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		messages: db.Collection(messagesCollection),
		users:    db.Collection(usersCollection),
		log:      zap.NewNop(),
	}
}

// EnsureIndexes 创建查询所需索引
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}

	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetCollation(usernameCollation),
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

// ========== Message Repository ==========

// CreateMessage 保存新留言
func (s *Store) CreateMessage(ctx context.Context, message *domain.Message) error {
	_, err := s.messages.InsertOne(ctx, message)
	return err
}

// GetMessage 根据 ID 获取留言
func (s *Store) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	if err := s.messages.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&msg); err != nil {
		return nil, translateError(err, storage.ErrMessageNotFound)
	}
	return &msg, nil
}

// FindMessages 按条件查询，createdAt 倒序
func (s *Store) FindMessages(ctx context.Context, filter storage.MessageFilter) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Skip > 0 {
		opts.SetSkip(int64(filter.Skip))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.messages.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// CountMessages 统计满足条件的留言数
func (s *Store) CountMessages(ctx context.Context, filter storage.MessageFilter) (int64, error) {
	return s.messages.CountDocuments(ctx, buildFilter(filter))
}

// UpdateMessageStatus 更新状态与 updatedAt，返回更新后的文档
func (s *Store) UpdateMessageStatus(ctx context.Context, id string, status domain.MessageStatus, updatedAt time.Time) (*domain.Message, error) {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: status},
		{Key: "updatedAt", Value: updatedAt},
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var msg domain.Message
	err := s.messages.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, update, opts).Decode(&msg)
	if err != nil {
		return nil, translateError(err, storage.ErrMessageNotFound)
	}
	return &msg, nil
}

// DeleteMessage 删除留言并返回删除前的文档
func (s *Store) DeleteMessage(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	if err := s.messages.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&msg); err != nil {
		return nil, translateError(err, storage.ErrMessageNotFound)
	}
	return &msg, nil
}

// ========== User Repository ==========

// CreateUser 创建后台账号，依赖唯一索引保证用户名唯一
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.users.InsertOne(ctx, user)
	return translateError(err, storage.ErrUserNotFound)
}

// GetUserByID 根据 ID 获取账号
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := s.users.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&user); err != nil {
		return nil, translateError(err, storage.ErrUserNotFound)
	}
	return &user, nil
}

// GetUserByUsername 根据用户名获取账号，不区分大小写
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	opts := options.FindOne().SetCollation(usernameCollation)

	var user domain.User
	if err := s.users.FindOne(ctx, bson.D{{Key: "username", Value: username}}, opts).Decode(&user); err != nil {
		return nil, translateError(err, storage.ErrUserNotFound)
	}
	return &user, nil
}

// ========== Lifecycle ==========

// Close 断开连接
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Health 向主节点发送 ping
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// buildFilter 将通用过滤条件转换为 MongoDB 查询文档
func buildFilter(filter storage.MessageFilter) bson.D {
	query := bson.D{}
	if filter.Status != "" {
		query = append(query, bson.E{Key: "status", Value: string(filter.Status)})
	}

	created := bson.D{}
	if filter.CreatedFrom != nil {
		created = append(created, bson.E{Key: "$gte", Value: *filter.CreatedFrom})
	}
	if filter.CreatedTo != nil {
		created = append(created, bson.E{Key: "$lte", Value: *filter.CreatedTo})
	}
	if len(created) > 0 {
		query = append(query, bson.E{Key: "createdAt", Value: created})
	}
	return query
}

func translateError(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return notFound
	case mongo.IsDuplicateKeyError(err):
		return storage.ErrUsernameExists
	default:
		return err
	}
}
