package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// MongoOptions configures the administrative connection
type MongoOptions struct {
	URI              string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	MaxPoolSize      uint64
}

// RoleGrant binds a role to the database it applies to
type RoleGrant struct {
	Role string `bson:"role"`
	DB   string `bson:"db"`
}

// UserSpec is the payload of a createUser command
type UserSpec struct {
	Username string
	Password string
	Roles    []RoleGrant
}

// IndexSpec describes a single-field ascending index
type IndexSpec struct {
	Collection string
	Field      string
	Unique     bool
	Name       string
}

// Admin issues the administrative commands of a bootstrap run.
type Admin interface {
	SelectDatabase(name string)
	CreateUser(ctx context.Context, user UserSpec) error
	CreateCollection(ctx context.Context, name string) error
	CreateIndex(ctx context.Context, index IndexSpec) (string, error)
}

// MongoDB holds the MongoDB client used for administration
type MongoDB struct {
	Client           *mongo.Client
	operationTimeout time.Duration
	logger           *zap.SugaredLogger
}

// NewMongoDB connects to the server and verifies the connection with a ping.
// Rejected credentials are reported as ErrAuthentication, any other failure
// as ErrConnectivity.
func NewMongoDB(ctx context.Context, opts MongoOptions, logger *zap.SugaredLogger) (*MongoDB, error) {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(opts.URI).
		SetServerSelectionTimeout(connectTimeout).
		SetConnectTimeout(connectTimeout)
	if opts.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(opts.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, classifyConnectError(fmt.Errorf("failed to connect to MongoDB: %w", err))
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, classifyConnectError(fmt.Errorf("failed to ping MongoDB: %w", err))
	}

	logger.Info("Connected to MongoDB successfully")

	return &MongoDB{
		Client:           client,
		operationTimeout: opts.OperationTimeout,
		logger:           logger,
	}, nil
}

// Admin returns an administrative handle bound to dbName
func (m *MongoDB) Admin(dbName string) *MongoAdmin {
	a := &MongoAdmin{
		client:           m.Client,
		operationTimeout: m.operationTimeout,
		logger:           m.logger,
	}
	a.SelectDatabase(dbName)
	return a
}

// HealthCheck performs a health check on the MongoDB connection
func (m *MongoDB) HealthCheck(ctx context.Context) error {
	return m.Client.Ping(ctx, nil)
}

// Close closes the MongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// MongoAdmin implements Admin and Inspector against a live server
type MongoAdmin struct {
	client           *mongo.Client
	db               *mongo.Database
	operationTimeout time.Duration
	logger           *zap.SugaredLogger
}

// SelectDatabase scopes every later call to name. It is pure context-setting
// and does not contact the server.
func (a *MongoAdmin) SelectDatabase(name string) {
	a.db = a.client.Database(name)
}

// Database returns the name of the selected database
func (a *MongoAdmin) Database() string {
	if a.db == nil {
		return ""
	}
	return a.db.Name()
}

func (a *MongoAdmin) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.operationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.operationTimeout)
}

// CreateUser registers user on the selected database
func (a *MongoAdmin) CreateUser(ctx context.Context, user UserSpec) error {
	ctx, cancel := a.opContext(ctx)
	defer cancel()

	roles := bson.A{}
	for _, r := range user.Roles {
		roles = append(roles, bson.D{{Key: "role", Value: r.Role}, {Key: "db", Value: r.DB}})
	}

	cmd := bson.D{
		{Key: "createUser", Value: user.Username},
		{Key: "pwd", Value: user.Password},
		{Key: "roles", Value: roles},
	}
	if err := a.db.RunCommand(ctx, cmd).Err(); err != nil {
		return classifyError(err)
	}

	a.logger.Debugw("User created", "user", user.Username, "database", a.db.Name())
	return nil
}

// CreateCollection explicitly creates an empty collection
func (a *MongoAdmin) CreateCollection(ctx context.Context, name string) error {
	ctx, cancel := a.opContext(ctx)
	defer cancel()

	if err := a.db.CreateCollection(ctx, name); err != nil {
		return classifyError(err)
	}

	a.logger.Debugw("Collection created", "collection", name, "database", a.db.Name())
	return nil
}

// CreateIndex builds the index and returns the name the server assigned
func (a *MongoAdmin) CreateIndex(ctx context.Context, index IndexSpec) (string, error) {
	ctx, cancel := a.opContext(ctx)
	defer cancel()

	idxOpts := options.Index().SetUnique(index.Unique)
	if index.Name != "" {
		idxOpts.SetName(index.Name)
	}
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: index.Field, Value: 1}},
		Options: idxOpts,
	}

	start := time.Now()
	name, err := a.db.Collection(index.Collection).Indexes().CreateOne(ctx, model)
	if err != nil {
		return "", classifyError(err)
	}

	a.logger.Debugw("Index created",
		"collection", index.Collection,
		"name", name,
		"keys", index.Field+":1",
		"unique", index.Unique,
		"took", time.Since(start).String())
	return name, nil
}

// InsertOne inserts a single document. Bootstrap never writes documents; this
// exists so callers can exercise the unique indexes it builds.
func (a *MongoAdmin) InsertOne(ctx context.Context, collection string, doc interface{}) error {
	ctx, cancel := a.opContext(ctx)
	defer cancel()

	if _, err := a.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return classifyError(err)
	}
	return nil
}
