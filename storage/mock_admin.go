package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// MockAdmin is an in-memory Admin and Inspector for testing. It mimics the
// server's rejections (duplicate user, existing collection, conflicting index)
// and records every call as "<operation> <target>".
type MockAdmin struct {
	mu sync.Mutex

	// Calls lists the operations received, in order
	Calls []string
	// Fail makes the call with the matching "<operation> <target>" key return the error
	Fail map[string]error

	database    string
	users       map[string]map[string]UserInfo
	collections map[string]map[string]*mockCollection
}

type mockCollection struct {
	indexes []IndexInfo
	docs    int64
}

// NewMockAdmin returns an empty server
func NewMockAdmin() *MockAdmin {
	return &MockAdmin{
		Fail:        make(map[string]error),
		users:       make(map[string]map[string]UserInfo),
		collections: make(map[string]map[string]*mockCollection),
	}
}

func (m *MockAdmin) record(op, target string) error {
	key := op + " " + target
	m.Calls = append(m.Calls, key)
	if err, ok := m.Fail[key]; ok {
		return err
	}
	return nil
}

func (m *MockAdmin) selected() (string, error) {
	if m.database == "" {
		return "", fmt.Errorf("no database selected")
	}
	return m.database, nil
}

func (m *MockAdmin) collection(db, name string, create bool) *mockCollection {
	if m.collections[db] == nil {
		m.collections[db] = make(map[string]*mockCollection)
	}
	c, ok := m.collections[db][name]
	if !ok && create {
		c = &mockCollection{indexes: []IndexInfo{{Name: "_id_", Key: bson.D{{Key: "_id", Value: int32(1)}}}}}
		m.collections[db][name] = c
	}
	return c
}

func (m *MockAdmin) SelectDatabase(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.record("select-database", name)
	m.database = name
}

func (m *MockAdmin) CreateUser(ctx context.Context, user UserSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("create-user", user.Username); err != nil {
		return err
	}
	db, err := m.selected()
	if err != nil {
		return err
	}
	if m.users[db] == nil {
		m.users[db] = make(map[string]UserInfo)
	}
	if _, exists := m.users[db][user.Username]; exists {
		return fmt.Errorf("%w: User \"%s@%s\" already exists", ErrDuplicateUser, user.Username, db)
	}
	roles := append([]RoleGrant(nil), user.Roles...)
	m.users[db][user.Username] = UserInfo{User: user.Username, DB: db, Roles: roles}
	return nil
}

func (m *MockAdmin) CreateCollection(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("create-collection", name); err != nil {
		return err
	}
	db, err := m.selected()
	if err != nil {
		return err
	}
	if m.collection(db, name, false) != nil {
		return fmt.Errorf("%w: Collection %s.%s already exists", ErrCollectionExists, db, name)
	}
	m.collection(db, name, true)
	return nil
}

func (m *MockAdmin) CreateIndex(ctx context.Context, index IndexSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("create-index", index.Collection+"."+index.Field); err != nil {
		return "", err
	}
	db, err := m.selected()
	if err != nil {
		return "", err
	}

	name := index.Name
	if name == "" {
		name = index.Field + "_1"
	}
	keys := bson.D{{Key: index.Field, Value: int32(1)}}
	signature := KeySignature(keys)

	c := m.collection(db, index.Collection, true)
	for _, existing := range c.indexes {
		sameKey := existing.KeySignature() == signature
		if sameKey && existing.IsUnique() == index.Unique && existing.Name == name {
			return name, nil
		}
		if sameKey || existing.Name == name {
			return "", fmt.Errorf("%w: index %s conflicts with existing index %s", ErrIndexConflict, name, existing.Name)
		}
	}
	if index.Unique && c.docs > 1 {
		return "", fmt.Errorf("%w: E11000 duplicate key error collection: %s.%s", ErrDuplicateKey, db, index.Collection)
	}

	info := IndexInfo{Name: name, Key: keys}
	if index.Unique {
		unique := true
		info.Unique = &unique
	}
	c.indexes = append(c.indexes, info)
	return name, nil
}

func (m *MockAdmin) UsersInfo(ctx context.Context, username string) ([]UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("users-info", username); err != nil {
		return nil, err
	}
	u, ok := m.users[m.database][username]
	if !ok {
		return []UserInfo{}, nil
	}
	return []UserInfo{u}, nil
}

func (m *MockAdmin) CollectionNames(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("list-collections", m.database); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m.collections[m.database]))
	for name := range m.collections[m.database] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MockAdmin) Indexes(ctx context.Context, collection string) ([]IndexInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("list-indexes", collection); err != nil {
		return nil, err
	}
	c := m.collection(m.database, collection, false)
	if c == nil {
		return []IndexInfo{}, nil
	}
	return append([]IndexInfo(nil), c.indexes...), nil
}

func (m *MockAdmin) CountDocuments(ctx context.Context, collection string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("count-documents", collection); err != nil {
		return 0, err
	}
	c := m.collection(m.database, collection, false)
	if c == nil {
		return 0, nil
	}
	return c.docs, nil
}

// AddDocuments raises the document count of a collection, creating it if needed.
// Documents carry no fields, so a unique index build over two or more of them
// fails as a duplicate key.
func (m *MockAdmin) AddDocuments(collection string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collection(m.database, collection, true).docs += n
}

// AddUser registers a user on db directly, bypassing the recorded calls
func (m *MockAdmin) AddUser(db string, user UserInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users[db] == nil {
		m.users[db] = make(map[string]UserInfo)
	}
	m.users[db][user.User] = user
}

// ResetCalls clears the recorded calls
func (m *MockAdmin) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}
