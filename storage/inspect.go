package storage

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// UserInfo is one entry of a usersInfo reply
type UserInfo struct {
	User  string      `bson:"user"`
	DB    string      `bson:"db"`
	Roles []RoleGrant `bson:"roles"`
}

// IndexInfo is one entry of a listIndexes reply
type IndexInfo struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

// IsUnique reports whether the index enforces uniqueness
func (i IndexInfo) IsUnique() bool {
	return i.Unique != nil && *i.Unique
}

// KeySignature renders the key pattern as "field:direction" pairs
func (i IndexInfo) KeySignature() string {
	return KeySignature(i.Key)
}

// KeySignature renders a key document as "field:direction" pairs in order.
func KeySignature(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

// Inspector reads back the administrative state a bootstrap run produces.
type Inspector interface {
	UsersInfo(ctx context.Context, username string) ([]UserInfo, error)
	CollectionNames(ctx context.Context) ([]string, error)
	Indexes(ctx context.Context, collection string) ([]IndexInfo, error)
	CountDocuments(ctx context.Context, collection string) (int64, error)
}

// UsersInfo returns the users named username on the selected database
func (a *MongoAdmin) UsersInfo(ctx context.Context, username string) ([]UserInfo, error) {
	ctx, cancel := a.opContext(ctx)
	defer cancel()

	var reply struct {
		Users []UserInfo `bson:"users"`
	}
	cmd := bson.D{{Key: "usersInfo", Value: username}}
	if err := a.db.RunCommand(ctx, cmd).Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to read users: %w", classifyError(err))
	}
	return reply.Users, nil
}

// CollectionNames lists the collections of the selected database
func (a *MongoAdmin) CollectionNames(ctx context.Context) ([]string, error) {
	ctx, cancel := a.opContext(ctx)
	defer cancel()

	names, err := a.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", classifyError(err))
	}
	return names, nil
}

// Indexes lists the indexes of collection
func (a *MongoAdmin) Indexes(ctx context.Context, collection string) ([]IndexInfo, error) {
	ctx, cancel := a.opContext(ctx)
	defer cancel()

	cursor, err := a.db.Collection(collection).Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes on %s: %w", collection, classifyError(err))
	}
	defer cursor.Close(ctx)

	indexes := make([]IndexInfo, 0)
	for cursor.Next(ctx) {
		var idx IndexInfo
		if err := cursor.Decode(&idx); err != nil {
			return nil, fmt.Errorf("failed to decode index on %s: %w", collection, err)
		}
		indexes = append(indexes, idx)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return indexes, nil
}

// CountDocuments returns the number of documents in collection
func (a *MongoAdmin) CountDocuments(ctx context.Context, collection string) (int64, error) {
	ctx, cancel := a.opContext(ctx)
	defer cancel()

	count, err := a.db.Collection(collection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count documents in %s: %w", collection, classifyError(err))
	}
	return count, nil
}
