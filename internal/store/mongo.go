package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig holds chat database connection settings.
type MongoConfig struct {
	URI string

	// Database is the chat service's main database.
	Database string

	// StatisticsDatabase holds the statistics_event collection; it
	// defaults to Database when empty.
	StatisticsDatabase string
}

const (
	collUsers         = "users"
	collSubscriptions = "rocketchat_subscription"
	collStatistics    = "statistics_event"
)

// Mongo implements Documents on the chat service's MongoDB.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	stats  *mongo.Database
}

var _ Documents = (*Mongo)(nil)

// NewMongo connects and verifies the connection with a ping.
func NewMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to chat database: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging chat database: %w", err)
	}
	statsName := cfg.StatisticsDatabase
	if statsName == "" {
		statsName = cfg.Database
	}
	return &Mongo{
		client: client,
		db:     client.Database(cfg.Database),
		stats:  client.Database(statsName),
	}, nil
}

// Ping verifies the connection.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func userFilter(linkedOnly bool) bson.M {
	if linkedOnly {
		return bson.M{"ldap": true}
	}
	return bson.M{}
}

// CountUsers implements Documents.
func (m *Mongo) CountUsers(ctx context.Context, linkedOnly bool) (int, error) {
	n, err := m.db.Collection(collUsers).CountDocuments(ctx, userFilter(linkedOnly))
	if err != nil {
		return 0, fmt.Errorf("counting chat users: %w", err)
	}
	return int(n), nil
}

// ListUsersPage implements Documents. Pages are ordered by _id so that
// concurrent chunks see disjoint windows.
func (m *Mongo) ListUsersPage(ctx context.Context, linkedOnly bool, limit, skip int) ([]ChatUser, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(skip))

	cur, err := m.db.Collection(collUsers).Find(ctx, userFilter(linkedOnly), opts)
	if err != nil {
		return nil, fmt.Errorf("listing chat users: %w", err)
	}
	defer cur.Close(ctx)

	var out []ChatUser
	for cur.Next(ctx) {
		var doc struct {
			ID       string `bson:"_id"`
			Username string `bson:"username"`
			LDAP     bool   `bson:"ldap"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding chat user: %w", err)
		}
		out = append(out, ChatUser{ID: doc.ID, Username: doc.Username, HasExternalLink: doc.LDAP})
	}
	return out, cur.Err()
}

// CountUsersByUsername implements Documents.
func (m *Mongo) CountUsersByUsername(ctx context.Context, username string) (int, error) {
	n, err := m.db.Collection(collUsers).CountDocuments(ctx, bson.M{"username": username})
	if err != nil {
		return 0, fmt.Errorf("counting chat users named %q: %w", username, err)
	}
	return int(n), nil
}

// SubscriptionCounts implements Documents.
func (m *Mongo) SubscriptionCounts(ctx context.Context, userID string) (total, owned int, err error) {
	subs, err := m.UserSubscriptions(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	total, owned = tallySubscriptions(subs)
	return total, owned, nil
}

type subscriptionDoc struct {
	RoomID string   `bson:"rid"`
	Roles  []string `bson:"roles"`
	User   struct {
		ID string `bson:"_id"`
	} `bson:"u"`
}

// UserSubscriptions implements Documents.
func (m *Mongo) UserSubscriptions(ctx context.Context, userID string) ([]Subscription, error) {
	cur, err := m.db.Collection(collSubscriptions).Find(ctx, bson.M{"u._id": userID})
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions of %s: %w", userID, err)
	}
	defer cur.Close(ctx)

	var out []Subscription
	for cur.Next(ctx) {
		var doc subscriptionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding subscription: %w", err)
		}
		out = append(out, Subscription{RoomID: doc.RoomID, UserID: doc.User.ID, Roles: doc.Roles})
	}
	return out, cur.Err()
}

// RoomMemberIDs implements Documents.
func (m *Mongo) RoomMemberIDs(ctx context.Context, roomID string) ([]string, error) {
	cur, err := m.db.Collection(collSubscriptions).Find(ctx, bson.M{"rid": roomID})
	if err != nil {
		return nil, fmt.Errorf("listing members of room %s: %w", roomID, err)
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var doc subscriptionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding subscription: %w", err)
		}
		out = append(out, doc.User.ID)
	}
	return out, cur.Err()
}

// CountEvents implements Documents.
func (m *Mongo) CountEvents(ctx context.Context, kind string, from, to time.Time) (int, error) {
	filter := bson.M{
		"eventType": kind,
		"timestamp": bson.M{"$gte": from, "$lte": to},
	}
	n, err := m.stats.Collection(collStatistics).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("counting %s events: %w", kind, err)
	}
	return int(n), nil
}
