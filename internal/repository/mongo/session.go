package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/kb-chat/internal/config"
	"github.com/Rrens/kb-chat/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type identityDocument struct {
	Subject       string   `bson:"sub"`
	Email         string   `bson:"email,omitempty"`
	EmailVerified *bool    `bson:"email_verified,omitempty"`
	Groups        []string `bson:"groups,omitempty"`
}

type turnDocument struct {
	User string `bson:"user"`
	Bot  string `bson:"bot"`
}

type sessionDocument struct {
	ID         string            `bson:"_id"`
	Identity   *identityDocument `bson:"identity"`
	Transcript []turnDocument    `bson:"transcript"`
	CreatedAt  time.Time         `bson:"created_at"`
	UpdatedAt  time.Time         `bson:"updated_at"`
	ExpiresAt  time.Time         `bson:"expires_at"`
}

func (d *sessionDocument) toDomain() *domain.Session {
	s := &domain.Session{
		ID:         d.ID,
		Transcript: make(domain.Transcript, 0, len(d.Transcript)),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	if d.Identity != nil {
		s.Identity = &domain.Identity{
			Subject:       d.Identity.Subject,
			Email:         d.Identity.Email,
			EmailVerified: d.Identity.EmailVerified,
			Groups:        d.Identity.Groups,
		}
	}
	for _, t := range d.Transcript {
		s.Transcript = append(s.Transcript, domain.Turn{User: t.User, Bot: t.Bot})
	}
	return s
}

// SessionStore keeps one document per session. Every mutation is a single
// conditional document update, so it is atomic without transactions.
// Expired documents are removed by a TTL index on expires_at.
type SessionStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	ttl    time.Duration
	now    func() time.Time
}

// Connect dials MongoDB and ensures the TTL index exists
func Connect(ctx context.Context, cfg config.MongoConfig, ttl time.Duration) (*SessionStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetConnectTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	store := NewSessionStore(client, client.Database(cfg.Database).Collection(cfg.Collection), ttl)
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

// NewSessionStore wraps an existing collection
func NewSessionStore(client *mongo.Client, coll *mongo.Collection, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, coll: coll, ttl: ttl, now: time.Now}
}

// EnsureIndexes creates the expiry index
func (s *SessionStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("failed to create ttl index: %w", err)
	}
	return nil
}

// Close disconnects the client
func (s *SessionStore) Close() error {
	if s.client != nil {
		return s.client.Disconnect(context.Background())
	}
	return nil
}

// Get returns the session, creating an empty one if none exists
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	now := s.now()

	update := bson.M{
		"$setOnInsert": bson.M{
			"identity":   nil,
			"transcript": bson.A{},
			"created_at": now,
			"updated_at": now,
		},
		"$set": bson.M{"expires_at": now.Add(s.ttl)},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before)

	var doc sessionDocument
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.NewSession(id, now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	// The TTL monitor runs periodically, so an expired document may still exist
	if s.ttl > 0 && !now.Before(doc.ExpiresAt) {
		if err := s.reset(ctx, id, now); err != nil {
			return nil, err
		}
		return domain.NewSession(id, now), nil
	}

	return doc.toDomain(), nil
}

func (s *SessionStore) reset(ctx context.Context, id string, now time.Time) error {
	update := bson.M{"$set": bson.M{
		"identity":   nil,
		"transcript": bson.A{},
		"created_at": now,
		"updated_at": now,
		"expires_at": now.Add(s.ttl),
	}}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	return nil
}

// SetIdentity stores the identity and clears the transcript
func (s *SessionStore) SetIdentity(ctx context.Context, id string, identity domain.Identity) error {
	now := s.now()
	doc := identityDocument{
		Subject:       identity.Subject,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		Groups:        identity.Groups,
	}

	update := bson.M{
		"$set": bson.M{
			"identity":   doc,
			"transcript": bson.A{},
			"updated_at": now,
			"expires_at": now.Add(s.ttl),
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set identity: %w", err)
	}
	return nil
}

// AppendTurn pushes turn only while the session belongs to subject and is live
func (s *SessionStore) AppendTurn(ctx context.Context, id, subject string, turn domain.Turn) error {
	now := s.now()

	filter := bson.M{"_id": id, "identity.sub": subject}
	if s.ttl > 0 {
		filter["expires_at"] = bson.M{"$gt": now}
	}

	update := bson.M{
		"$push": bson.M{"transcript": turnDocument{User: turn.User, Bot: turn.Bot}},
		"$set": bson.M{
			"updated_at": now,
			"expires_at": now.Add(s.ttl),
		},
	}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUnauthorized
	}
	return nil
}

// Clear erases identity and transcript
func (s *SessionStore) Clear(ctx context.Context, id string) error {
	return s.reset(ctx, id, s.now())
}

// Ping verifies connectivity
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
