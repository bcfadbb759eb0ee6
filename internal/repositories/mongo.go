package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/playsync/backend/internal/auth"
	"github.com/playsync/backend/internal/models"
)

// Collection names used by the document store.
const (
	mongoUsersCollection    = "users"
	mongoRequestsCollection = "friendReq"
	mongoSessionsCollection = "sessions"
)

type userDocument struct {
	ID                string    `bson:"_id"`
	Username          string    `bson:"username"`
	UsernameLower     string    `bson:"usernameLower"`
	Email             string    `bson:"email"`
	Password          string    `bson:"password"`
	FirstName         string    `bson:"firstName"`
	LastName          string    `bson:"lastName"`
	Bio               string    `bson:"bio,omitempty"`
	ProfilePictureURL string    `bson:"profilePictureUrl,omitempty"`
	OnlineStatus      string    `bson:"onlineStatus"`
	FriendsList       []string  `bson:"friendsList"`
	FriendRequests    []string  `bson:"friendRequests"`
	CreatedAt         time.Time `bson:"createdAt"`
	UpdatedAt         time.Time `bson:"updatedAt"`
}

func (d userDocument) model() models.User {
	return models.User{
		ID:                d.ID,
		Username:          d.Username,
		Email:             d.Email,
		Password:          d.Password,
		FirstName:         d.FirstName,
		LastName:          d.LastName,
		Bio:               d.Bio,
		ProfilePictureURL: d.ProfilePictureURL,
		OnlineStatus:      d.OnlineStatus,
		FriendsList:       d.FriendsList,
		FriendRequests:    d.FriendRequests,
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}

type requestDocument struct {
	ID          string    `bson:"_id"`
	RecipientID string    `bson:"recipientId"`
	RequestorID string    `bson:"requestorId"`
	PairKey     string    `bson:"pairKey"`
	Status      string    `bson:"status"`
	CreatedAt   time.Time `bson:"createdAt"`
}

func (d requestDocument) model() (models.FriendRequest, error) {
	status, err := models.ParseRequestStatus(d.Status)
	if err != nil {
		return models.FriendRequest{}, err
	}
	return models.FriendRequest{
		ID:          d.ID,
		RecipientID: d.RecipientID,
		RequestorID: d.RequestorID,
		Status:      status,
		CreatedAt:   d.CreatedAt.UTC(),
	}, nil
}

type sessionDocument struct {
	RefreshToken string    `bson:"_id"`
	UserID       string    `bson:"userId"`
	ExpiresAt    time.Time `bson:"expiresAt"`
}

// MongoStore persists users, friend requests and sessions in MongoDB.
//
// With transactions enabled every friendship transition runs inside a multi-document
// transaction, which needs a replica set. Without them the writes are applied one by
// one and a failed send is compensated by deleting the request it created.
type MongoStore struct {
	client        *mongo.Client
	users         *mongo.Collection
	requests      *mongo.Collection
	sessions      *mongo.Collection
	transactional bool
	logger        *slog.Logger
}

// NewMongoStore binds a store to the named database.
func NewMongoStore(client *mongo.Client, database string, transactional bool, logger *slog.Logger) *MongoStore {
	if logger == nil {
		logger = slog.Default()
	}
	db := client.Database(database)
	return &MongoStore{
		client:        client,
		users:         db.Collection(mongoUsersCollection),
		requests:      db.Collection(mongoRequestsCollection),
		sessions:      db.Collection(mongoSessionsCollection),
		transactional: transactional,
		logger:        logger,
	}
}

// Ping checks that the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the uniqueness and lookup indexes the store relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("email_unique").SetUnique(true)},
		{Keys: bson.D{{Key: "usernameLower", Value: 1}}, Options: options.Index().SetName("username_lower_unique").SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	if _, err := s.requests.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pairKey", Value: 1}}, Options: options.Index().SetName("pair_key_unique").SetUnique(true)},
		{
			Keys:    bson.D{{Key: "recipientId", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("recipient_status_created"),
		},
	}); err != nil {
		return fmt.Errorf("create friend request indexes: %w", err)
	}

	if _, err := s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetName("expires_at_ttl").SetExpireAfterSeconds(0),
	}); err != nil {
		return fmt.Errorf("create session indexes: %w", err)
	}

	return nil
}

// Create persists a new user record.
func (s *MongoStore) Create(ctx context.Context, user models.User) error {
	status := user.OnlineStatus
	if status == "" {
		status = models.OnlineStatusOffline
	}

	doc := userDocument{
		ID:                user.ID,
		Username:          user.Username,
		UsernameLower:     strings.ToLower(user.Username),
		Email:             strings.ToLower(user.Email),
		Password:          user.Password,
		FirstName:         user.FirstName,
		LastName:          user.LastName,
		Bio:               user.Bio,
		ProfilePictureURL: user.ProfilePictureURL,
		OnlineStatus:      status,
		FriendsList:       nonNil(user.FriendsList),
		FriendRequests:    nonNil(user.FriendRequests),
		CreatedAt:         user.CreatedAt,
		UpdatedAt:         user.UpdatedAt,
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByID fetches a user by identifier.
func (s *MongoStore) FindByID(ctx context.Context, id string) (models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

// FindByEmail fetches a user by their email address.
func (s *MongoStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findUser(ctx, bson.M{"email": strings.ToLower(email)})
}

// FindByUsername fetches a user by username, ignoring case.
func (s *MongoStore) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return s.findUser(ctx, bson.M{"usernameLower": strings.ToLower(username)})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (models.User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return doc.model(), nil
}

// FindProfiles returns the users found among ids in the order requested.
func (s *MongoStore) FindProfiles(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	opts := options.Find().SetProjection(bson.M{"friendsList": 0, "friendRequests": 0})
	cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find user profiles: %w", err)
	}

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode user profiles: %w", err)
	}

	byID := make(map[string]models.User, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc.model()
	}

	profiles := make([]models.User, 0, len(byID))
	for _, id := range ids {
		if user, ok := byID[id]; ok {
			profiles = append(profiles, user)
		}
	}
	return profiles, nil
}

// SearchByUsername returns up to limit users whose username starts with prefix.
func (s *MongoStore) SearchByUsername(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	filter := bson.M{"usernameLower": bson.M{"$regex": "^" + regexp.QuoteMeta(strings.ToLower(prefix))}}
	opts := options.Find().
		SetSort(bson.D{{Key: "usernameLower", Value: 1}}).
		SetProjection(bson.M{"friendsList": 0, "friendRequests": 0})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	users := make([]models.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.model())
	}
	return users, nil
}

// UpdateOnlineStatus sets the presence value of a user.
func (s *MongoStore) UpdateOnlineStatus(ctx context.Context, id, status string, at time.Time) error {
	return s.updateUser(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"onlineStatus": status, "updatedAt": at}})
}

// UpdateProfile overwrites the editable profile fields of a user. The unique
// usernameLower index rejects a username taken by someone else.
func (s *MongoStore) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) error {
	set := bson.M{
		"firstName":     update.FirstName,
		"lastName":      update.LastName,
		"username":      update.Username,
		"usernameLower": strings.ToLower(update.Username),
		"bio":           update.Bio,
		"updatedAt":     update.UpdatedAt,
	}
	if update.OnlineStatus != "" {
		set["onlineStatus"] = update.OnlineStatus
	}
	return s.updateUser(ctx, bson.M{"_id": id}, bson.M{"$set": set})
}

// FindRequest fetches a friend request by id.
func (s *MongoStore) FindRequest(ctx context.Context, requestID string) (models.FriendRequest, error) {
	return s.findRequest(ctx, bson.M{"_id": requestID})
}

// FindRequestBetween fetches the request linking two users in either direction.
func (s *MongoStore) FindRequestBetween(ctx context.Context, userA, userB string) (models.FriendRequest, error) {
	return s.findRequest(ctx, bson.M{"pairKey": models.PairKey(userA, userB)})
}

func (s *MongoStore) findRequest(ctx context.Context, filter bson.M) (models.FriendRequest, error) {
	var doc requestDocument
	if err := s.requests.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.FriendRequest{}, ErrNotFound
		}
		return models.FriendRequest{}, fmt.Errorf("find friend request: %w", err)
	}
	return doc.model()
}

// ListPendingForRecipient returns pending requests addressed to userID in creation order.
func (s *MongoStore) ListPendingForRecipient(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	filter := bson.M{"recipientId": userID, "status": string(models.RequestStatusPending)}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.requests.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find friend requests: %w", err)
	}

	var docs []requestDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode friend requests: %w", err)
	}

	requests := make([]models.FriendRequest, 0, len(docs))
	for _, doc := range docs {
		request, err := doc.model()
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, nil
}

// ApplyTransition applies t, inside a transaction when the store is transactional.
func (s *MongoStore) ApplyTransition(ctx context.Context, t models.Transition) error {
	return s.inTransaction(ctx, func(ctx context.Context) error {
		switch t.Kind {
		case models.TransitionSend:
			return s.send(ctx, t.Request)
		case models.TransitionAccept:
			return s.accept(ctx, t.Request.ID)
		case models.TransitionDecline, models.TransitionCancel:
			return s.resolve(ctx, t.Request.ID)
		case models.TransitionRemove:
			return s.remove(ctx, t.UserID, t.FriendID)
		default:
			return fmt.Errorf("apply %s: unsupported transition", t.Kind)
		}
	})
}

func (s *MongoStore) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactional {
		return fn(ctx)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start mongo session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *MongoStore) send(ctx context.Context, request models.FriendRequest) error {
	doc := requestDocument{
		ID:          request.ID,
		RecipientID: request.RecipientID,
		RequestorID: request.RequestorID,
		PairKey:     request.PairKey(),
		Status:      string(request.Status),
		CreatedAt:   request.CreatedAt,
	}

	if _, err := s.requests.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert friend request: %w", err)
	}

	err := s.updateUser(ctx, bson.M{"_id": request.RecipientID}, bson.M{
		"$addToSet": bson.M{"friendRequests": request.ID},
	})
	if err != nil {
		if !s.transactional {
			s.compensateSend(ctx, request.ID)
		}
		return fmt.Errorf("link friend request: %w", err)
	}
	return nil
}

func (s *MongoStore) compensateSend(ctx context.Context, requestID string) {
	if _, err := s.requests.DeleteOne(ctx, bson.M{"_id": requestID}); err != nil {
		s.logger.Error("rollback friend request failed", "requestId", requestID, "error", err)
		return
	}
	s.logger.Warn("friend request rolled back after linking failed", "requestId", requestID)
}

func (s *MongoStore) accept(ctx context.Context, requestID string) error {
	request, err := s.FindRequest(ctx, requestID)
	if err != nil {
		return err
	}

	if err := s.updateUser(ctx, bson.M{"_id": request.RecipientID}, bson.M{
		"$addToSet": bson.M{"friendsList": request.RequestorID},
		"$pull":     bson.M{"friendRequests": request.ID},
	}); err != nil {
		return fmt.Errorf("update recipient: %w", err)
	}

	if err := s.updateUser(ctx, bson.M{"_id": request.RequestorID}, bson.M{
		"$addToSet": bson.M{"friendsList": request.RecipientID},
	}); err != nil {
		return fmt.Errorf("update requestor: %w", err)
	}

	return s.deleteRequest(ctx, request.ID)
}

func (s *MongoStore) resolve(ctx context.Context, requestID string) error {
	request, err := s.FindRequest(ctx, requestID)
	if err != nil {
		return err
	}

	err = s.updateUser(ctx, bson.M{"_id": request.RecipientID}, bson.M{
		"$pull": bson.M{"friendRequests": request.ID},
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("unlink friend request: %w", err)
	}

	return s.deleteRequest(ctx, request.ID)
}

func (s *MongoStore) remove(ctx context.Context, userID, friendID string) error {
	if err := s.updateUser(ctx, bson.M{"_id": userID, "friendsList": friendID}, bson.M{
		"$pull": bson.M{"friendsList": friendID},
	}); err != nil {
		return err
	}

	return s.updateUser(ctx, bson.M{"_id": friendID, "friendsList": userID}, bson.M{
		"$pull": bson.M{"friendsList": userID},
	})
}

func (s *MongoStore) updateUser(ctx context.Context, filter, update bson.M) error {
	res, err := s.users.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) deleteRequest(ctx context.Context, requestID string) error {
	res, err := s.requests.DeleteOne(ctx, bson.M{"_id": requestID})
	if err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Sessions returns an auth.SessionStore sharing the store's database.
func (s *MongoStore) Sessions() *MongoSessionStore {
	return &MongoSessionStore{collection: s.sessions}
}

// MongoSessionStore persists refresh tokens in MongoDB.
type MongoSessionStore struct {
	collection *mongo.Collection
}

// Save stores or updates a session record.
func (s *MongoSessionStore) Save(ctx context.Context, session auth.Session) error {
	doc := sessionDocument{
		RefreshToken: session.RefreshToken,
		UserID:       session.UserID,
		ExpiresAt:    session.ExpiresAt.UTC(),
	}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": doc.RefreshToken}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Find loads a session by its refresh token.
func (s *MongoSessionStore) Find(ctx context.Context, refreshToken string) (auth.Session, error) {
	var doc sessionDocument
	if err := s.collection.FindOne(ctx, bson.M{"_id": refreshToken}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, fmt.Errorf("find session: %w", err)
	}
	return auth.Session{RefreshToken: doc.RefreshToken, UserID: doc.UserID, ExpiresAt: doc.ExpiresAt.UTC()}, nil
}

// Delete removes a session by its refresh token.
func (s *MongoSessionStore) Delete(ctx context.Context, refreshToken string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": refreshToken})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if res.DeletedCount == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

var _ UserRepository = (*MongoStore)(nil)
var _ FriendRepository = (*MongoStore)(nil)
var _ auth.SessionStore = (*MongoSessionStore)(nil)
