package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mind-engage/examdesk/internal/users"
)

type UserStore struct {
	col *mongo.Collection
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{col: db.Collection(colUsers)}
}

func byIDOrUsername(v string) bson.M {
	return bson.M{"$or": bson.A{bson.M{"_id": v}, bson.M{"username": v}}}
}

func (s *UserStore) Create(ctx context.Context, u users.User) error {
	n, err := s.col.CountDocuments(ctx, bson.M{"$or": bson.A{bson.M{"_id": u.ID}, bson.M{"username": u.Username}}})
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", users.ErrExists, u.Username)
	}
	if _, err := s.col.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", users.ErrExists, u.Username)
		}
		return err
	}
	return nil
}

func (s *UserStore) Update(ctx context.Context, u users.User) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{"$set": bson.M{
		"username":     u.Username,
		"email":        u.Email,
		"display_name": u.DisplayName,
		"role":         u.Role,
		"active":       u.Active,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return users.ErrNotFound
	}
	return nil
}

// Apply writes creates then updates. Without a replica set there is no
// multi-document transaction, so a failure part way leaves earlier rows.
func (s *UserStore) Apply(ctx context.Context, creates, updates []users.User) error {
	for _, u := range creates {
		if err := s.Create(ctx, u); err != nil {
			return err
		}
	}
	for _, u := range updates {
		if err := s.Update(ctx, u); err != nil {
			return err
		}
		if u.PasswordHash != "" {
			if err := s.SetPassword(ctx, u.ID, u.PasswordHash); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *UserStore) Get(ctx context.Context, idOrUsername string) (users.User, error) {
	var u users.User
	err := s.col.FindOne(ctx, byIDOrUsername(idOrUsername)).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return users.User{}, users.ErrNotFound
	}
	return u, err
}

func (s *UserStore) List(ctx context.Context, o users.ListOpts) ([]users.User, int, error) {
	o = o.Clamp()
	filter := bson.M{}
	if o.Role != "" {
		filter["role"] = o.Role
	}
	if o.Active != nil {
		filter["active"] = *o.Active
	}
	if o.Q != "" {
		filter["$or"] = bson.A{
			bson.M{"username": contains(o.Q)},
			bson.M{"email": contains(o.Q)},
			bson.M{"display_name": contains(o.Q)},
		}
	}
	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	cur, err := s.col.Find(ctx, filter, findPage(o.Limit, o.Offset).SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	out := []users.User{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

func (s *UserStore) Active(ctx context.Context) ([]users.User, error) {
	cur, err := s.col.Find(ctx, bson.M{"active": true}, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []users.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (s *UserStore) SetPassword(ctx context.Context, id, hash string) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"password_hash": hash}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (s *UserStore) TouchLogin(ctx context.Context, id string, at int64) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_login_at": at}})
	return err
}

func (s *UserStore) CountActiveAdmins(ctx context.Context) (int, error) {
	n, err := s.col.CountDocuments(ctx, bson.M{"role": users.RoleAdmin, "active": true})
	return int(n), err
}

func (s *UserStore) CountByRole(ctx context.Context) (map[users.Role]int, error) {
	rows, err := countBy(ctx, s.col, "role")
	if err != nil {
		return nil, err
	}
	out := map[users.Role]int{}
	for _, r := range rows {
		out[users.Role(r.Key)] = r.N
	}
	return out, nil
}
