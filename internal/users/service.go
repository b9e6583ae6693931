package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AttemptPurger removes a user's exam attempts.
type AttemptPurger interface {
	PurgeUser(ctx context.Context, userID string) (int, error)
}

type Service struct {
	store  Store
	purger AttemptPurger
	cost   int
	now    func() time.Time
}

func NewService(store Store, purger AttemptPurger) *Service {
	return &Service{store: store, purger: purger, cost: 12, now: time.Now}
}

// SetPurger wires attempt removal after construction.
func (s *Service) SetPurger(p AttemptPurger) { s.purger = p }

func (s *Service) hash(pw string) (string, error) {
	if len(pw) < MinPasswordLen {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, MinPasswordLen)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pw), s.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *Service) Create(ctx context.Context, in NewUser) (User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return User{}, fmt.Errorf("%w: username required", ErrInvalid)
	}
	role, err := ParseRole(in.Role)
	if err != nil {
		return User{}, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:           strings.TrimSpace(in.ID),
		Username:     username,
		Email:        strings.TrimSpace(in.Email),
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Role:         role,
		Active:       true,
		PasswordHash: hash,
		CreatedAt:    s.now().Unix(),
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := s.store.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, idOrUsername string) (User, error) {
	return s.store.Get(ctx, idOrUsername)
}

func (s *Service) List(ctx context.Context, o ListOpts) ([]User, int, error) {
	return s.store.List(ctx, o.Clamp())
}

// ActiveUsers returns every active account.
func (s *Service) ActiveUsers(ctx context.Context) ([]User, error) {
	return s.store.Active(ctx)
}

func (s *Service) CountByRole(ctx context.Context) (map[Role]int, error) {
	return s.store.CountByRole(ctx)
}

// guardLastAdmin refuses changes that leave no active admin.
func (s *Service) guardLastAdmin(ctx context.Context, cur User, next *User) error {
	if cur.Role != RoleAdmin || !cur.Active {
		return nil
	}
	if next != nil && next.Role == RoleAdmin && next.Active {
		return nil
	}
	n, err := s.store.CountActiveAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ErrLastAdmin
	}
	return nil
}

func (s *Service) Update(ctx context.Context, idOrUsername string, p Patch) (User, error) {
	cur, err := s.store.Get(ctx, idOrUsername)
	if err != nil {
		return User{}, err
	}
	next := cur
	if p.Email != nil {
		next.Email = strings.TrimSpace(*p.Email)
	}
	if p.DisplayName != nil {
		next.DisplayName = strings.TrimSpace(*p.DisplayName)
	}
	if p.Role != nil {
		if next.Role, err = ParseRole(*p.Role); err != nil {
			return User{}, err
		}
	}
	if p.Active != nil {
		next.Active = *p.Active
	}
	if err := s.guardLastAdmin(ctx, cur, &next); err != nil {
		return User{}, err
	}
	if err := s.store.Update(ctx, next); err != nil {
		return User{}, err
	}
	return next, nil
}

// Authenticate checks a username/password pair and records the login.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.store.Get(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrBadCredentials
	}
	if err != nil {
		return User{}, err
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	if !u.Active {
		return User{}, ErrInactive
	}
	u.LastLoginAt = s.now().Unix()
	if err := s.store.TouchLogin(ctx, u.ID, u.LastLoginAt); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)) != nil {
		return ErrBadCredentials
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	return s.store.SetPassword(ctx, u.ID, hash)
}

// ResetPassword sets a new password without knowing the old one.
func (s *Service) ResetPassword(ctx context.Context, idOrUsername, newPassword string) error {
	u, err := s.store.Get(ctx, idOrUsername)
	if err != nil {
		return err
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	return s.store.SetPassword(ctx, u.ID, hash)
}

// Delete removes the account and every attempt the user made.
func (s *Service) Delete(ctx context.Context, idOrUsername string) (int, error) {
	u, err := s.store.Get(ctx, idOrUsername)
	if err != nil {
		return 0, err
	}
	if err := s.guardLastAdmin(ctx, u, nil); err != nil {
		return 0, err
	}
	purged := 0
	if s.purger != nil {
		if purged, err = s.purger.PurgeUser(ctx, u.ID); err != nil {
			return 0, fmt.Errorf("purge attempts: %w", err)
		}
	}
	return purged, s.store.Delete(ctx, u.ID)
}

func (s *Service) ExportPII(ctx context.Context, idOrUsername string) (PII, error) {
	u, err := s.store.Get(ctx, idOrUsername)
	if err != nil {
		return PII{}, err
	}
	return PII{User: u, ExportedAt: s.now().Unix()}, nil
}

// BulkUpsert validates every row first and then applies them together.
// Callers other than admins may not grant the admin role, change admin
// accounts or set passwords on existing users. A batch that would leave no
// active admin is refused as a whole.
func (s *Service) BulkUpsert(ctx context.Context, rows []BulkRow, caller Role) (BulkResult, error) {
	var (
		creates, updates []User
		problems         []string
		denied           []string
		seen             = map[string]bool{}
		now              = s.now().Unix()
		adminDelta       int
		adminLoss        bool
	)
	privileged := caller == RoleAdmin
	for i, r := range rows {
		line := i + 1
		r.Username = strings.TrimSpace(r.Username)
		r.ID = strings.TrimSpace(r.ID)
		if r.Username == "" {
			problems = append(problems, fmt.Sprintf("row %d: username required", line))
			continue
		}
		key := strings.ToLower(r.Username)
		if seen[key] {
			problems = append(problems, fmt.Sprintf("row %d: duplicate username %s", line, r.Username))
			continue
		}
		seen[key] = true
		role, err := ParseRole(r.Role)
		if err != nil {
			problems = append(problems, fmt.Sprintf("row %d: %v", line, err))
			continue
		}
		var hash string
		if r.Password != "" {
			if hash, err = s.hash(r.Password); err != nil {
				problems = append(problems, fmt.Sprintf("row %d: %v", line, err))
				continue
			}
		}

		lookup := r.ID
		if lookup == "" {
			lookup = r.Username
		}
		cur, err := s.store.Get(ctx, lookup)
		switch {
		case err == nil:
			next := cur
			next.Username = r.Username
			if strings.TrimSpace(r.Role) != "" {
				next.Role = role
			}
			if r.Email != "" {
				next.Email = strings.TrimSpace(r.Email)
			}
			if r.DisplayName != "" {
				next.DisplayName = strings.TrimSpace(r.DisplayName)
			}
			if r.Active != nil {
				next.Active = *r.Active
			}
			next.PasswordHash = hash
			if !privileged {
				switch {
				case cur.Role == RoleAdmin:
					denied = append(denied, fmt.Sprintf("row %d: cannot modify admin %s", line, cur.Username))
					continue
				case next.Role == RoleAdmin:
					denied = append(denied, fmt.Sprintf("row %d: cannot grant admin", line))
					continue
				case hash != "":
					denied = append(denied, fmt.Sprintf("row %d: cannot set the password of existing user %s", line, cur.Username))
					continue
				}
			}
			was, is := activeAdmin(cur), activeAdmin(next)
			switch {
			case was && !is:
				adminDelta--
				adminLoss = true
			case !was && is:
				adminDelta++
			}
			updates = append(updates, next)
		case errors.Is(err, ErrNotFound):
			if hash == "" {
				problems = append(problems, fmt.Sprintf("row %d: password required for new user %s", line, r.Username))
				continue
			}
			if !privileged && role == RoleAdmin {
				denied = append(denied, fmt.Sprintf("row %d: cannot grant admin", line))
				continue
			}
			u := User{
				ID: r.ID, Username: r.Username, Email: strings.TrimSpace(r.Email),
				DisplayName: strings.TrimSpace(r.DisplayName), Role: role, Active: true,
				PasswordHash: hash, CreatedAt: now,
			}
			if r.Active != nil {
				u.Active = *r.Active
			}
			if u.ID == "" {
				u.ID = uuid.NewString()
			}
			if activeAdmin(u) {
				adminDelta++
			}
			creates = append(creates, u)
		default:
			return BulkResult{}, err
		}
	}
	if len(denied) > 0 {
		return BulkResult{}, fmt.Errorf("%w: %s", ErrForbidden, strings.Join(denied, "; "))
	}
	if len(problems) > 0 {
		return BulkResult{}, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	if adminLoss {
		n, err := s.store.CountActiveAdmins(ctx)
		if err != nil {
			return BulkResult{}, err
		}
		if n+adminDelta < 1 {
			return BulkResult{}, ErrLastAdmin
		}
	}
	if err := s.store.Apply(ctx, creates, updates); err != nil {
		return BulkResult{}, err
	}
	return BulkResult{Inserted: len(creates), Updated: len(updates)}, nil
}

func activeAdmin(u User) bool { return u.Role == RoleAdmin && u.Active }
