package user

import (
	"context"
	"errors"
	"time"

	"github.com/trezcool/kazi/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByUsername(ctx context.Context, username string) (User, error)
		GetUserByUsernameOrEmail(ctx context.Context, username string) (User, error)
		QueryAllUsers(ctx context.Context) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		SetLastLogin(ctx context.Context, usr User) error
	}

	Service interface {
		Create(ctx context.Context, nu NewUser) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsername(ctx context.Context, uname string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		QueryAll(ctx context.Context) ([]User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		Authenticate(ctx context.Context, uname, pwd string) (User, error)
	}

	service struct {
		repo Repository
		log  core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, log core.Logger) Service {
	return &service{repo: repo, log: log}
}

func (svc *service) checkUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	if err := svc.checkUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(usr.Roles) == 0 {
		usr.Roles = StudentRoles
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsername(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryAllUsers(ctx)
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	orig, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if uu.Email != "" && uu.Email != orig.Email {
		if err := svc.checkUniqueness(ctx, "", uu.Email, orig); err != nil {
			return User{}, err
		}
		orig.Email = uu.Email
	}
	if uu.Name != "" {
		orig.Name = uu.Name
	}
	if uu.IsActive != nil {
		orig.IsActive = *uu.IsActive
	}
	if uu.Roles != nil {
		orig.Roles = uu.Roles
	}
	if uu.Password != "" {
		if err := orig.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	orig.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, orig)
}

// Authenticate checks the credentials and records the login time.
// It returns ErrNotFound on any credential mismatch so callers cannot probe
// which of username or password was wrong.
func (svc *service) Authenticate(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
	if err != nil {
		return User{}, ErrNotFound
	}
	if err := usr.CheckPassword(pwd); err != nil {
		return User{}, ErrNotFound
	}
	usr.LastLogin = time.Now().UTC()
	if err := svc.repo.SetLastLogin(ctx, usr); err != nil {
		svc.log.Warn("recording last login", err)
	}
	return usr, nil
}
