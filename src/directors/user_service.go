package directors

import (
	"errors"

	"clipdash/src/auth"
	"clipdash/src/errs"
	"clipdash/src/settings"

	"go.uber.org/zap"
)

// UserService wraps the credential store for the HTTP layer.
type UserService struct {
	store    *auth.UserStore
	factory  auth.UserFactory
	settings *settings.Arguments
	logger   *zap.SugaredLogger
}

func NewUserService(store *auth.UserStore, factory auth.UserFactory,
	args *settings.Arguments, logger *zap.SugaredLogger) *UserService {
	service := &UserService{
		store:    store,
		factory:  factory,
		settings: args,
		logger:   logger,
	}

	logger.Infof("User service loaded %d users", len(store.ListUsers()))
	return service
}

func (s *UserService) AddUser(userName string, password string) error {
	if userName == "" || password == "" {
		return errs.New(errs.KindValidation, "username and password are required")
	}

	user := s.factory.NewUserStruct(userName, password)
	if _, err := s.store.AddUser(*user); err != nil {
		if errors.Is(err, auth.ErrUserAlreadyExists) {
			return errs.Wrap(errs.KindConflict, "user already exists", err)
		}
		return errs.Wrap(errs.KindStorage, "could not add user", err)
	}
	return nil
}

func (s *UserService) GetUserByName(userName string) (*auth.User, error) {
	user, err := s.store.GetUser(userName)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return nil, errs.Newf(errs.KindNotFound, "user %q not found", userName)
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) ListUsers() []string {
	return s.store.ListUsers()
}

func (s *UserService) UpdateUser(userName string, password string) error {
	if password == "" {
		return errs.New(errs.KindValidation, "password is required")
	}

	updatedUser := s.factory.NewUserStruct(userName, password)
	if err := s.store.UpdateUser(*updatedUser); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return errs.Newf(errs.KindNotFound, "user %q not found", userName)
		}
		return errs.Wrap(errs.KindStorage, "could not update user", err)
	}
	return nil
}

func (s *UserService) DeleteUser(userName string) error {
	if err := s.store.RemoveUser(userName); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return errs.Newf(errs.KindNotFound, "user %q not found", userName)
		}
		return errs.Wrap(errs.KindStorage, "could not remove user", err)
	}
	return nil
}

// Authenticate verifies a username/password pair.
func (s *UserService) Authenticate(userName string, password string) (*auth.User, error) {
	valid, user, err := s.store.VerifyCredentials(userName, password)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "could not verify credentials", err)
	}
	if !valid {
		return nil, errs.New(errs.KindValidation, "invalid credentials")
	}
	return user, nil
}
