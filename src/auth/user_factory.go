package auth

import "clipdash/src/helpers"

// UserFactory builds NewUser structs ready for the store.
type UserFactory interface {
	NewUserStruct(userName string, password string) *NewUser
}

type UserFactoryImpl struct {
}

func NewUserFactory() UserFactory {
	return &UserFactoryImpl{}
}

func (f *UserFactoryImpl) NewUserStruct(userName string, password string) *NewUser {
	return &NewUser{
		UserID:   helpers.GenerateUUID(),
		Username: userName,
		Password: password,
	}
}
