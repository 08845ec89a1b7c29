package auth

import (
	"errors"

	"github.com/planwise/backend/internal/authz"
	"golang.org/x/crypto/bcrypt"
)

// Demo credential constants. Header matching is exact byte equality: case
// variants, prefixes, and padded values must not authenticate.
const (
	DemoUserHeader = "x-demo-user"
	DemoUserValue  = "demo-user"

	DemoTokenHeader = "x-demo-token"
	DemoTokenValue  = "demo-token-2024"
)

// bcryptCost for seed-account PIN hashes
const bcryptCost = 12

// ErrInvalidCredentials covers both unknown account and wrong PIN so the
// response cannot be used to enumerate accounts.
var ErrInvalidCredentials = errors.New("invalid credentials")

// seedAccount is a fixed, non-database-backed login account for showcase
// and smoke-test use.
type seedAccount struct {
	user    User
	pinHash []byte
}

// AccountStore holds the seed accounts. PINs are bcrypt-hashed at startup
// so the comparison path is identical to a production credential check.
type AccountStore struct {
	accounts map[string]seedAccount
}

// NewAccountStore builds the seed-account table
func NewAccountStore() (*AccountStore, error) {
	seeds := []struct {
		user User
		pin  string
	}{
		{
			user: User{
				ID:        "demo-user",
				Email:     "demo@planwise.app",
				Role:      authz.RoleUser,
				FirstName: "Demo",
				LastName:  "User",
				Username:  "demo",
				IsDemo:    true,
			},
			pin: "0000",
		},
		{
			user: User{
				ID:        "demo-premium",
				Email:     "premium@planwise.app",
				Role:      authz.RolePremium,
				FirstName: "Demo",
				LastName:  "Premium",
				Username:  "demo-premium",
				IsDemo:    true,
			},
			pin: "1111",
		},
		{
			user: User{
				ID:        "demo-admin",
				Email:     "admin@planwise.app",
				Role:      authz.RoleAdmin,
				FirstName: "Demo",
				LastName:  "Admin",
				Username:  "demo-admin",
				IsDemo:    true,
			},
			pin: "9000",
		},
	}

	accounts := make(map[string]seedAccount, len(seeds))
	for _, seed := range seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.pin), bcryptCost)
		if err != nil {
			return nil, err
		}
		accounts[seed.user.ID] = seedAccount{user: seed.user, pinHash: hash}
	}

	return &AccountStore{accounts: accounts}, nil
}

// Authenticate verifies accountID and pin. The bcrypt comparison is
// constant-time; unknown accounts still burn a comparison so the timing of
// the two failure cases is indistinguishable.
func (s *AccountStore) Authenticate(accountID, pin string) (User, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(pin))
		return User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(account.pinHash, []byte(pin)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return account.user, nil
}

// Lookup returns the identity for accountID without checking credentials
func (s *AccountStore) Lookup(accountID string) (User, bool) {
	account, ok := s.accounts[accountID]
	return account.user, ok
}

// dummyHash is compared against when the account does not exist
var dummyHash = func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("planwise-dummy-pin"), bcryptCost)
	if err != nil {
		panic(err)
	}
	return hash
}()

// DemoUser is the identity synthesised for exact-match demo headers.
func DemoUser() User {
	return User{
		ID:        "demo-user",
		Email:     "demo@planwise.app",
		Role:      authz.RoleUser,
		FirstName: "Demo",
		LastName:  "User",
		Username:  "demo",
		IsDemo:    true,
	}
}
