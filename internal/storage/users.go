package storage

import (
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	apperr "github.com/mvdwal/meditrack/internal/errors"
)

// Identity index management. Usernames are not unique: the username
// index value is a comma-joined list of user ids, one entry per
// registration under that name. Emails are unique while claimed.

// RegisterUser creates an account. The email index is checked first and
// the username fan-out appended inside the same guarded transaction as
// the user record write, so two concurrent registrations under the same
// username (or email) cannot interleave on the indexes.
func (s *Store) RegisterUser(username, email, password, firstName, lastName string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || password == "" {
		return nil, apperr.Operation("username and password are required")
	}
	if strings.Contains(username, ",") || strings.Contains(username, ":") {
		return nil, apperr.Operation("username must not contain ',' or ':'")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Operation("failed to hash password", err)
	}

	user := User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Active:       email == "", // activated via email verification when an address is given
		CreatedAt:    s.now(),
	}
	user.FirstName = strings.TrimSpace(firstName)
	user.LastName = strings.TrimSpace(lastName)

	err = s.runGuarded("register user", func(txn *badger.Txn) error {
		if email != "" {
			_, err := txn.Get([]byte(s.keys.emailKey(email)))
			if err == nil {
				return apperr.ErrEmailTaken
			}
			if !stderrors.Is(err, badger.ErrKeyNotFound) {
				return apperr.Operation("email index read failed", err)
			}
		}

		// The username index may be absent, a single id, or a
		// comma-joined list from prior same-username registrations.
		ids := user.ID
		item, err := txn.Get([]byte(s.keys.usernameKey(username)))
		if err == nil {
			existing, copyErr := item.ValueCopy(nil)
			if copyErr != nil {
				return apperr.Operation("username index read failed", copyErr)
			}
			if len(existing) > 0 {
				ids = string(existing) + "," + user.ID
			}
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return apperr.Operation("username index read failed", err)
		}

		if err := setInTxn(txn, s.keys.userIDKey(user.ID), user); err != nil {
			return err
		}
		if err := txn.Set([]byte(s.keys.usernameKey(username)), []byte(ids)); err != nil {
			return apperr.Operation("username index write failed", err)
		}
		if email != "" {
			if err := txn.Set([]byte(s.keys.emailKey(email)), []byte(user.ID)); err != nil {
				return apperr.Operation("email index write failed", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// LoginUser walks every id linked to the username and checks the
// password against each candidate. All failure branches return the same
// invalid-credentials error so the response does not leak whether the
// username exists.
func (s *Store) LoginUser(username, password string) (*User, error) {
	ids, err := s.usernameIDs(username)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, err
	}

	for _, id := range ids {
		user, err := getOne[User](s, s.keys.userIDKey(id), "user")
		if err != nil {
			// Stale index entry; keep trying the remaining candidates.
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil {
			return user, nil
		}
	}
	return nil, apperr.ErrInvalidCredentials
}

// GetUser resolves a username to its first linked account.
func (s *Store) GetUser(username string) (*User, error) {
	ids, err := s.usernameIDs(username)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if user, err := getOne[User](s, s.keys.userIDKey(id), "user"); err == nil {
			return user, nil
		}
	}
	return nil, apperr.NotFound("user")
}

// ListUsers enumerates every account. Used by the background sweeps,
// not by request handlers.
func (s *Store) ListUsers() ([]User, error) {
	return scanAndFetch[User](s, s.keys.userIDPrefix())
}

func (s *Store) GetUserByID(id string) (*User, error) {
	return getOne[User](s, s.keys.userIDKey(id), "user")
}

func (s *Store) GetUserByEmail(email string) (*User, error) {
	id, err := s.readIndex(s.keys.emailKey(email))
	if err != nil {
		return nil, err
	}
	return getOne[User](s, s.keys.userIDKey(id), "user")
}

// CheckPassword verifies a credential against one specific account,
// unlike LoginUser which resolves across the username fan-out.
func (s *Store) CheckPassword(userID, password string) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return apperr.ErrInvalidCredentials
	}
	return nil
}

// UpdatePassword replaces the credential for a user id.
func (s *Store) UpdatePassword(userID, newPassword string) error {
	if newPassword == "" {
		return apperr.Operation("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Operation("failed to hash password", err)
	}

	key := s.keys.userIDKey(userID)
	return s.runGuarded("update password", func(txn *badger.Txn) error {
		user, err := getInTxn[User](txn, key, "user")
		if err != nil {
			return err
		}
		user.PasswordHash = string(hash)
		return setInTxn(txn, key, user)
	})
}

// UpdateProfile updates display fields and, when the email changes,
// moves the email index claim in the same commit.
func (s *Store) UpdateProfile(userID, firstName, lastName, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	key := s.keys.userIDKey(userID)

	var updated *User
	err := s.runGuarded("update profile", func(txn *badger.Txn) error {
		user, err := getInTxn[User](txn, key, "user")
		if err != nil {
			return err
		}

		if email != user.Email {
			if email != "" {
				item, err := txn.Get([]byte(s.keys.emailKey(email)))
				if err == nil {
					claimed, copyErr := item.ValueCopy(nil)
					if copyErr != nil {
						return apperr.Operation("email index read failed", copyErr)
					}
					if string(claimed) != userID {
						return apperr.ErrEmailTaken
					}
				} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
					return apperr.Operation("email index read failed", err)
				}
			}
			if user.Email != "" {
				if err := txn.Delete([]byte(s.keys.emailKey(user.Email))); err != nil {
					return apperr.Operation("email index delete failed", err)
				}
			}
			if email != "" {
				if err := txn.Set([]byte(s.keys.emailKey(email)), []byte(userID)); err != nil {
					return apperr.Operation("email index write failed", err)
				}
			}
			user.Email = email
		}

		user.FirstName = strings.TrimSpace(firstName)
		user.LastName = strings.TrimSpace(lastName)
		if err := setInTxn(txn, key, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteUser is the full cascading purge: every owned record, the
// identity index entries, and any outstanding reset tokens.
func (s *Store) DeleteUser(userID string) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}

	prefixes := []string{
		s.keys.entityPrefix(userID, typeMedicine),
		s.keys.entityPrefix(userID, typeSchedule),
		s.keys.entityPrefix(userID, typeDosageHistory),
		s.keys.passwordResetUserPrefix(userID),
	}
	for _, prefix := range prefixes {
		keys, err := s.scanKeys(prefix)
		if err != nil {
			return err
		}
		for _, key := range keys {
			err := s.db.Update(func(txn *badger.Txn) error {
				return txn.Delete([]byte(key))
			})
			if err != nil {
				return apperr.Operation("purge delete failed", err)
			}
		}
	}

	// Remove this id from the username fan-out; drop the index key when
	// it was the last entry.
	err = s.runGuarded("unlink username", func(txn *badger.Txn) error {
		idxKey := []byte(s.keys.usernameKey(user.Username))
		item, err := txn.Get(idxKey)
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return apperr.Operation("username index read failed", err)
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return apperr.Operation("username index read failed", err)
		}

		var remaining []string
		for _, id := range strings.Split(string(val), ",") {
			if id != "" && id != userID {
				remaining = append(remaining, id)
			}
		}
		if len(remaining) == 0 {
			if err := txn.Delete(idxKey); err != nil {
				return apperr.Operation("username index delete failed", err)
			}
			return nil
		}
		if err := txn.Set(idxKey, []byte(strings.Join(remaining, ","))); err != nil {
			return apperr.Operation("username index write failed", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.runGuarded("delete user", func(txn *badger.Txn) error {
		if user.Email != "" {
			if err := txn.Delete([]byte(s.keys.emailKey(user.Email))); err != nil {
				return apperr.Operation("email index delete failed", err)
			}
		}
		if err := txn.Delete([]byte(s.keys.userIDKey(userID))); err != nil {
			return apperr.Operation("user delete failed", err)
		}
		return nil
	})
}

// ==================== Tokens ====================

// newToken returns a 32-byte random token in hex.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", apperr.Operation("failed to generate token", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreatePasswordResetToken stores a single-use reset token under the
// user's id with a store-level TTL, so unconsumed tokens self-delete.
func (s *Store) CreatePasswordResetToken(userID string, ttl time.Duration) (string, error) {
	if _, err := s.GetUserByID(userID); err != nil {
		return "", err
	}
	token, err := newToken()
	if err != nil {
		return "", err
	}

	key := s.keys.passwordResetKey(userID, token)
	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), []byte(userID)).WithTTL(ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		return "", apperr.Operation("failed to store reset token", err)
	}
	return token, nil
}

// VerifyPasswordResetToken resolves a reset token to its user. The
// legacy key layout embeds the user id ahead of the token, so this has
// to scan the reset prefix for a key ending in the token. Exactly one
// match proceeds; more than one is reported, never silently resolved by
// picking one. The token key is deleted before success is reported, so
// the token is single-use.
func (s *Store) VerifyPasswordResetToken(token string) (*User, error) {
	if token == "" {
		return nil, apperr.ErrTokenNotFound
	}

	keys, err := s.scanKeys(s.keys.passwordResetPrefix())
	if err != nil {
		return nil, err
	}

	suffix := ":" + token
	var matches []string
	for _, key := range keys {
		if strings.HasSuffix(key, suffix) {
			matches = append(matches, key)
		}
	}

	switch {
	case len(matches) == 0:
		return nil, apperr.ErrTokenNotFound
	case len(matches) > 1:
		s.logger.Warn("reset token matched multiple keys",
			zap.Int("matches", len(matches)),
		)
		return nil, apperr.ErrAmbiguousToken
	}

	key := matches[0]
	parts := strings.Split(strings.TrimPrefix(key, s.keys.passwordResetPrefix()), ":")
	if len(parts) != 2 {
		return nil, apperr.Operation("malformed reset token key")
	}
	userID := parts[0]

	// Consume inside a guarded transaction: the re-read registers
	// conflict detection, so when two verifications race only the one
	// whose delete commits reports success. Deleting blind would let
	// both succeed, since deleting an absent key is a no-op.
	err = s.runGuarded("consume reset token", func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				return apperr.ErrTokenNotFound
			}
			return apperr.Operation("token read failed", err)
		}
		if err := txn.Delete([]byte(key)); err != nil {
			return apperr.Operation("token delete failed", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetUserByID(userID)
}

// CreateVerificationToken stores an email-verification token keyed
// directly by the token value, so verification is a single fetch.
func (s *Store) CreateVerificationToken(userID string, ttl time.Duration) (string, error) {
	if _, err := s.GetUserByID(userID); err != nil {
		return "", err
	}
	token, err := newToken()
	if err != nil {
		return "", err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(s.keys.verificationKey(token)), []byte(userID)).WithTTL(ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		return "", apperr.Operation("failed to store verification token", err)
	}
	return token, nil
}

// VerifyVerificationToken activates the account linked to an email
// verification token. Token deletion and the activation write share one
// commit, so the token cannot be consumed twice.
func (s *Store) VerifyVerificationToken(token string) (*User, error) {
	if token == "" {
		return nil, apperr.ErrTokenNotFound
	}
	tokenKey := s.keys.verificationKey(token)

	var activated *User
	err := s.runGuarded("verify email", func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(tokenKey))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return apperr.ErrTokenNotFound
		}
		if err != nil {
			return apperr.Operation("token read failed", err)
		}
		userID, err := item.ValueCopy(nil)
		if err != nil {
			return apperr.Operation("token read failed", err)
		}

		userKey := s.keys.userIDKey(string(userID))
		user, err := getInTxn[User](txn, userKey, "user")
		if err != nil {
			return err
		}
		user.Active = true

		if err := txn.Delete([]byte(tokenKey)); err != nil {
			return apperr.Operation("token delete failed", err)
		}
		if err := setInTxn(txn, userKey, user); err != nil {
			return err
		}
		activated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activated, nil
}

// ==================== index helpers ====================

func (s *Store) usernameIDs(username string) ([]string, error) {
	raw, err := s.readIndex(s.keys.usernameKey(username))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, apperr.NotFound("user")
	}
	return ids, nil
}

func (s *Store) readIndex(key string) (string, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return "", apperr.NotFound("index entry")
		}
		return "", apperr.Operation("index read failed", err)
	}
	return string(val), nil
}
