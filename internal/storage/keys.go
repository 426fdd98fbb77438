package storage

import "strings"

// Entity type segments used in record keys.
const (
	typeMedicine      = "medicine"
	typeSchedule      = "schedule"
	typeDosageHistory = "dosagehistory"
)

// keyspace builds every key the store reads or writes. All keys are
// namespaced by application and environment, so two environments sharing
// a data directory can never collide. Key construction is deterministic
// and injective per (type, owner, id) triple; emails are case-folded.
type keyspace struct {
	namespace   string
	environment string
}

func (k keyspace) root() string {
	return k.namespace + ":" + k.environment
}

// entityKey addresses a single owned record:
// <ns>:<env>:user:<ownerID>:<entityType>:<entityID>
func (k keyspace) entityKey(ownerID, entityType, id string) string {
	return k.root() + ":user:" + ownerID + ":" + entityType + ":" + id
}

// entityPrefix is the scan prefix covering all of an owner's records of
// one entity type.
func (k keyspace) entityPrefix(ownerID, entityType string) string {
	return k.root() + ":user:" + ownerID + ":" + entityType + ":"
}

// userIDKey addresses the canonical user record.
func (k keyspace) userIDKey(id string) string {
	return k.root() + ":user:id:" + id
}

// userIDPrefix is the scan prefix covering every canonical user record.
func (k keyspace) userIDPrefix() string {
	return k.root() + ":user:id:"
}

// usernameKey addresses the username index. Its value is a raw user id,
// or a comma-joined list of ids when the same username was registered
// more than once.
func (k keyspace) usernameKey(username string) string {
	return k.root() + ":user:username:" + username
}

// emailKey addresses the email index. Its value is the raw user id.
func (k keyspace) emailKey(email string) string {
	return k.root() + ":user:email:" + strings.ToLower(email)
}

// passwordResetKey embeds the owning user id ahead of the token, which
// is why verification has to scan; see Store.VerifyPasswordResetToken.
func (k keyspace) passwordResetKey(userID, token string) string {
	return k.root() + ":password_reset:" + userID + ":" + token
}

func (k keyspace) passwordResetPrefix() string {
	return k.root() + ":password_reset:"
}

func (k keyspace) passwordResetUserPrefix(userID string) string {
	return k.root() + ":password_reset:" + userID + ":"
}

// verificationKey is keyed directly by the token, so lookup is O(1).
func (k keyspace) verificationKey(token string) string {
	return k.root() + ":verification:token:" + token
}
