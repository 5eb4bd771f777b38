package cache

import (
	"github.com/google/uuid"

	"github.com/goliatone/go-stmt-cache/internal/cacheinfra"
)

// OpPrepareStatement is the operation name recorded for statements prepared
// through a connection's Prepare/PrepareContext.
const OpPrepareStatement = "prepareStatement"

// ConnID identifies one physical connection instance. A reconnect to the same
// server gets a new ConnID.
type ConnID uuid.UUID

// NewConnID returns a random connection identity.
func NewConnID() ConnID {
	return ConnID(uuid.New())
}

// String returns the canonical uuid form.
func (id ConnID) String() string {
	return uuid.UUID(id).String()
}

// Key identifies one statement-preparing call on one connection: the owning
// connection, the operation name and a canonical snapshot of the arguments.
// Key is comparable; equal keys share a cache slot.
type Key struct {
	conn ConnID
	op   string
	args string
}

// NewKey builds a Key using the default argument serializer.
func NewKey(conn ConnID, op string, args ...any) Key {
	return NewKeyWith(defaultSerializer, conn, op, args...)
}

// NewKeyWith builds a Key with a custom argument serializer.
func NewKeyWith(s ArgsSerializer, conn ConnID, op string, args ...any) Key {
	return Key{
		conn: conn,
		op:   op,
		args: s.SerializeArgs(args...),
	}
}

// PrepareKey is shorthand for the key of conn.Prepare(query).
func PrepareKey(conn ConnID, query string) Key {
	return NewKey(conn, OpPrepareStatement, query)
}

// Conn returns the owning connection.
func (k Key) Conn() ConnID { return k.conn }

// Op returns the invoked operation name.
func (k Key) Op() string { return k.op }

// Args returns the serialized argument snapshot.
func (k Key) Args() string { return k.args }

// Equal reports whether k and other name the same call on the same connection.
func (k Key) Equal(other Key) bool {
	return k == other
}

// Hash returns a stable xxhash64 of the key.
func (k Key) Hash() uint64 {
	return cacheinfra.HashParts(k.conn, k.op, k.args)
}

func (k Key) hashSeeded(seed uint64) uint64 {
	return cacheinfra.HashPartsSeeded(seed, k.conn, k.op, k.args)
}

func (k Key) String() string {
	return k.conn.String() + KeySeparator + k.op + KeySeparator + k.args
}
