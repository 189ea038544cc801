package domain

// Namespace partitions every persisted collection. It is the signed-in
// user's id, or Anonymous when nobody is signed in.
type Namespace string

const Anonymous Namespace = "anon"

func (n Namespace) String() string {
	return string(n)
}

// Kind names a collection stored per namespace.
type Kind string

const (
	KindEvents Kind = "events"
	KindChats  Kind = "chats"
)
