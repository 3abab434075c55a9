package game

// Conn is a live client connection as the protocol layer sees it.
type Conn interface {
	ConnectionID() string
	UserID() int
	Send(text string) error
}

// ConnRegistry resolves live connections by connection id or by user id.
// Returns nil when no such connection exists.
type ConnRegistry interface {
	GetConnectionByID(id string) Conn
	GetConnectionByUserID(userID int) Conn
}
