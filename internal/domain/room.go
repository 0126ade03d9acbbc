package domain

type (
	RoomName string
	RoomID   string
)

// Room is what the session layer joins; the routing core only sees its members.
type Room struct {
	ID   RoomID
	Name RoomName
}
