package database

// Rows are stored flat; parents are referenced by id only.

type Room struct {
	Id    int
	Title string
}

type Topic struct {
	Id     int
	Name   string
	RoomId int
}

type Comment struct {
	Id      int
	Exposed bool
	Value   string
	Votes   int
	TopicId int
}

// CommentPatch lists the comment fields to change. Nil fields are left as is.
type CommentPatch struct {
	Value   *string
	Exposed *bool
	Votes   *int
}

func (p CommentPatch) apply(c Comment) Comment {
	if p.Value != nil {
		c.Value = *p.Value
	}
	if p.Exposed != nil {
		c.Exposed = *p.Exposed
	}
	if p.Votes != nil {
		c.Votes = *p.Votes
	}
	return c
}
