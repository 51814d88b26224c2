package database

import "fmt"

var seedTopics = []string{
	"What went well",
	"What didn't go well",
	"What can we improve",
	"Kudos/thanks",
}

// Seed fills an empty store with a demo board: two rooms, the four retro
// topics in the first room and one comment. A store that already holds rooms
// is left untouched.
func Seed(repo Repository) error {
	rooms, err := repo.ListRooms()
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	if len(rooms) > 0 {
		return nil
	}

	room, err := repo.InsertRoom("test room")
	if err != nil {
		return err
	}
	if _, err := repo.InsertRoom("second room"); err != nil {
		return err
	}

	var first Topic
	for i, name := range seedTopics {
		t, err := repo.InsertTopic(room.Id, name)
		if err != nil {
			return err
		}
		if i == 0 {
			first = t
		}
	}

	c, err := repo.InsertComment(first.Id)
	if err != nil {
		return err
	}
	value := "hello"
	_, err = repo.UpdateComment(c.Id, CommentPatch{Value: &value})
	return err
}
