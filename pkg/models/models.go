package models

import "sort"

type Hole struct {
	Number   int      `json:"number"`
	Par      *int     `json:"par,omitempty"`
	Distance *float64 `json:"distance,omitempty"` // meters
}

type Course struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Holes []Hole `json:"holes"`
}

// HoleCount returns the number of the last hole, which is the course length
// for both hole lists and synthesized legacy counts.
func (c Course) HoleCount() int {
	max := 0
	for _, h := range c.Holes {
		if h.Number > max {
			max = h.Number
		}
	}
	return max
}

// Hole returns the hole with the given number, if the course knows it.
func (c Course) Hole(number int) (Hole, bool) {
	for _, h := range c.Holes {
		if h.Number == number {
			return h, true
		}
	}
	return Hole{}, false
}

// SortHoles orders holes by number in place.
func SortHoles(holes []Hole) {
	sort.Slice(holes, func(i, j int) bool { return holes[i].Number < holes[j].Number })
}

// SequentialHoles synthesizes holes 1..n without par or distance.
func SequentialHoles(n int) []Hole {
	holes := make([]Hole, 0, n)
	for i := 1; i <= n; i++ {
		holes = append(holes, Hole{Number: i})
	}
	return holes
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Notes string `json:"notes,omitempty"`
}

// Player is a participant embedded in a round.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	UserID string `json:"userId,omitempty"`
}

type Score struct {
	PlayerID   string `json:"playerId"`
	HoleNumber int    `json:"holeNumber"`
	Throws     int    `json:"throws"`
}

type Round struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Date       int64    `json:"date"` // epoch millis
	CourseID   string   `json:"courseId,omitempty"`
	CourseName string   `json:"courseName,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	Photos     []string `json:"photos,omitempty"`
	Players    []Player `json:"players"`
	Scores     []Score  `json:"scores"`
}

// Clone returns a copy that shares no slices with r.
func (r Round) Clone() Round {
	c := r
	if r.Photos != nil {
		c.Photos = append([]string(nil), r.Photos...)
	}
	if r.Players != nil {
		c.Players = append([]Player(nil), r.Players...)
	}
	if r.Scores != nil {
		c.Scores = append([]Score(nil), r.Scores...)
	}
	return c
}

// SetScore records throws for a player on a hole. An existing score for the
// same (player, hole) pair is replaced.
func (r *Round) SetScore(playerID string, hole, throws int) {
	for i := range r.Scores {
		if r.Scores[i].PlayerID == playerID && r.Scores[i].HoleNumber == hole {
			r.Scores[i].Throws = throws
			return
		}
	}
	r.Scores = append(r.Scores, Score{PlayerID: playerID, HoleNumber: hole, Throws: throws})
}

// Throws returns the recorded throws for a player on a hole.
func (r Round) Throws(playerID string, hole int) (int, bool) {
	for _, s := range r.Scores {
		if s.PlayerID == playerID && s.HoleNumber == hole {
			return s.Throws, true
		}
	}
	return 0, false
}

// Total sums a player's throws over all holes.
func (r Round) Total(playerID string) int {
	total := 0
	for _, s := range r.Scores {
		if s.PlayerID == playerID {
			total += s.Throws
		}
	}
	return total
}

// MaxHole returns the highest hole number that has a score.
func (r Round) MaxHole() int {
	max := 0
	for _, s := range r.Scores {
		if s.HoleNumber > max {
			max = s.HoleNumber
		}
	}
	return max
}

// Player looks a participant up by id.
func (r Round) Player(id string) (Player, bool) {
	for _, p := range r.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// WinnerIndex returns the index of the player with the lowest non-zero total.
// Ties keep the first player in round order. -1 when nobody has scored.
func (r Round) WinnerIndex() int {
	winner := -1
	best := 0
	for i, p := range r.Players {
		total := r.Total(p.ID)
		if total == 0 {
			continue
		}
		if winner == -1 || total < best {
			winner = i
			best = total
		}
	}
	return winner
}

// Settings is the single per-installation record.
type Settings struct {
	StorageID     string `json:"storageId"`
	CurrentUserID string `json:"currentUserId,omitempty"`
	DistanceUnit  string `json:"distanceUnit,omitempty"` // "m" or "ft", display only
}

type EntityType string

const (
	EntityCourse EntityType = "course"
	EntityPlayer EntityType = "player"
)

// Valid reports whether the merge registry tracks this entity type.
func (t EntityType) Valid() bool {
	return t == EntityCourse || t == EntityPlayer
}

// MergeEntry maps an entity of a foreign installation to its local copy.
type MergeEntry struct {
	StorageID  string     `json:"storageId"`
	ForeignID  string     `json:"foreignId"`
	EntityType EntityType `json:"entityType"`
	LocalID    string     `json:"localId"`
	UpdatedAt  int64      `json:"updatedAt"`
}
