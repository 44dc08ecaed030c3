// Package roundio exports rounds as a plain text block and imports such
// blocks back, resolving courses and players through the merge registry.
//
// The text looks like:
//
//	=== GULFER ROUND EXPORT ===
//	Version: 2.0
//	Storage ID: <uuid>
//	Round ID: <uuid>
//
//	Round: <title>
//	Date: <human readable>
//	Timestamp: <epoch millis>
//	Course: <name>
//	Course ID: <uuid>
//	Course Holes: <int>
//
//	Course Holes Data:
//	  Hole 1: Par 3 Distance 85m
//
//	Players:
//	  - Name: <name> | ID: <uuid> | Total: <int> (Winner)
//
//	Scores:
//	  Hole 1 (Par 3, 85m): Alice:3 Bob:4
//
//	Notes: <free text>
package roundio

import (
	"strconv"
	"strings"
)

const (
	Banner        = "=== GULFER ROUND EXPORT ==="
	FormatVersion = "2.0"
	DateLayout    = "Mon, 02 Jan 2006 15:04 MST"

	prefixVersion     = "Version:"
	prefixStorageID   = "Storage ID:"
	prefixRoundID     = "Round ID:"
	prefixRound       = "Round:"
	prefixDate        = "Date:"
	prefixTimestamp   = "Timestamp:"
	prefixCourseID    = "Course ID:"
	prefixCourseHoles = "Course Holes:"
	prefixCourse      = "Course:"
	prefixHolesData   = "Course Holes Data:"
	prefixPlayers     = "Players:"
	prefixScores      = "Scores:"
	prefixNotes       = "Notes:"

	winnerMark = "(Winner)"
	unknown    = "?"
)

// ParsedRound is the typed content of an export block.
type ParsedRound struct {
	Version     string
	StorageID   string
	RoundID     string
	Title       string
	Date        string
	Timestamp   int64
	CourseName  string
	CourseID    string
	CourseHoles int
	Holes       []ParsedHole
	// ScoreHoles carries the par and distance annotations of score lines.
	ScoreHoles  []ParsedHole
	Players     []ParsedPlayer
	Scores      []ParsedScore
	Notes       string
}

type ParsedHole struct {
	Number   int
	Par      *int
	Distance *float64
}

type ParsedPlayer struct {
	Name   string
	ID     string
	Total  int
	Winner bool
	Line   int
}

// ParsedScore is one player's throws on one hole.
type ParsedScore struct {
	Hole   int
	Player string
	Throws int
	Line   int
}

// Player returns the parsed player with the trimmed name.
func (p *ParsedRound) Player(name string) (ParsedPlayer, bool) {
	name = strings.TrimSpace(name)
	for _, pl := range p.Players {
		if pl.Name == name {
			return pl, true
		}
	}
	return ParsedPlayer{}, false
}

// CheckScores fails on the first score naming a player missing from the
// Players block.
func (p *ParsedRound) CheckScores() error {
	for _, s := range p.Scores {
		if _, ok := p.Player(s.Player); !ok {
			return &ResolutionError{Entity: "player", Name: s.Player, Line: s.Line}
		}
	}
	return nil
}

// Total sums the parsed throws of a player.
func (p *ParsedRound) Total(name string) int {
	total := 0
	for _, s := range p.Scores {
		if s.Player == name {
			total += s.Throws
		}
	}
	return total
}

// MaxHole is the highest hole number with a score.
func (p *ParsedRound) MaxHole() int {
	max := 0
	for _, s := range p.Scores {
		if s.Hole > max {
			max = s.Hole
		}
	}
	return max
}

func formatDistance(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64) + "m"
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\u00a0", " ")

// singleLine keeps free text on its header line.
func singleLine(s string) string {
	return strings.TrimSpace(lineBreaks.Replace(s))
}
