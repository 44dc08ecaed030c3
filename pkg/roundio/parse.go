package roundio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/timoknapp/gulfer/pkg/util"
)

// Parse reads an export block. Unknown lines are ignored so newer exports
// stay readable. Round title and timestamp are required.
func Parse(text string) (*ParsedRound, error) {
	lines := strings.Split(util.NormalizeLineBreaks(text), "\n")
	p := &ParsedRound{}
	var haveTitle, haveTimestamp bool

	for i := 0; i < len(lines); {
		lineNo := i + 1
		line := strings.TrimSpace(lines[i])
		i++

		switch {
		case line == "" || isBanner(line):
		case strings.HasPrefix(line, prefixVersion):
			p.Version = value(line, prefixVersion)
		case strings.HasPrefix(line, prefixStorageID):
			p.StorageID = value(line, prefixStorageID)
		case strings.HasPrefix(line, prefixRoundID):
			p.RoundID = value(line, prefixRoundID)
		case strings.HasPrefix(line, prefixRound):
			p.Title = value(line, prefixRound)
			haveTitle = p.Title != ""
		case strings.HasPrefix(line, prefixDate):
			p.Date = value(line, prefixDate)
		case strings.HasPrefix(line, prefixTimestamp):
			ts, err := strconv.ParseInt(value(line, prefixTimestamp), 10, 64)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("invalid timestamp %q", value(line, prefixTimestamp))}
			}
			p.Timestamp = ts
			haveTimestamp = true
		case strings.HasPrefix(line, prefixHolesData):
			next, err := parseBlock(lines, i, p.holeDataLine)
			if err != nil {
				return nil, err
			}
			i = next
		case strings.HasPrefix(line, prefixCourseHoles):
			n, err := strconv.Atoi(value(line, prefixCourseHoles))
			if err != nil || n < 0 {
				return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("invalid hole count %q", value(line, prefixCourseHoles))}
			}
			p.CourseHoles = n
		case strings.HasPrefix(line, prefixCourseID):
			p.CourseID = value(line, prefixCourseID)
		case strings.HasPrefix(line, prefixCourse):
			p.CourseName = value(line, prefixCourse)
		case strings.HasPrefix(line, prefixPlayers):
			next, err := parseBlock(lines, i, p.playerLine)
			if err != nil {
				return nil, err
			}
			i = next
		case strings.HasPrefix(line, prefixScores):
			next, err := parseBlock(lines, i, p.scoreLine)
			if err != nil {
				return nil, err
			}
			i = next
		case strings.HasPrefix(line, prefixNotes):
			p.Notes = value(line, prefixNotes)
		}
	}

	if !haveTitle {
		return nil, &ParseError{Msg: "missing \"Round:\" title"}
	}
	if !haveTimestamp {
		return nil, &ParseError{Msg: "missing \"Timestamp:\""}
	}
	return p, nil
}

func isBanner(line string) bool {
	return strings.HasPrefix(line, "===") && strings.HasSuffix(line, "===")
}

func value(line, prefix string) string {
	return strings.TrimSpace(line[len(prefix):])
}

// parseBlock feeds contiguous lines starting at start to accept until a blank
// line or a line accept declines. It returns the index of the first line not
// consumed.
func parseBlock(lines []string, start int, accept func(line string, lineNo int) (bool, error)) (int, error) {
	for j := start; j < len(lines); j++ {
		line := strings.TrimSpace(lines[j])
		if line == "" {
			return j, nil
		}
		ok, err := accept(line, j+1)
		if err != nil {
			return 0, err
		}
		if !ok {
			return j, nil
		}
	}
	return len(lines), nil
}

// holeNumber splits "Hole N<rest>" into N and rest.
func holeNumber(line string, lineNo int) (int, string, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "Hole"))
	end := strings.IndexAny(rest, " (:")
	if end < 0 {
		end = len(rest)
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil || n < 1 {
		return 0, "", &ParseError{Line: lineNo, Msg: fmt.Sprintf("invalid hole number %q", rest[:end])}
	}
	return n, strings.TrimSpace(rest[end:]), nil
}

func isHoleLine(line string) bool {
	return strings.HasPrefix(line, "Hole ")
}

// holeDataLine reads "Hole N: Par P Distance Dm".
func (p *ParsedRound) holeDataLine(line string, lineNo int) (bool, error) {
	if !isHoleLine(line) {
		return false, nil
	}
	n, rest, err := holeNumber(line, lineNo)
	if err != nil {
		return false, err
	}
	rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
	hole := ParsedHole{Number: n}
	fields := strings.Fields(rest)
	for k := 0; k+1 < len(fields); k += 2 {
		switch strings.ToLower(fields[k]) {
		case "par":
			par, err := parsePar(fields[k+1], lineNo)
			if err != nil {
				return false, err
			}
			hole.Par = par
		case "distance":
			d, err := parseDistance(fields[k+1], lineNo)
			if err != nil {
				return false, err
			}
			hole.Distance = d
		}
	}
	p.Holes = append(p.Holes, hole)
	return true, nil
}

func parsePar(s string, lineNo int) (*int, error) {
	s = strings.TrimSpace(s)
	if s == unknown || s == "" {
		return nil, nil
	}
	par, err := strconv.Atoi(s)
	if err != nil || par < 1 {
		return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("invalid par %q", s)}
	}
	return &par, nil
}

func parseDistance(s string, lineNo int) (*float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "m")
	if s == unknown || s == "" {
		return nil, nil
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d < 0 {
		return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("invalid distance %q", s)}
	}
	return &d, nil
}

// playerLine reads "- Name: X | ID: Y | Total: Z (Winner)". Older exports
// carry no ID field.
func (p *ParsedRound) playerLine(line string, lineNo int) (bool, error) {
	if !strings.HasPrefix(line, "-") {
		return false, nil
	}
	player := ParsedPlayer{Line: lineNo}
	for k, seg := range strings.Split(strings.TrimSpace(line[1:]), "|") {
		seg = strings.TrimSpace(seg)
		if strings.HasSuffix(seg, winnerMark) {
			player.Winner = true
			seg = strings.TrimSpace(strings.TrimSuffix(seg, winnerMark))
		}
		switch {
		case strings.HasPrefix(seg, "Name:"):
			player.Name = value(seg, "Name:")
		case strings.HasPrefix(seg, "ID:"):
			player.ID = value(seg, "ID:")
		case strings.HasPrefix(seg, "Total:"):
			total, err := strconv.Atoi(value(seg, "Total:"))
			if err != nil {
				return false, &ParseError{Line: lineNo, Msg: fmt.Sprintf("invalid total %q", value(seg, "Total:"))}
			}
			player.Total = total
		case k == 0:
			player.Name = seg
		}
	}
	if player.Name == "" {
		return false, &ParseError{Line: lineNo, Msg: "player without name"}
	}
	if prev, dup := p.Player(player.Name); dup {
		return false, &ParseError{Line: lineNo, Msg: fmt.Sprintf("duplicate player %q (first on line %d)", player.Name, prev.Line)}
	}
	p.Players = append(p.Players, player)
	return true, nil
}

// scoreLine reads "Hole N (Par P, Dm): name:throws name:throws".
func (p *ParsedRound) scoreLine(line string, lineNo int) (bool, error) {
	if !isHoleLine(line) {
		return false, nil
	}
	n, rest, err := holeNumber(line, lineNo)
	if err != nil {
		return false, err
	}
	if strings.HasPrefix(rest, "(") {
		end := strings.Index(rest, ")")
		if end < 0 {
			return false, &ParseError{Line: lineNo, Msg: "unclosed hole annotation"}
		}
		hole, err := holeAnnotation(n, rest[1:end], lineNo)
		if err != nil {
			return false, err
		}
		if hole.Par != nil || hole.Distance != nil {
			p.ScoreHoles = append(p.ScoreHoles, hole)
		}
		rest = strings.TrimSpace(rest[end+1:])
	}
	if !strings.HasPrefix(rest, ":") {
		return false, &ParseError{Line: lineNo, Msg: fmt.Sprintf("expected ':' after hole %d", n)}
	}
	pairs, err := scorePairs(rest[1:], lineNo)
	if err != nil {
		return false, err
	}
	for _, pr := range pairs {
		p.Scores = append(p.Scores, ParsedScore{Hole: n, Player: pr.name, Throws: pr.throws, Line: lineNo})
	}
	return true, nil
}

// holeAnnotation reads "Par P, Dm" where either part may be "?".
func holeAnnotation(n int, s string, lineNo int) (ParsedHole, error) {
	hole := ParsedHole{Number: n}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		var err error
		if strings.HasPrefix(part, "Par") {
			hole.Par, err = parsePar(strings.TrimPrefix(part, "Par"), lineNo)
		} else {
			hole.Distance, err = parseDistance(part, lineNo)
		}
		if err != nil {
			return ParsedHole{}, err
		}
	}
	return hole, nil
}

type scorePair struct {
	name   string
	throws int
}

// scorePairs splits "Alice Smith:3 Bob:4". Names may contain spaces; the
// throw count ends at the next whitespace.
func scorePairs(s string, lineNo int) ([]scorePair, error) {
	var pairs []scorePair
	rest := strings.TrimSpace(s)
	for rest != "" {
		colon := strings.Index(rest, ":")
		if colon < 0 {
			return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("malformed score %q", rest)}
		}
		name := strings.TrimSpace(rest[:colon])
		rest = rest[colon+1:]
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			end = len(rest)
		}
		token := rest[:end]
		rest = strings.TrimSpace(rest[end:])
		if name == "" {
			return nil, &ParseError{Line: lineNo, Msg: "score without player name"}
		}
		throws, err := strconv.Atoi(token)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("invalid throw count %q for %s", token, name)}
		}
		if throws < 0 {
			return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("negative throw count %d for %s", throws, name)}
		}
		pairs = append(pairs, scorePair{name: name, throws: throws})
	}
	return pairs, nil
}
