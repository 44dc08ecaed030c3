// Package profile aggregates a user's rounds into summary statistics.
package profile

import (
	"sort"

	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/util"
)

type CourseBest struct {
	CourseID   string `json:"courseId,omitempty"`
	CourseName string `json:"courseName"`
	Rounds     int    `json:"rounds"`
	Best       int    `json:"best"`
}

type Stats struct {
	UserID       string       `json:"userId"`
	RoundsPlayed int          `json:"roundsPlayed"`
	RoundsWon    int          `json:"roundsWon"`
	BestTotal    int          `json:"bestTotal"`
	AverageTotal float64      `json:"averageTotal"`
	TotalThrows  int          `json:"totalThrows"`
	HolesPlayed  int          `json:"holesPlayed"`
	Aces         int          `json:"aces"`
	Courses      []CourseBest `json:"courses"`
}

// playerIndex finds the user among the round's players, either as the
// linked user or as the player id itself.
func playerIndex(r models.Round, userID string) int {
	for i, p := range r.Players {
		if p.UserID == userID || (p.UserID == "" && p.ID == userID) {
			return i
		}
	}
	return -1
}

// Compute summarizes the rounds the user took part in. Rounds without any
// throws count as played but are left out of best and average totals.
func Compute(rounds []models.Round, userID string) Stats {
	st := Stats{UserID: userID, Courses: []CourseBest{}}
	courses := map[string]*CourseBest{}
	scored := 0

	for _, r := range rounds {
		idx := playerIndex(r, userID)
		if idx < 0 {
			continue
		}
		st.RoundsPlayed++
		if r.WinnerIndex() == idx {
			st.RoundsWon++
		}

		playerID := r.Players[idx].ID
		total := r.Total(playerID)
		for _, s := range r.Scores {
			if s.PlayerID != playerID || s.Throws == 0 {
				continue
			}
			st.HolesPlayed++
			if s.Throws == 1 {
				st.Aces++
			}
		}
		if total == 0 {
			continue
		}
		scored++
		st.TotalThrows += total
		if st.BestTotal == 0 || total < st.BestTotal {
			st.BestTotal = total
		}

		name := util.TrimName(r.CourseName)
		key := r.CourseID
		if key == "" {
			key = "name:" + name
		}
		if key == "name:" {
			continue
		}
		cb, ok := courses[key]
		if !ok {
			cb = &CourseBest{CourseID: r.CourseID, CourseName: name}
			courses[key] = cb
		}
		cb.Rounds++
		if cb.Best == 0 || total < cb.Best {
			cb.Best = total
		}
	}

	if scored > 0 {
		st.AverageTotal = float64(st.TotalThrows) / float64(scored)
	}
	for _, cb := range courses {
		st.Courses = append(st.Courses, *cb)
	}
	sort.Slice(st.Courses, func(i, j int) bool {
		if st.Courses[i].CourseName != st.Courses[j].CourseName {
			return st.Courses[i].CourseName < st.Courses[j].CourseName
		}
		return st.Courses[i].CourseID < st.Courses[j].CourseID
	})
	return st
}
