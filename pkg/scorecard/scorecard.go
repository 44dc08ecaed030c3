// Package scorecard reads course layouts from published HTML scorecards.
package scorecard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/store"
	"github.com/timoknapp/gulfer/pkg/util"
)

var (
	ErrNoHoles = errors.New("scorecard has no hole table")
	ErrNoName  = errors.New("scorecard has no course name")
)

const feetToMeters = 0.3048

type Scorecard struct {
	Name  string
	Holes []models.Hole
}

type columns struct {
	hole, par, distance int
	feet                bool
}

// Parse reads the first table that has a hole column. Tables may list one
// hole per row, or one row each for holes, pars and distances.
func Parse(r io.Reader) (Scorecard, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Scorecard{}, fmt.Errorf("failed to parse HTML document: %w", err)
	}

	sc := Scorecard{Name: util.RemoveFormatFromString(doc.Find("h1").First().Text())}
	if sc.Name == "" {
		sc.Name = util.RemoveFormatFromString(doc.Find("title").First().Text())
	}

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		holes, err := readTable(table)
		if err != nil {
			logger.Debug("Skipping scorecard table: %v", err)
			return true
		}
		if len(holes) > 0 {
			sc.Holes = holes
			return false
		}
		return true
	})

	if len(sc.Holes) == 0 {
		return Scorecard{}, ErrNoHoles
	}
	return sc, nil
}

func cellTexts(row *goquery.Selection) []string {
	var cells []string
	row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, util.RemoveFormatFromString(cell.Text()))
	})
	return cells
}

func readTable(table *goquery.Selection) ([]models.Hole, error) {
	var rows [][]string
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if cells := cellTexts(row); len(util.DeleteEmpty(cells)) > 0 {
			rows = append(rows, cells)
		}
	})
	if len(rows) < 2 {
		return nil, nil
	}
	if label := strings.ToLower(rows[0][0]); strings.HasPrefix(label, "hole") && len(rows[0]) > 2 {
		if _, err := strconv.Atoi(rows[0][1]); err == nil {
			return readHorizontal(rows)
		}
	}
	cols, ok := headerColumns(rows[0])
	if !ok {
		return nil, nil
	}
	return readVertical(rows[1:], cols)
}

func headerColumns(header []string) (columns, bool) {
	cols := columns{hole: -1, par: -1, distance: -1}
	for i, h := range header {
		h = strings.ToLower(h)
		switch {
		case strings.HasPrefix(h, "hole") || h == "#":
			cols.hole = i
		case strings.HasPrefix(h, "par"):
			cols.par = i
		case strings.Contains(h, "distance") || strings.Contains(h, "length"):
			cols.distance = i
			cols.feet = strings.Contains(h, "ft") || strings.Contains(h, "feet")
		}
	}
	return cols, cols.hole >= 0
}

func cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}

// readVertical reads one hole per row. Rows without a hole number, such as
// totals, are skipped.
func readVertical(rows [][]string, cols columns) ([]models.Hole, error) {
	var holes []models.Hole
	for _, row := range rows {
		n, err := strconv.Atoi(cell(row, cols.hole))
		if err != nil {
			continue
		}
		h, err := buildHole(n, cell(row, cols.par), cell(row, cols.distance), cols.feet)
		if err != nil {
			return nil, err
		}
		holes = append(holes, h)
	}
	return holes, nil
}

// readHorizontal reads "Hole | 1 | 2 ..." with "Par" and distance rows below.
func readHorizontal(rows [][]string) ([]models.Hole, error) {
	var pars, dists []string
	feet := false
	for _, row := range rows[1:] {
		label := strings.ToLower(row[0])
		switch {
		case strings.HasPrefix(label, "par"):
			pars = row
		case strings.Contains(label, "distance") || strings.Contains(label, "length"):
			dists = row
			feet = strings.Contains(label, "ft") || strings.Contains(label, "feet")
		}
	}
	var holes []models.Hole
	for i := 1; i < len(rows[0]); i++ {
		n, err := strconv.Atoi(rows[0][i])
		if err != nil {
			continue
		}
		h, err := buildHole(n, cell(pars, i), cell(dists, i), feet)
		if err != nil {
			return nil, err
		}
		holes = append(holes, h)
	}
	return holes, nil
}

func buildHole(n int, par, distance string, feet bool) (models.Hole, error) {
	h := models.Hole{Number: n}
	if par != "" && par != "-" {
		p, err := strconv.Atoi(par)
		if err != nil {
			return models.Hole{}, fmt.Errorf("hole %d: invalid par %q", n, par)
		}
		h.Par = &p
	}
	if d, ok, err := parseDistance(distance, feet); err != nil {
		return models.Hole{}, fmt.Errorf("hole %d: %w", n, err)
	} else if ok {
		h.Distance = &d
	}
	return h, nil
}

// parseDistance returns meters. A unit on the value wins over the column unit.
func parseDistance(s string, feet bool) (float64, bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "-" {
		return 0, false, nil
	}
	switch {
	case strings.HasSuffix(s, "ft"):
		s, feet = strings.TrimSuffix(s, "ft"), true
	case strings.HasSuffix(s, "m"):
		s, feet = strings.TrimSuffix(s, "m"), false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid distance %q", s)
	}
	if feet {
		v = math.Round(v*feetToMeters*10) / 10
	}
	return v, true, nil
}

// Importer turns scorecards into stored courses.
type Importer struct {
	Courses *store.CourseStore
}

// Import saves the scorecard as a new course. name overrides the scorecard
// title when set. A taken name is reported as store.ErrNameTaken.
func (imp *Importer) Import(ctx context.Context, r io.Reader, name string) (models.Course, error) {
	sc, err := Parse(r)
	if err != nil {
		return models.Course{}, err
	}
	if n := util.TrimName(name); n != "" {
		sc.Name = n
	}
	if sc.Name == "" {
		return models.Course{}, ErrNoName
	}
	course, err := imp.Courses.Save(ctx, models.Course{Name: sc.Name, Holes: sc.Holes})
	if err != nil {
		return models.Course{}, err
	}
	logger.Info("Imported scorecard for %s with %d holes", course.Name, len(course.Holes))
	return course, nil
}
