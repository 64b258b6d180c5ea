package fetcher

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/ingest"
)

// headerScanRows is how far down a sheet the header row is searched for.
const headerScanRows = 10

const nameHeader = "候選人姓名"

type resultColumns struct {
	name, gender, birth, party, votes, share, elected int
}

func locateColumns(header []string) resultColumns {
	c := resultColumns{-1, -1, -1, -1, -1, -1, -1}
	set := func(dst *int, i int) {
		if *dst < 0 {
			*dst = i
		}
	}
	for i, h := range header {
		h = strings.TrimSpace(h)
		switch {
		case strings.Contains(h, nameHeader):
			set(&c.name, i)
		case strings.Contains(h, "性別"):
			set(&c.gender, i)
		case strings.Contains(h, "出生"):
			set(&c.birth, i)
		case strings.Contains(h, "政黨"):
			set(&c.party, i)
		case strings.Contains(h, "得票率"):
			set(&c.share, i)
		case strings.Contains(h, "得票"):
			set(&c.votes, i)
		case strings.Contains(h, "當選"):
			set(&c.elected, i)
		}
	}
	return c
}

// ReadElectionResults parses an official results workbook. Every sheet is
// one region, named after it; sheets without a 候選人姓名 header are
// skipped.
func ReadElectionResults(path string) ([]ingest.ResultRow, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: open results workbook")
	}

	var out []ingest.ResultRow
	for _, sheet := range f.Sheets {
		region := strings.TrimSpace(sheet.Name)
		headerAt := -1
		for i := 0; i < len(sheet.Rows) && i < headerScanRows; i++ {
			if rowContains(sheet.Rows[i], nameHeader) {
				headerAt = i
				break
			}
		}
		if headerAt < 0 {
			zap.L().Warn("fetcher: no header row in sheet", zap.String("sheet", sheet.Name))
			continue
		}

		cols := locateColumns(rowToStrings(sheet.Rows[headerAt]))
		for _, row := range sheet.Rows[headerAt+1:] {
			cells := rowToStrings(row)
			name := cell(cells, cols.name)
			if name == "" {
				continue
			}
			r := ingest.ResultRow{
				Name:    name,
				Region:  region,
				Party:   cell(cells, cols.party),
				Gender:  cell(cells, cols.gender),
				Elected: isElected(cell(cells, cols.elected)),
			}
			if y, ok := ParseBirthYear(cell(cells, cols.birth)); ok {
				r.BirthYear = &y
			}
			if v, ok := parseVotes(cell(cells, cols.votes)); ok {
				r.Votes = &v
			}
			r.VoteShare = parseShare(cell(cells, cols.share))
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, eris.Errorf("fetcher: no candidate rows in %s", path)
	}
	return out, nil
}

var leadingYear = regexp.MustCompile(`^\s*(\d{2,4})`)

// ParseBirthYear reads the year from a date cell such as "045/03/12" or
// "1956-03-12". Years below 1000 are ROC years.
func ParseBirthYear(s string) (int, bool) {
	m := leadingYear.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	if y < 1000 {
		y += 1911
	}
	return y, true
}

func parseVotes(s string) (int, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

func parseShare(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func isElected(s string) bool {
	switch strings.TrimSpace(s) {
	case "是", "*", "當選", "◎":
		return true
	}
	return false
}

func rowContains(row *xlsx.Row, needle string) bool {
	for _, c := range row.Cells {
		if strings.Contains(c.String(), needle) {
			return true
		}
	}
	return false
}

func cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, c := range row.Cells {
		cells[j] = c.String()
	}
	return cells
}
