package dataset

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// canonical column names and the source headers accepted for each.
var columnAliases = map[string][]string{
	"time":   {"time", "time_rounded", "timestamp"},
	"unix":   {"unix", "unix_time", "unixtime"},
	"scale":  {"scale", "scale_id"},
	"site":   {"site", "site_id"},
	"weight": {"weight", "weight_norm", "weight_normalized"},
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Load reads a delimited file of hive-scale readings and returns the
// validated observation table. Header validation aggregates every
// missing column into a single error so a malformed export is reported
// in one shot; any later failure (bad cell, nesting violation,
// inconsistent time ordering) is fatal as well.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}

	cols, err := mapHeader(records[0])
	if err != nil {
		return nil, err
	}
	rows := records[1:]
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}

	t := &Table{
		Times:  make([]time.Time, 0, len(rows)),
		Unix:   make([]float64, 0, len(rows)),
		Weight: make([]float64, 0, len(rows)),
	}
	scales := make([]string, 0, len(rows))
	sites := make([]string, 0, len(rows))

	for i, rec := range rows {
		line := i + 2 // 1-based, after header

		ts, err := parseTime(rec[cols["time"]])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d time %q", ErrBadValue, line, rec[cols["time"]])
		}
		unix, err := parseFloat(rec[cols["unix"]])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d unix %q", ErrBadValue, line, rec[cols["unix"]])
		}
		weight, err := parseFloat(rec[cols["weight"]])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d weight %q", ErrBadValue, line, rec[cols["weight"]])
		}

		t.Times = append(t.Times, ts)
		t.Unix = append(t.Unix, unix)
		t.Weight = append(t.Weight, weight)
		scales = append(scales, rec[cols["scale"]])
		sites = append(sites, rec[cols["site"]])
	}

	t.Scales, t.ScaleID = levelSet(scales)
	t.Sites, t.SiteID = levelSet(sites)

	if err := checkNesting(t); err != nil {
		return nil, err
	}
	if err := checkTimeOrder(t); err != nil {
		return nil, err
	}

	slog.Debug("dataset loaded",
		"path", path,
		"rows", t.Len(),
		"scales", len(t.Scales),
		"sites", len(t.Sites),
	)
	return t, nil
}

// mapHeader resolves canonical column names against the file header,
// collecting every miss before failing.
func mapHeader(header []string) (map[string]int, error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}

	cols := make(map[string]int, len(columnAliases))
	var merr *multierror.Error
	for canonical, aliases := range columnAliases {
		found := false
		for _, a := range aliases {
			if i, ok := byName[a]; ok {
				cols[canonical] = i
				found = true
				break
			}
		}
		if !found {
			merr = multierror.Append(merr, fmt.Errorf("%w: %s (accepted: %s)",
				ErrMissingColumn, canonical, strings.Join(aliases, ", ")))
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cols, nil
}

// checkNesting verifies each scale belongs to exactly one site and
// fills Table.SiteOfScale.
func checkNesting(t *Table) error {
	siteOf := make([]int, len(t.Scales))
	for i := range siteOf {
		siteOf[i] = -1
	}
	for i := range t.ScaleID {
		sc, si := t.ScaleID[i], t.SiteID[i]
		switch siteOf[sc] {
		case -1:
			siteOf[sc] = si
		case si:
		default:
			return fmt.Errorf("%w: scale %s appears under %s and %s",
				ErrNesting, t.Scales[sc], t.Sites[siteOf[sc]], t.Sites[si])
		}
	}
	t.SiteOfScale = siteOf
	return nil
}

// checkTimeOrder verifies the numeric covariate orders the rows the
// same way the calendar timestamp does.
func checkTimeOrder(t *Table) error {
	order := make([]int, t.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return t.Times[order[a]].Before(t.Times[order[b]])
	})
	for k := 1; k < len(order); k++ {
		i, j := order[k-1], order[k]
		if t.Times[i].Before(t.Times[j]) && t.Unix[i] > t.Unix[j] {
			return fmt.Errorf("%w: %s vs %s", ErrTimeOrder,
				t.Times[i].Format(time.RFC3339), t.Times[j].Format(time.RFC3339))
		}
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}
