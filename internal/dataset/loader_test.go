package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	tbl, err := Load(filepath.Join("testdata", "hive_scale.csv"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if tbl.Len() != 12 {
		t.Errorf("expected 12 rows, got %d", tbl.Len())
	}
	if len(tbl.Scales) != 4 {
		t.Errorf("expected 4 scale levels, got %d", len(tbl.Scales))
	}
	if len(tbl.Sites) != 3 {
		t.Errorf("expected 3 site levels, got %d", len(tbl.Sites))
	}

	// Levels are sorted for stable coding.
	want := []string{"sc_007", "sc_014", "sc_021", "sc_033"}
	if !reflect.DeepEqual(tbl.Scales, want) {
		t.Errorf("scale levels %v, want %v", tbl.Scales, want)
	}
}

func TestLoadIdempotent(t *testing.T) {
	path := filepath.Join("testdata", "hive_scale.csv")
	a, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("loading the same file twice produced different tables")
	}
}

func TestNestingInvariant(t *testing.T) {
	tbl, err := Load(filepath.Join("testdata", "hive_scale.csv"))
	if err != nil {
		t.Fatal(err)
	}
	for i := range tbl.ScaleID {
		if tbl.SiteOfScale[tbl.ScaleID[i]] != tbl.SiteID[i] {
			t.Fatalf("row %d: scale %s maps to conflicting sites", i, tbl.Scales[tbl.ScaleID[i]])
		}
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{
			"missing columns",
			"time_rounded,weight_norm\n2024-05-01 00:00:00,0.1\n",
			ErrMissingColumn,
		},
		{
			"header only",
			"time_rounded,unix_time,scale_id,site_id,weight_norm\n",
			ErrEmpty,
		},
		{
			"scale under two sites",
			"time_rounded,unix_time,scale_id,site_id,weight_norm\n" +
				"2024-05-01 00:00:00,1714521600,sc_01,a,0.1\n" +
				"2024-05-01 01:00:00,1714525200,sc_01,b,0.2\n",
			ErrNesting,
		},
		{
			"unix disagrees with timestamp order",
			"time_rounded,unix_time,scale_id,site_id,weight_norm\n" +
				"2024-05-01 00:00:00,1714525200,sc_01,a,0.1\n" +
				"2024-05-01 01:00:00,1714521600,sc_01,a,0.2\n",
			ErrTimeOrder,
		},
		{
			"bad weight",
			"time_rounded,unix_time,scale_id,site_id,weight_norm\n" +
				"2024-05-01 00:00:00,1714521600,sc_01,a,NaN\n",
			ErrBadValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.content))
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadMissingColumnsReportsAll(t *testing.T) {
	// A file missing several columns should name each one in a single
	// aggregated error, not fail on the first.
	path := writeTemp(t, "time_rounded,weight_norm\n2024-05-01,0.1\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, col := range []string{"unix", "scale", "site"} {
		if !strings.Contains(err.Error(), col) {
			t.Errorf("error does not mention %s: %v", col, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}
