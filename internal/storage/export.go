package storage

import (
	"encoding/json"
	"io"
	"os"
)

type ExportData struct {
	RunMetadata

	Unix   []float64 `json:"unix,omitempty"`
	Weight []float64 `json:"weight,omitempty"`
	Fitted []float64 `json:"fitted,omitempty"`
	SE     []float64 `json:"se,omitempty"`
	Resid  []float64 `json:"resid,omitempty"`
}

// Export gathers a frequentist run into one exportable record.
func (s *Store) Export(runID string) (*ExportData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	data := &ExportData{RunMetadata: *meta}
	if meta.Kind == "fit" {
		series, err := s.LoadFit(runID)
		if err != nil {
			return nil, err
		}
		data.Unix = series.Unix
		data.Weight = series.Weight
		data.Fitted = series.Fitted
		data.SE = series.SE
		data.Resid = series.Resid
	}
	return data, nil
}

func (s *Store) ExportJSON(path, runID string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return s.exportTo(file, runID)
}

func (s *Store) ExportJSONStdout(runID string) error {
	return s.exportTo(os.Stdout, runID)
}

func (s *Store) exportTo(w io.Writer, runID string) error {
	data, err := s.Export(runID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
