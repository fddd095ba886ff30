package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"regwatch/internal/domain/entity"
)

// seedFile is the YAML layout accepted by Import.
//
//	sources:
//	  - url: https://www.cpsc.gov/Newsroom/News-Releases
//	    jurisdiction: US
//	    agency: CPSC
//	    check_frequency: 6h
type seedFile struct {
	Sources []seedSource `yaml:"sources"`
}

type seedSource struct {
	URL            string `yaml:"url"`
	Jurisdiction   string `yaml:"jurisdiction"`
	Agency         string `yaml:"agency"`
	CheckFrequency string `yaml:"check_frequency"`
}

// ImportReport summarizes an Import call.
type ImportReport struct {
	Created []string
	Skipped []string
	Invalid map[string]string
}

// Import registers every source in a YAML seed document. Entries whose URL
// is already registered are skipped; invalid entries are reported and do not
// abort the import. Store failures do.
func (s *Service) Import(ctx context.Context, r io.Reader) (*ImportReport, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	report := &ImportReport{Invalid: map[string]string{}}
	for i, seed := range f.Sources {
		key := seed.URL
		if key == "" {
			key = fmt.Sprintf("#%d", i+1)
		}

		var freq time.Duration
		if seed.CheckFrequency != "" {
			d, err := time.ParseDuration(seed.CheckFrequency)
			if err != nil {
				report.Invalid[key] = fmt.Sprintf("check_frequency: %v", err)
				continue
			}
			freq = d
		}

		src, err := s.Register(ctx, RegisterInput{
			URL:            seed.URL,
			Jurisdiction:   seed.Jurisdiction,
			Agency:         seed.Agency,
			CheckFrequency: freq,
		})
		switch {
		case err == nil:
			report.Created = append(report.Created, src.ID)
		case errors.Is(err, ErrDuplicateSource):
			report.Skipped = append(report.Skipped, seed.URL)
		case isValidation(err):
			report.Invalid[key] = err.Error()
		default:
			return report, err
		}
	}
	return report, nil
}

func isValidation(err error) bool {
	return errors.Is(err, entity.ErrValidationFailed)
}
