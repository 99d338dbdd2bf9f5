package classify

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/okian/mudra/internal/domain/feature"
)

// Row is one labeled reference sample.
type Row struct {
	Label  string
	Values []float64
}

// RefSet is an immutable set of labeled reference vectors.
type RefSet struct {
	rows []Row
}

// Rows returns the reference rows. Callers must not mutate them.
func (r *RefSet) Rows() []Row {
	if r == nil {
		return nil
	}
	return r.rows
}

// Labels returns the distinct labels present in the set.
func (r *RefSet) Labels() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, row := range r.rows {
		if _, ok := seen[row.Label]; ok {
			continue
		}
		seen[row.Label] = struct{}{}
		out = append(out, row.Label)
	}
	return out
}

// ParseRefSet reads a delimited reference table: column 1 is the label, the
// remaining columns are the feature layout. Rows whose label is not in
// wanted are skipped; a nil or empty wanted loads everything.
func ParseRefSet(r io.Reader, wanted []string) (*RefSet, error) {
	keep := make(map[string]struct{}, len(wanted))
	for _, l := range wanted {
		keep[l] = struct{}{}
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	set := &RefSet{}
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrDatasetParse, line, err)
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("%w: line %d: too few columns", ErrDatasetParse, line)
		}
		label := record[0]
		if len(keep) > 0 {
			if _, ok := keep[label]; !ok {
				continue
			}
		}
		if len(record)-1 != feature.VectorLen {
			return nil, fmt.Errorf("%w: line %d: want %d features, got %d",
				ErrDatasetParse, line, feature.VectorLen, len(record)-1)
		}
		values := make([]float64, feature.VectorLen)
		for i, col := range record[1:] {
			v, err := strconv.ParseFloat(col, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d col %d: %v", ErrDatasetParse, line, i+2, err)
			}
			values[i] = v
		}
		set.rows = append(set.rows, Row{Label: label, Values: values})
	}
	return set, nil
}

// Opener supplies the raw dataset stream, e.g. a file or CDN download.
type Opener func(version string) (io.ReadCloser, error)

// Cache is a process-wide reference-set cache keyed by a dataset version
// token plus the required label subset. A version change invalidates every
// cached subset; subsets are populated lazily on first use.
type Cache struct {
	mu      sync.Mutex
	open    Opener
	version string
	sets    map[string]*RefSet
}

// NewCache creates a Cache that loads datasets through open.
func NewCache(open Opener) *Cache {
	return &Cache{open: open, sets: make(map[string]*RefSet)}
}

// Get returns the reference set for the given version and label subset,
// populating it on first use. A version token different from the cached one
// drops all cached subsets first.
func (c *Cache) Get(version string, labels []string) (*RefSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.version != version {
		c.sets = make(map[string]*RefSet)
		c.version = version
	}

	key := subsetKey(labels)
	if set, ok := c.sets[key]; ok {
		return set, nil
	}

	rc, err := c.open(version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatasetOpen, err)
	}
	defer rc.Close()

	set, err := ParseRefSet(rc, labels)
	if err != nil {
		return nil, err
	}
	c.sets[key] = set
	return set, nil
}

// Invalidate drops all cached subsets regardless of version.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets = make(map[string]*RefSet)
	c.version = ""
}

func subsetKey(labels []string) string {
	if len(labels) == 0 {
		return "*"
	}
	sorted := make([]string, len(labels))
	copy(sorted, labels)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	key := sorted[0]
	for _, l := range sorted[1:] {
		key += "," + l
	}
	return key
}
