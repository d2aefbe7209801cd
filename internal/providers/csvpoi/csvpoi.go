// Package csvpoi loads tab-separated point-of-interest files
// (name, latitude, longitude) into an in-memory layer.
package csvpoi

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
	"github.com/mohammed-shakir/mercator-pick/internal/providers/memory"
)

type Stats struct {
	Loaded  int
	Skipped int
}

// Load reads rows until EOF. Rows with fewer than three fields or with
// unparseable coordinates are skipped. Ids are assigned to loaded rows in
// file order.
func Load(r io.Reader) (*memory.Provider, Stats, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	var st Stats
	p := memory.New()
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, st, fmt.Errorf("csvpoi: read: %w", err)
		}
		if len(rec) < 3 {
			st.Skipped++
			continue
		}
		lat, errLat := parseCoord(rec[1])
		lon, errLon := parseCoord(rec[2])
		if errLat != nil || errLon != nil {
			st.Skipped++
			continue
		}
		p.Add(model.Feature{
			Geometry: orb.Point{lon, lat},
			Attributes: map[string]any{
				"Id":   st.Loaded,
				"Name": strings.TrimSpace(rec[0]),
			},
		})
		st.Loaded++
	}
	return p, st, nil
}

func LoadFile(path string) (*memory.Provider, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("csvpoi: open %q: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

func parseCoord(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite coordinate %q", s)
	}
	return v, nil
}
