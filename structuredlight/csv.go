package structuredlight

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/projmap/logging"
	"go.viam.com/projmap/utils"
)

// WriteCSV writes one "cx, cy, px, py" line per correspondence in raster order, with no header.
func WriteCSV(w io.Writer, m *CorrespondenceMap) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 32)
	for _, e := range m.Entries() {
		buf = buf[:0]
		buf = strconv.AppendInt(buf, int64(e.CameraX), 10)
		buf = append(buf, ", "...)
		buf = strconv.AppendInt(buf, int64(e.CameraY), 10)
		buf = append(buf, ", "...)
		buf = strconv.AppendInt(buf, int64(e.ProjectorX), 10)
		buf = append(buf, ", "...)
		buf = strconv.AppendInt(buf, int64(e.ProjectorY), 10)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadCSV rebuilds a width x height map holding exactly the listed correspondences. Lines with the
// wrong number of fields, unparsable numbers or camera pixels outside the map are skipped with a
// warning.
func ReadCSV(r io.Reader, width, height int, logger logging.Logger) (*CorrespondenceMap, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	m := NewCorrespondenceMap(width, height)
	var vals [4]int
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return m, nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			logger.Warnw("skipping malformed correspondence line", "line", parseErr.Line, "error", parseErr.Err)
			continue
		}
		if err != nil {
			return nil, err
		}
		line, _ := reader.FieldPos(0)
		if len(record) != 4 {
			logger.Warnw("skipping correspondence line with wrong field count", "line", line, "fields", len(record))
			continue
		}
		if !parseFields(record, vals[:]) {
			logger.Warnw("skipping unparsable correspondence line", "line", line)
			continue
		}
		if vals[0] >= width || vals[1] >= height || vals[2] < 0 || vals[3] < 0 || vals[0] < 0 || vals[1] < 0 {
			logger.Warnw("skipping out of range correspondence", "line", line,
				"camera_x", vals[0], "camera_y", vals[1], "projector_x", vals[2], "projector_y", vals[3])
			continue
		}
		m.Set(vals[0], vals[1], vals[2], vals[3])
	}
}

func parseFields(record []string, dst []int) bool {
	for i, field := range record {
		v, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return false
		}
		dst[i] = v
	}
	return true
}

// SaveCSV writes the map to path, creating parent directories.
func SaveCSV(path string, m *CorrespondenceMap) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return utils.NewIOFailureError(err, "creating directory for %q", path)
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return utils.NewIOFailureError(err, "creating %q", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	if err := WriteCSV(f, m); err != nil {
		return utils.NewIOFailureError(err, "writing %q", path)
	}
	return nil
}

// LoadCSV reads a map written by SaveCSV. A missing or unreadable file is ErrIOFailure.
func LoadCSV(path string, width, height int, logger logging.Logger) (*CorrespondenceMap, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, utils.NewIOFailureError(err, "reading %q", path)
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	m, err := ReadCSV(f, width, height, logger)
	if err != nil {
		return nil, utils.NewIOFailureError(err, "reading %q", path)
	}
	return m, nil
}
