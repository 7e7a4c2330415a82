package floodhist

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/safeland/floodrisk-cli/internal/geo"
)

// Raster is a single-band grid in ESRI ASCII Grid (.asc) format, the plain
// text export GDAL produces from flood-extent GeoTIFFs. Cells are stored
// row-major from the top-left corner; the georeference anchors the
// bottom-left.
type Raster struct {
	cols     int
	rows     int
	xll      float64
	yll      float64
	cellsize float64
	nodata   float64
	cells    []float64
}

// LoadASCIIGrid parses an ESRI ASCII Grid file.
func LoadASCIIGrid(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "floodhist: open raster %s", path)
	}
	defer f.Close()

	r := &Raster{nodata: -9999}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	headerDone := false
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if !headerDone {
			key := strings.ToLower(fields[0])
			switch key {
			case "ncols", "nrows", "xllcorner", "yllcorner", "cellsize", "nodata_value":
				if len(fields) != 2 {
					return nil, eris.Errorf("floodhist: malformed header line %q in %s", scanner.Text(), path)
				}
				v, err := strconv.ParseFloat(fields[1], 64)
				if err != nil {
					return nil, eris.Wrapf(err, "floodhist: header %s in %s", key, path)
				}
				switch key {
				case "ncols":
					r.cols = int(v)
				case "nrows":
					r.rows = int(v)
				case "xllcorner":
					r.xll = v
				case "yllcorner":
					r.yll = v
				case "cellsize":
					r.cellsize = v
				case "nodata_value":
					r.nodata = v
				}
				continue
			}
			if r.cols == 0 || r.rows == 0 || r.cellsize == 0 {
				return nil, eris.Errorf("floodhist: incomplete raster header in %s", path)
			}
			headerDone = true
			r.cells = make([]float64, 0, r.cols*r.rows)
		}

		for _, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "floodhist: cell value %q in %s", field, path)
			}
			r.cells = append(r.cells, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "floodhist: read raster %s", path)
	}
	if len(r.cells) != r.cols*r.rows {
		return nil, eris.Errorf("floodhist: raster %s has %d cells, expected %d", path, len(r.cells), r.cols*r.rows)
	}
	return r, nil
}

// Sample returns the cell value at (lon, lat) and whether the point lies
// inside the grid. NoData cells are in bounds and read as their stored
// value.
func (r *Raster) Sample(lon, lat float64) (float64, bool) {
	col := int((lon - r.xll) / r.cellsize)
	rowFromBottom := int((lat - r.yll) / r.cellsize)
	if col < 0 || col >= r.cols || rowFromBottom < 0 || rowFromBottom >= r.rows {
		return 0, false
	}
	row := r.rows - 1 - rowFromBottom
	return r.cells[row*r.cols+col], true
}

// NoData reports the grid's NoData sentinel value.
func (r *Raster) NoData() float64 { return r.nodata }

// CellCenter returns the geographic center of cell (row, col).
func (r *Raster) CellCenter(row, col int) (lon, lat float64) {
	lon = r.xll + (float64(col)+0.5)*r.cellsize
	lat = r.yll + (float64(r.rows-1-row)+0.5)*r.cellsize
	return lon, lat
}

// FloodedCells returns the centers of all cells with a positive non-NoData
// value.
func (r *Raster) FloodedCells() []geo.Coordinate {
	var cells []geo.Coordinate
	for row := 0; row < r.rows; row++ {
		for col := 0; col < r.cols; col++ {
			v := r.cells[row*r.cols+col]
			if v > 0 && v != r.nodata {
				lon, lat := r.CellCenter(row, col)
				cells = append(cells, geo.Coordinate{Lat: lat, Lon: lon})
			}
		}
	}
	return cells
}

// Bounds returns the grid extent as (minLon, minLat, maxLon, maxLat).
func (r *Raster) Bounds() (minLon, minLat, maxLon, maxLat float64) {
	return r.xll, r.yll,
		r.xll + float64(r.cols)*r.cellsize,
		r.yll + float64(r.rows)*r.cellsize
}
