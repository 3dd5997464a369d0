package structuredlight

import (
	"image"
	"slices"

	"github.com/golang/geo/r2"
)

const unmapped = -1

// C2P is a single camera to projector correspondence.
type C2P struct {
	CameraX, CameraY       int
	ProjectorX, ProjectorY int
}

// CorrespondenceMap is a dense raster addressed by camera pixel holding the projector pixel seen there.
// Unmapped pixels are kept distinct from projector coordinate 0.
type CorrespondenceMap struct {
	width, height int
	// proj holds (x, y) pairs in raster order; unmapped pixels hold -1.
	proj   []int32
	mapped int
}

// NewCorrespondenceMap returns a map of the given camera size with every pixel unmapped.
func NewCorrespondenceMap(width, height int) *CorrespondenceMap {
	width, height = max(width, 0), max(height, 0)
	proj := make([]int32, 2*width*height)
	for i := range proj {
		proj[i] = unmapped
	}
	return &CorrespondenceMap{width: width, height: height, proj: proj}
}

// Width is the camera width.
func (m *CorrespondenceMap) Width() int { return m.width }

// Height is the camera height.
func (m *CorrespondenceMap) Height() int { return m.height }

// Bounds is the camera rectangle the map covers.
func (m *CorrespondenceMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.width, m.height)
}

func (m *CorrespondenceMap) index(cx, cy int) (int, bool) {
	if cx < 0 || cy < 0 || cx >= m.width || cy >= m.height {
		return 0, false
	}
	return 2 * (cy*m.width + cx), true
}

// Set maps camera pixel (cx, cy) to projector pixel (px, py). Camera pixels outside the map are
// ignored and negative projector coordinates unmap the pixel.
func (m *CorrespondenceMap) Set(cx, cy, px, py int) {
	if px < 0 || py < 0 {
		m.Unset(cx, cy)
		return
	}
	i, ok := m.index(cx, cy)
	if !ok {
		return
	}
	if m.proj[i] == unmapped {
		m.mapped++
	}
	m.proj[i], m.proj[i+1] = int32(px), int32(py)
}

// setUncounted writes a correspondence without touching the mapped count so that rows can be filled
// concurrently; callers must recount afterwards.
func (m *CorrespondenceMap) setUncounted(cx, cy, px, py int) {
	i := 2 * (cy*m.width + cx)
	m.proj[i], m.proj[i+1] = int32(px), int32(py)
}

func (m *CorrespondenceMap) recount() {
	m.mapped = 0
	for i := 0; i < len(m.proj); i += 2 {
		if m.proj[i] != unmapped {
			m.mapped++
		}
	}
}

// Unset marks camera pixel (cx, cy) as unmapped.
func (m *CorrespondenceMap) Unset(cx, cy int) {
	i, ok := m.index(cx, cy)
	if !ok || m.proj[i] == unmapped {
		return
	}
	m.mapped--
	m.proj[i], m.proj[i+1] = unmapped, unmapped
}

// At returns the projector pixel seen by camera pixel (cx, cy), if any.
func (m *CorrespondenceMap) At(cx, cy int) (px, py int, ok bool) {
	i, inside := m.index(cx, cy)
	if !inside || m.proj[i] == unmapped {
		return 0, 0, false
	}
	return int(m.proj[i]), int(m.proj[i+1]), true
}

// Mapped reports whether camera pixel (cx, cy) has a correspondence.
func (m *CorrespondenceMap) Mapped(cx, cy int) bool {
	_, _, ok := m.At(cx, cy)
	return ok
}

// Len is the number of mapped camera pixels.
func (m *CorrespondenceMap) Len() int { return m.mapped }

// Entries lists every correspondence in raster order.
func (m *CorrespondenceMap) Entries() []C2P {
	out := make([]C2P, 0, m.mapped)
	for cy := 0; cy < m.height; cy++ {
		for cx := 0; cx < m.width; cx++ {
			if px, py, ok := m.At(cx, cy); ok {
				out = append(out, C2P{CameraX: cx, CameraY: cy, ProjectorX: px, ProjectorY: py})
			}
		}
	}
	return out
}

// Points returns the camera and projector points of every correspondence, paired by index.
func (m *CorrespondenceMap) Points() (cam, proj []r2.Point) {
	cam = make([]r2.Point, 0, m.mapped)
	proj = make([]r2.Point, 0, m.mapped)
	for _, e := range m.Entries() {
		cam = append(cam, r2.Point{X: float64(e.CameraX), Y: float64(e.CameraY)})
		proj = append(proj, r2.Point{X: float64(e.ProjectorX), Y: float64(e.ProjectorY)})
	}
	return cam, proj
}

// Equal reports whether both maps have the same size and correspondences.
func (m *CorrespondenceMap) Equal(other *CorrespondenceMap) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.width == other.width && m.height == other.height && slices.Equal(m.proj, other.proj)
}

// Clone returns a deep copy.
func (m *CorrespondenceMap) Clone() *CorrespondenceMap {
	return &CorrespondenceMap{
		width:  m.width,
		height: m.height,
		proj:   slices.Clone(m.proj),
		mapped: m.mapped,
	}
}
