package recognize

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/facetrace/facetrace/pkg/types"
)

// UnknownName labels a face whose embedding matched nothing in the gallery.
const UnknownName = "Unknown"

// Encoder turns a face crop into an embedding vector.
type Encoder interface {
	Encode(crop types.FaceCrop) ([]float64, error)
}

// SidecarEncoder requests embeddings from the inference sidecar.
type SidecarEncoder struct {
	client *SidecarClient
}

// NewSidecarEncoder creates an encoder over an existing sidecar client.
func NewSidecarEncoder(client *SidecarClient) *SidecarEncoder {
	return &SidecarEncoder{client: client}
}

// Encode returns the embedding for the crop.
func (s *SidecarEncoder) Encode(crop types.FaceCrop) ([]float64, error) {
	data, w, h := imageToRGB(prepareCrop(crop))
	resp, err := s.client.call(sidecarRequest{Op: "embed", Width: w, Height: h, Data: data, SkipDetect: true})
	if err != nil {
		return nil, err
	}
	if len(resp.Vector) == 0 {
		return nil, fmt.Errorf("sidecar returned empty embedding")
	}
	return resp.Vector, nil
}

// Gallery holds reference embeddings for known identities.
type Gallery struct {
	names   []string
	vectors [][]float64

	threshold float64
}

// galleryFile is the on-disk format: one entry per enrolled identity.
type galleryFile struct {
	Entries []struct {
		Name   string    `json:"name"`
		Vector []float64 `json:"vector"`
	} `json:"entries"`
}

// LoadGallery reads enrolled identities from a JSON file. An empty gallery
// is valid; every face then resolves to Unknown.
func LoadGallery(path string, threshold float64) (*Gallery, error) {
	g := &Gallery{threshold: threshold}
	if path == "" {
		return g, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gallery: %w", err)
	}
	var gf galleryFile
	if err := json.Unmarshal(raw, &gf); err != nil {
		return nil, fmt.Errorf("failed to parse gallery: %w", err)
	}
	for _, e := range gf.Entries {
		if e.Name == "" || len(e.Vector) == 0 {
			return nil, fmt.Errorf("gallery entry missing name or vector")
		}
		g.names = append(g.names, e.Name)
		g.vectors = append(g.vectors, e.Vector)
	}
	return g, nil
}

// Match pairs an enrolled identity with its distance to a query embedding.
type Match struct {
	Name     string
	Distance float64
}

// Size returns the number of enrolled identities.
func (g *Gallery) Size() int {
	return len(g.names)
}

// Distances computes the euclidean distance from the query to every
// comparable enrolled embedding. Entries with a mismatched vector length are
// skipped.
func (g *Gallery) Distances(vec []float64) []Match {
	matches := make([]Match, 0, len(g.names))
	for i, ref := range g.vectors {
		d, err := euclidean(vec, ref)
		if err != nil {
			continue
		}
		matches = append(matches, Match{Name: g.names[i], Distance: d})
	}
	return matches
}

// Resolve finds the nearest enrolled identity. The match must beat the
// threshold strictly, otherwise the face is Unknown.
func (g *Gallery) Resolve(vec []float64) (string, float64) {
	best := Match{Name: UnknownName, Distance: math.Inf(1)}
	for _, m := range g.Distances(vec) {
		if m.Distance < best.Distance {
			best = m
		}
	}
	if best.Distance >= g.threshold {
		return UnknownName, best.Distance
	}
	return best.Name, best.Distance
}

func euclidean(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding length mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
