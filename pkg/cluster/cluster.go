// Package cluster groups unlabeled speaker embeddings by density.
//
// Group runs DBSCAN over cosine similarity: two embeddings are neighbors
// when their similarity is at least the threshold, and a cluster needs
// MinSamples mutually reachable embeddings. Embeddings that join no cluster
// are noise and carry label -1.
//
//	res, err := cluster.Group(embeddings, cluster.Options{Threshold: 0.6})
//	for _, c := range res.Clusters {
//	    fmt.Println(c.ID, c.Members)
//	}
package cluster

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/haivivi/speakernet/pkg/voiceprint"
)

// Noise is the label of embeddings that belong to no cluster.
const Noise = -1

// ErrEmpty is returned when there is nothing to group.
var ErrEmpty = errors.New("cluster: no embeddings")

// Options controls grouping.
type Options struct {
	// Threshold is the minimum cosine similarity between neighbors.
	// Default: 0.5.
	Threshold float32

	// MinSamples is the neighborhood size, the point itself included,
	// that makes a core point. Default: 2.
	MinSamples int

	// Prefix is prepended to cluster IDs ("speaker" → "speaker:001").
	Prefix string
}

func (o *Options) defaults() {
	if o.Threshold == 0 {
		o.Threshold = 0.5
	}
	if o.MinSamples == 0 {
		o.MinSamples = 2
	}
}

// Cluster is one group of embeddings.
type Cluster struct {
	ID string `json:"id" yaml:"id" msgpack:"id"`

	// Members are indices into the input, ascending.
	Members []int `json:"members" yaml:"members" msgpack:"members"`

	// Centroid is the unit-normalized mean of the members.
	Centroid []float32 `json:"centroid,omitempty" yaml:"centroid,omitempty" msgpack:"centroid,omitempty"`

	// Cohesion is the mean similarity of the members to the centroid.
	Cohesion float32 `json:"cohesion" yaml:"cohesion" msgpack:"cohesion"`
}

// Result is the outcome of Group.
type Result struct {
	// Labels holds, per input, the index into Clusters or Noise.
	Labels   []int     `json:"labels" yaml:"labels" msgpack:"labels"`
	Clusters []Cluster `json:"clusters" yaml:"clusters" msgpack:"clusters"`
}

// Group clusters embeddings. The inputs are not modified.
func Group(embeddings [][]float32, opts Options) (*Result, error) {
	opts.defaults()
	n := len(embeddings)
	if n == 0 {
		return nil, ErrEmpty
	}
	dim := len(embeddings[0])
	units := blas32.General{Rows: n, Cols: dim, Stride: dim, Data: make([]float32, n*dim)}
	for i, e := range embeddings {
		if len(e) != dim {
			return nil, fmt.Errorf("cluster: embedding %d: %w", i, voiceprint.ErrDimension)
		}
		row := units.Data[i*dim : (i+1)*dim]
		copy(row, e)
		if _, err := voiceprint.Normalize(row); err != nil {
			return nil, fmt.Errorf("cluster: embedding %d: %w", i, err)
		}
	}

	// Pairwise cosine similarities of unit rows: S = U·Uᵀ.
	sim := blas32.General{Rows: n, Cols: n, Stride: n, Data: make([]float32, n*n)}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, units, units, 0, sim)

	labels := dbscan(sim, opts.Threshold, opts.MinSamples)
	return collect(labels, units, opts.Prefix)
}

// dbscan labels points 0..k-1 by cluster or Noise.
func dbscan(sim blas32.General, threshold float32, minSamples int) []int {
	const unvisited = -2
	n := sim.Rows
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}
	neighbors := func(p int) []int {
		var out []int
		for q, s := range sim.Data[p*n : (p+1)*n] {
			if s >= threshold {
				out = append(out, q)
			}
		}
		return out
	}

	next := 0
	for p := range n {
		if labels[p] != unvisited {
			continue
		}
		seeds := neighbors(p)
		if len(seeds) < minSamples {
			labels[p] = Noise
			continue
		}
		c := next
		next++
		labels[p] = c
		for len(seeds) > 0 {
			q := seeds[0]
			seeds = seeds[1:]
			switch labels[q] {
			case Noise:
				// Border point: joins the cluster but does not expand it.
				labels[q] = c
				continue
			case unvisited:
				labels[q] = c
			default:
				continue
			}
			if qn := neighbors(q); len(qn) >= minSamples {
				seeds = append(seeds, qn...)
			}
		}
	}
	return labels
}

func collect(labels []int, units blas32.General, prefix string) (*Result, error) {
	k := 0
	for _, l := range labels {
		k = max(k, l+1)
	}
	res := &Result{Labels: labels, Clusters: make([]Cluster, k)}
	for i := range res.Clusters {
		res.Clusters[i].ID = fmt.Sprintf("%03d", i+1)
		if prefix != "" {
			res.Clusters[i].ID = prefix + ":" + res.Clusters[i].ID
		}
	}
	for p, l := range labels {
		if l != Noise {
			res.Clusters[l].Members = append(res.Clusters[l].Members, p)
		}
	}

	dim := units.Cols
	for i := range res.Clusters {
		c := &res.Clusters[i]
		rows := make([][]float32, len(c.Members))
		for j, m := range c.Members {
			rows[j] = units.Data[m*dim : (m+1)*dim]
		}
		centroid, err := voiceprint.Centroid(rows...)
		if err != nil {
			return nil, fmt.Errorf("cluster %s: %w", c.ID, err)
		}
		c.Centroid = centroid
		var sum float32
		for _, r := range rows {
			sum += blas32.Dot(blas32.Vector{N: dim, Inc: 1, Data: r}, blas32.Vector{N: dim, Inc: 1, Data: centroid})
		}
		c.Cohesion = sum / float32(len(rows))
	}
	return res, nil
}
