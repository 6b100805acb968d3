// pkg/train/kmeans.go
package train

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/predict"
)

// ErrNotEnoughData is returned when a model cannot be fitted to the samples
var ErrNotEnoughData = errors.New("not enough data")

// KMeans clusters samples with Lloyd's algorithm from k-means++ seeds
type KMeans struct {
	K       int
	Seed    int64
	MaxIter int
	// Relative centroid shift below which a run has converged
	Tol float64
	// Independent seedings; the lowest inertia wins
	NInit int
}

// KMeansResult is the best clustering found
type KMeansResult struct {
	Centroids  [][]float64
	Labels     []int
	Inertia    float64
	Iterations int
}

// NewKMeans returns k-means with the usual defaults
func NewKMeans(k int, seed int64) *KMeans {
	return &KMeans{K: k, Seed: seed, MaxIter: 300, Tol: 1e-4, NInit: 10}
}

// Fit clusters data. Results are deterministic for a given seed.
func (km *KMeans) Fit(data [][]float64) (*KMeansResult, error) {
	if km.K <= 0 {
		return nil, fmt.Errorf("cluster count must be positive, got %d", km.K)
	}
	if len(data) < km.K {
		return nil, fmt.Errorf("%w: %d samples for %d clusters", ErrNotEnoughData, len(data), km.K)
	}
	dim := len(data[0])
	for i, x := range data {
		if len(x) != dim {
			return nil, fmt.Errorf("sample %d has %d features, expected %d", i, len(x), dim)
		}
	}

	rng := rand.New(rand.NewSource(km.Seed))
	tol := km.Tol * meanVariance(data)
	runs := km.NInit
	if runs < 1 {
		runs = 1
	}

	var best *KMeansResult
	for run := 0; run < runs; run++ {
		res := km.lloyd(data, seedPlusPlus(data, km.K, rng), tol)
		if best == nil || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

func (km *KMeans) lloyd(data, centroids [][]float64, tol float64) *KMeansResult {
	labels := make([]int, len(data))
	maxIter := km.MaxIter
	if maxIter < 1 {
		maxIter = 1
	}

	iter := 0
	for iter < maxIter {
		iter++
		assign(data, centroids, labels)
		next := recompute(data, labels, centroids)

		shift := 0.0
		for k := range centroids {
			d := floats.Distance(centroids[k], next[k], 2)
			shift += d * d
		}
		centroids = next
		if shift <= tol {
			break
		}
	}

	inertia := assign(data, centroids, labels)
	return &KMeansResult{Centroids: centroids, Labels: labels, Inertia: inertia, Iterations: iter}
}

// assign labels each sample with its nearest centroid and returns the inertia
func assign(data, centroids [][]float64, labels []int) float64 {
	inertia := 0.0
	for i, x := range data {
		k := predict.Nearest(centroids, x)
		labels[i] = k
		d := floats.Distance(centroids[k], x, 2)
		inertia += d * d
	}
	return inertia
}

// recompute returns the cluster means. An empty cluster takes the sample
// farthest from its current centroid.
func recompute(data [][]float64, labels []int, old [][]float64) [][]float64 {
	dim := len(data[0])
	next := make([][]float64, len(old))
	counts := make([]int, len(old))
	for k := range next {
		next[k] = make([]float64, dim)
	}
	for i, x := range data {
		floats.Add(next[labels[i]], x)
		counts[labels[i]]++
	}

	for k := range next {
		if counts[k] > 0 {
			floats.Scale(1/float64(counts[k]), next[k])
			continue
		}
		far, farDist := 0, -1.0
		for i, x := range data {
			if d := floats.Distance(old[labels[i]], x, 2); d > farDist {
				far, farDist = i, d
			}
		}
		copy(next[k], data[far])
	}
	return next
}

// seedPlusPlus picks initial centroids with probability proportional to the
// squared distance from the nearest centroid already chosen
func seedPlusPlus(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := data[rng.Intn(len(data))]
	centroids = append(centroids, append([]float64(nil), first...))

	dist := make([]float64, len(data))
	for i, x := range data {
		d := floats.Distance(first, x, 2)
		dist[i] = d * d
	}

	cum := make([]float64, len(data))
	for len(centroids) < k {
		floats.CumSum(cum, dist)
		total := cum[len(cum)-1]

		next := rng.Intn(len(data))
		if total > 0 {
			r := rng.Float64() * total
			next = len(cum) - 1
			for i, c := range cum {
				if c > r {
					next = i
					break
				}
			}
		}

		c := append([]float64(nil), data[next]...)
		centroids = append(centroids, c)
		for i, x := range data {
			d := floats.Distance(c, x, 2)
			dist[i] = math.Min(dist[i], d*d)
		}
	}
	return centroids
}

// meanVariance is the average per-feature variance of data
func meanVariance(data [][]float64) float64 {
	dim := len(data[0])
	col := make([]float64, len(data))
	total := 0.0
	for j := 0; j < dim; j++ {
		for i, x := range data {
			col[i] = x[j]
		}
		if _, v := stat.MeanVariance(col, nil); !math.IsNaN(v) {
			total += v
		}
	}
	return total / float64(dim)
}
