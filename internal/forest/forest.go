// Package forest trains a random forest of gini CART trees and predicts class
// probabilities as the mean of the tree leaf distributions.
package forest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	Trees int `json:"trees,omitempty"`
	// MaxFeatures is the number of features tried per split. Zero means the
	// square root of the feature count.
	MaxFeatures int `json:"maxFeatures,omitempty"`
	// MaxDepth limits tree depth. Zero grows trees until leaves are pure.
	MaxDepth       int   `json:"maxDepth,omitempty"`
	MinSamplesLeaf int   `json:"minSamplesLeaf,omitempty"`
	Seed           int64 `json:"seed,omitempty"`
	// Workers bounds concurrent tree training. Zero uses GOMAXPROCS.
	Workers int `json:"-"`
}

func DefaultOptions() Options {
	return Options{Trees: 100, MinSamplesLeaf: 1, Seed: 42}
}

// Forest is immutable once trained and safe for concurrent prediction.
type Forest struct {
	classes  []string
	features int
	trees    []tree
}

// Train fits a forest on rows x labelled y. Classes are the sorted distinct
// labels, which is also the order of predicted probabilities.
func Train(ctx context.Context, x [][]float32, y []string, opts Options) (*Forest, error) {
	if len(x) == 0 {
		return nil, errors.New("no training rows")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%d rows for %d labels", len(x), len(y))
	}
	features := len(x[0])
	for i, row := range x {
		if len(row) != features {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), features)
		}
	}
	if opts.Trees <= 0 {
		opts.Trees = 100
	}
	if opts.MinSamplesLeaf <= 0 {
		opts.MinSamplesLeaf = 1
	}
	if opts.MaxFeatures <= 0 || opts.MaxFeatures > features {
		opts.MaxFeatures = max(1, int(math.Sqrt(float64(features))))
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	classes, labels := encodeLabels(y)
	f := &Forest{classes: classes, features: features, trees: make([]tree, opts.Trees)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range f.trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(opts.Seed + int64(i)))
			sample := make([]int, len(x))
			for j := range sample {
				sample[j] = rng.Intn(len(x))
			}
			b := &builder{x: x, y: labels, classes: len(classes), features: features, opts: opts, rng: rng}
			b.grow(sample, 0)
			f.trees[i] = tree{nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

func encodeLabels(y []string) ([]string, []int) {
	seen := map[string]bool{}
	classes := []string{}
	for _, label := range y {
		if !seen[label] {
			seen[label] = true
			classes = append(classes, label)
		}
	}
	sort.Strings(classes)
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	labels := make([]int, len(y))
	for i, label := range y {
		labels[i] = index[label]
	}
	return classes, labels
}

func (f *Forest) Classes() []string {
	return append([]string(nil), f.classes...)
}

func (f *Forest) Features() int {
	return f.features
}

// PredictProba returns one probability per class for row.
func (f *Forest) PredictProba(row []float32) []float32 {
	sum := make([]float64, len(f.classes))
	for _, t := range f.trees {
		for c, p := range t.leaf(row) {
			sum[c] += float64(p)
		}
	}
	out := make([]float32, len(sum))
	for c, s := range sum {
		out[c] = float32(s / float64(len(f.trees)))
	}
	return out
}

// Predict scores a single row. shape is accepted for compatibility with other
// classifiers; only the row width is checked.
func (f *Forest) Predict(ctx context.Context, shape []int64, data []float32) ([]float32, error) {
	if len(data) != f.features {
		return nil, fmt.Errorf("expected %d input values, got %d", f.features, len(data))
	}
	return f.PredictProba(data), nil
}

type node struct {
	// feature is -1 for leaves.
	feature     int
	threshold   float32
	left, right int
	dist        []float32
}

type tree struct {
	nodes []node
}

func (t tree) leaf(row []float32) []float32 {
	n := t.nodes[0]
	for n.feature >= 0 {
		if row[n.feature] <= n.threshold {
			n = t.nodes[n.left]
		} else {
			n = t.nodes[n.right]
		}
	}
	return n.dist
}

type builder struct {
	x        [][]float32
	y        []int
	classes  int
	features int
	opts     Options
	rng      *rand.Rand
	nodes    []node
}

func (b *builder) grow(idx []int, depth int) int {
	counts := make([]int, b.classes)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	id := len(b.nodes)
	b.nodes = append(b.nodes, node{feature: -1})

	stop := pure(counts) ||
		len(idx) < 2*b.opts.MinSamplesLeaf ||
		(b.opts.MaxDepth > 0 && depth >= b.opts.MaxDepth)
	feature, threshold, ok := -1, float32(0), false
	if !stop {
		feature, threshold, ok = b.split(idx, counts)
	}
	if !ok {
		dist := make([]float32, b.classes)
		for c, n := range counts {
			dist[c] = float32(n) / float32(len(idx))
		}
		b.nodes[id].dist = dist
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].feature = feature
	b.nodes[id].threshold = threshold
	b.nodes[id].left = l
	b.nodes[id].right = r
	return id
}

// split finds the lowest weighted gini split among MaxFeatures random
// features, drawing further features while none of them can split.
func (b *builder) split(idx []int, counts []int) (int, float32, bool) {
	n := len(idx)
	minLeaf := b.opts.MinSamplesLeaf
	best := math.Inf(1)
	bestFeature := -1
	var bestThreshold float32

	sorted := make([]int, n)
	left := make([]int, b.classes)
	right := make([]int, b.classes)
	tried := 0
	for _, f := range b.rng.Perm(b.features) {
		if tried >= b.opts.MaxFeatures && bestFeature >= 0 {
			break
		}
		tried++
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })
		if b.x[sorted[0]][f] == b.x[sorted[n-1]][f] {
			continue
		}
		clear(left)
		copy(right, counts)
		for i := 0; i < n-1; i++ {
			c := b.y[sorted[i]]
			left[c]++
			right[c]--
			v, next := b.x[sorted[i]][f], b.x[sorted[i+1]][f]
			nl, nr := i+1, n-i-1
			if v == next || nl < minLeaf || nr < minLeaf {
				continue
			}
			score := (float64(nl)*gini(left, nl) + float64(nr)*gini(right, nr)) / float64(n)
			if score < best {
				best = score
				bestFeature = f
				bestThreshold = v + (next-v)/2
				if bestThreshold >= next {
					bestThreshold = v
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func gini(counts []int, n int) float64 {
	sum := 0.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		sum += p * p
	}
	return 1 - sum
}

func pure(counts []int) bool {
	nonzero := 0
	for _, c := range counts {
		if c > 0 {
			nonzero++
		}
	}
	return nonzero <= 1
}
