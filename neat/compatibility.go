package neat

import "math"

// Compatibility measures how far apart two genomes are:
//
//	c1*E/N + c2*D/N + c3*W
//
// where E and D count excess and disjoint link genes, W is the mean absolute
// weight difference of matching genes and N is the larger link count (1 when
// both genomes are smaller than NormalizeThreshold).
func Compatibility(a, b *Genome, config *SpeciesSetConfig) float64 {
	var excess, disjoint, matching int
	var weightDiff float64

	maxA, maxB := 0, 0
	if n := len(a.Links); n > 0 {
		maxA = a.Links[n-1].Innovation
	}
	if n := len(b.Links); n > 0 {
		maxB = b.Links[n-1].Innovation
	}

	i, j := 0, 0
	for i < len(a.Links) || j < len(b.Links) {
		switch {
		case j >= len(b.Links) || (i < len(a.Links) && a.Links[i].Innovation < b.Links[j].Innovation):
			if a.Links[i].Innovation > maxB {
				excess++
			} else {
				disjoint++
			}
			i++
		case i >= len(a.Links) || b.Links[j].Innovation < a.Links[i].Innovation:
			if b.Links[j].Innovation > maxA {
				excess++
			} else {
				disjoint++
			}
			j++
		default:
			weightDiff += math.Abs(a.Links[i].Weight - b.Links[j].Weight)
			matching++
			i++
			j++
		}
	}

	n := len(a.Links)
	if len(b.Links) > n {
		n = len(b.Links)
	}
	if n == 0 || (len(a.Links) < config.NormalizeThreshold && len(b.Links) < config.NormalizeThreshold) {
		n = 1
	}

	d := config.ExcessCoefficient*float64(excess)/float64(n) +
		config.DisjointCoefficient*float64(disjoint)/float64(n)
	if matching > 0 {
		d += config.WeightCoefficient * weightDiff / float64(matching)
	}
	return d
}

// Compatible reports whether two genomes belong in the same species.
func Compatible(a, b *Genome, config *SpeciesSetConfig) bool {
	return Compatibility(a, b, config) < config.CompatibilityThreshold
}

// --------------------------- GenomeDistanceCache ---------------------------

type genomePair struct{ a, b int }

// GenomeDistanceCache stores calculated distances between genomes to avoid
// redundant computations during one speciation pass. Genome ids must be unique
// for the lifetime of the cache.
type GenomeDistanceCache struct {
	Distances map[genomePair]float64
	Hits      int
	Misses    int
	Config    *SpeciesSetConfig
}

// NewGenomeDistanceCache creates a new distance cache.
func NewGenomeDistanceCache(config *SpeciesSetConfig) *GenomeDistanceCache {
	return &GenomeDistanceCache{
		Distances: make(map[genomePair]float64),
		Config:    config,
	}
}

// Distance calculates or retrieves the distance between two genomes.
func (dc *GenomeDistanceCache) Distance(genome1, genome2 *Genome) float64 {
	key := genomePair{genome1.ID, genome2.ID}
	// Ensure order for cache key (a < b)
	if key.a > key.b {
		key.a, key.b = key.b, key.a
	}
	if d, ok := dc.Distances[key]; ok {
		dc.Hits++
		return d
	}
	dc.Misses++
	d := Compatibility(genome1, genome2, dc.Config)
	dc.Distances[key] = d
	return d
}

// Compatible reports whether the cached distance is below the threshold.
func (dc *GenomeDistanceCache) Compatible(genome1, genome2 *Genome) bool {
	return dc.Distance(genome1, genome2) < dc.Config.CompatibilityThreshold
}

// MeanDistance returns the mean and standard deviation of all cached distances.
func (dc *GenomeDistanceCache) MeanDistance() (mean, stdev float64) {
	if len(dc.Distances) == 0 {
		return 0, 0
	}
	all := make([]float64, 0, len(dc.Distances))
	for _, d := range dc.Distances {
		all = append(all, d)
	}
	return Mean(all), Stdev(all)
}
