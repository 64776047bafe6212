// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// DefaultTolerance is the slack applied when rounding a value up to a bin
// edge: a value rounds to the first edge b such that value <= b*tolerance.
const DefaultTolerance = 1.05

// Dimension names recognised in a partial resource map.
const (
	DimCPU         = "cpu"
	DimGPU         = "gpu"
	DimMemory      = "memory"
	DimDisk        = "disk"
	DimTime        = "time"
	DimSingularity = "singularity"
)

// Dims is the fixed dimension order used by Order and Mismatch.
var Dims = [...]string{DimCPU, DimGPU, DimMemory, DimDisk, DimTime, DimSingularity}

func defaults() map[string]any {
	return map[string]any{
		DimCPU:         1,
		DimGPU:         0,
		DimMemory:      1.0,
		DimDisk:        1.0,
		DimTime:        1.0,
		DimSingularity: false,
	}
}

// IsRecognizedDimension reports whether name is one of the six lattice
// dimensions. Callers validating client-supplied resource maps use this to
// reject unknown keys.
func IsRecognizedDimension(name string) bool {
	for _, d := range Dims {
		if d == name {
			return true
		}
	}
	return false
}

// Class is a canonical point in the resource lattice. All fields are the
// rounded bin-edge values; equality and hashing operate over them directly.
type Class struct {
	CPU         int
	GPU         int
	Memory      float64
	Disk        float64
	Time        float64
	Singularity bool
}

// OutOfRangeError is returned by Construct when a value exceeds the largest
// bin edge for its dimension, or when a numeric dimension's value is not a
// number (Value is then 0).
type OutOfRangeError struct {
	Dimension string
	Value     float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("resource: value %v for dimension %q exceeds the largest bin edge", e.Value, e.Dimension)
}

// InfeasibleError is returned by Mismatch when the job does not fit on the
// class.
type InfeasibleError struct {
	Job   Class
	Class Class
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("resource: job %+v does not fit on class %+v", e.Job, e.Class)
}

// Construct builds a canonical Class from a partial, user-supplied resource
// map. Unknown keys are silently discarded. Missing dimensions take their
// defaults. A tolerance of 0 selects DefaultTolerance; callers that want
// exact binning must pass 1.
func Construct(partial map[string]any, tolerance float64) (Class, error) {
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}

	merged := defaults()
	for k, v := range partial {
		if IsRecognizedDimension(k) {
			merged[k] = v
		}
	}

	var c Class
	var err error

	if c.CPU, err = roundInt(DimCPU, merged[DimCPU], cpuBins, tolerance); err != nil {
		return Class{}, err
	}
	if c.GPU, err = roundInt(DimGPU, merged[DimGPU], gpuBins, tolerance); err != nil {
		return Class{}, err
	}
	if c.Memory, err = roundFloat(DimMemory, merged[DimMemory], memoryBins, tolerance); err != nil {
		return Class{}, err
	}
	if c.Disk, err = roundFloat(DimDisk, merged[DimDisk], diskBins, tolerance); err != nil {
		return Class{}, err
	}
	if c.Time, err = roundFloat(DimTime, merged[DimTime], timeBins, tolerance); err != nil {
		return Class{}, err
	}
	c.Singularity = toBool(merged[DimSingularity])

	return c, nil
}

// Fits reports whether c (the job) fits on other (the candidate class): the
// componentwise <= predicate over the five numeric dimensions, with
// singularity requiring implication rather than ordering.
func (c Class) Fits(other Class) bool {
	return c.CPU <= other.CPU &&
		c.GPU <= other.GPU &&
		c.Memory <= other.Memory &&
		c.Disk <= other.Disk &&
		c.Time <= other.Time &&
		(!c.Singularity || other.Singularity)
}

// Mismatch computes c.mismatch(job): the product, over the five numeric
// dimensions, of (bin_index(job.dim)+1)/(bin_index(c.dim)+1) using 1-based
// bin indices. It requires job.Fits(c).
func (c Class) Mismatch(job Class) (float64, error) {
	if !job.Fits(c) {
		return 0, &InfeasibleError{Job: job, Class: c}
	}

	m := 1.0
	m *= ratioInt(job.CPU, c.CPU, cpuBins)
	m *= ratioInt(job.GPU, c.GPU, gpuBins)
	m *= ratioFloat(job.Memory, c.Memory, memoryBins)
	m *= ratioFloat(job.Disk, c.Disk, diskBins)
	m *= ratioFloat(job.Time, c.Time, timeBins)
	return m, nil
}

// Order returns -1, 0, or 1 reflecting the fixed lexicographic total order
// over (cpu, gpu, memory, disk, time, singularity), with false < true.
func (c Class) Order(other Class) int {
	if d := cmpInt(c.CPU, other.CPU); d != 0 {
		return d
	}
	if d := cmpInt(c.GPU, other.GPU); d != 0 {
		return d
	}
	if d := cmpFloat(c.Memory, other.Memory); d != 0 {
		return d
	}
	if d := cmpFloat(c.Disk, other.Disk); d != 0 {
		return d
	}
	if d := cmpFloat(c.Time, other.Time); d != 0 {
		return d
	}
	return cmpBool(c.Singularity, other.Singularity)
}

// Less reports whether c sorts strictly before other, for use with sort.Slice.
func (c Class) Less(other Class) bool {
	return c.Order(other) < 0
}

// Equal reports whether the six rounded coordinates match exactly.
func (c Class) Equal(other Class) bool {
	return c == other
}

// Hash returns a stable hash over the six rounded coordinates, suitable for
// keying maps that cannot use Class directly (Class itself is comparable
// and can be used as a Go map key without calling Hash).
func (c Class) Hash() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%v|%v|%v|%t", c.CPU, c.GPU, c.Memory, c.Disk, c.Time, c.Singularity)
	return h.Sum64()
}

func (c Class) String() string {
	return fmt.Sprintf("{cpu:%d gpu:%d memory:%v disk:%v time:%v singularity:%t}",
		c.CPU, c.GPU, c.Memory, c.Disk, c.Time, c.Singularity)
}

// MarshalText renders c as its String form, letting Class be used directly
// as a JSON object key (encoding/json requires TextMarshaler for
// non-string, non-integer map key types).
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// SortClasses sorts classes into the fixed lexicographic order, used to make
// the matcher's floating-point summation order deterministic.
func SortClasses(classes []Class) {
	sort.Slice(classes, func(i, j int) bool {
		return classes[i].Order(classes[j]) < 0
	})
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	case string:
		return b != "" && b != "false" && b != "0"
	default:
		return v != nil
	}
}

func roundInt(dim string, v any, bins []int, tolerance float64) (int, error) {
	f, ok := toFloat(v)
	if !ok {
		return 0, &OutOfRangeError{Dimension: dim}
	}
	for _, b := range bins {
		if f <= float64(b)*tolerance {
			return b, nil
		}
	}
	return 0, &OutOfRangeError{Dimension: dim, Value: f}
}

func roundFloat(dim string, v any, bins []float64, tolerance float64) (float64, error) {
	f, ok := toFloat(v)
	if !ok {
		return 0, &OutOfRangeError{Dimension: dim}
	}
	for _, b := range bins {
		if f <= b*tolerance {
			return b, nil
		}
	}
	return 0, &OutOfRangeError{Dimension: dim, Value: f}
}

func indexOfInt(bins []int, v int) int {
	i := sort.SearchInts(bins, v)
	if i < len(bins) && bins[i] == v {
		return i
	}
	return 0
}

func indexOfFloat(bins []float64, v float64) int {
	i := sort.Search(len(bins), func(i int) bool { return bins[i] >= v-1e-9 })
	if i < len(bins) && floatsEqual(bins[i], v) {
		return i
	}
	return 0
}

func ratioInt(jobVal, classVal int, bins []int) float64 {
	return float64(indexOfInt(bins, jobVal)+1) / float64(indexOfInt(bins, classVal)+1)
}

func ratioFloat(jobVal, classVal float64, bins []float64) float64 {
	return float64(indexOfFloat(bins, jobVal)+1) / float64(indexOfFloat(bins, classVal)+1)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}
