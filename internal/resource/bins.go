// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package resource canonicalises heterogeneous hardware requests into the
// six-dimensional resource lattice {cpu, gpu, memory, disk, time, singularity}
// used to match site pilot capacity against batch-system job demand.
package resource

// cpuBins is the set of integer CPU bin edges, 1..999.
var cpuBins = intRange(1, 999, 1)

// gpuBins is the set of integer GPU bin edges, 0..99.
var gpuBins = intRange(0, 99, 1)

// memoryBins is the memory bin table in GB. It is the concatenation of
//   [5..50 step 5], [50..200 step 10], [200..1000 step 40], [1000..40000 step 100]
// each divided by 10, with the shared boundary values deduplicated.
var memoryBins = dedupFloat(concatFloat(
	floatRange(5, 50, 5),
	floatRange(50, 200, 10),
	floatRange(200, 1000, 40),
	floatRange(1000, 40000, 100),
), 10)

// diskBins is the disk bin table in GB:
//
//	[1..10) ∪ [10..50 step 4) ∪ [50..100 step 10) ∪ [100..2000 step 100)
var diskBins = concatFloat(
	halfOpenFloat(1, 10, 1),
	halfOpenFloat(10, 50, 4),
	halfOpenFloat(50, 100, 10),
	halfOpenFloat(100, 2000, 100),
)

// timeBins is the wall-time bin table in hours:
//
//	[0..12) ∪ [12..24 step 3) ∪ [24..72 step 12) ∪ [72..1000 step 48)
var timeBins = concatFloat(
	halfOpenFloat(0, 12, 1),
	halfOpenFloat(12, 24, 3),
	halfOpenFloat(24, 72, 12),
	halfOpenFloat(72, 1000, 48),
)

func intRange(start, end, step int) []int {
	out := make([]int, 0, (end-start)/step+1)
	for v := start; v <= end; v += step {
		out = append(out, v)
	}
	return out
}

// floatRange returns start, start+step, ..., up to and including end.
func floatRange(start, end, step float64) []float64 {
	out := make([]float64, 0, int((end-start)/step)+1)
	for v := start; v <= end+1e-9; v += step {
		out = append(out, v)
	}
	return out
}

// halfOpenFloat returns start, start+step, ..., strictly less than end.
func halfOpenFloat(start, end, step float64) []float64 {
	out := make([]float64, 0, int((end-start)/step)+1)
	for v := start; v < end-1e-9; v += step {
		out = append(out, v)
	}
	return out
}

func concatFloat(ranges ...[]float64) []float64 {
	var out []float64
	for _, r := range ranges {
		out = append(out, r...)
	}
	return out
}

// dedupFloat divides every value by divisor and removes consecutive
// duplicates produced by overlapping range boundaries.
func dedupFloat(values []float64, divisor float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		v = v / divisor
		if len(out) > 0 && floatsEqual(out[len(out)-1], v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func floatsEqual(a, b float64) bool {
	const eps = 1e-9
	d := a - b
	return d < eps && d > -eps
}
