// Package chunk splits long recordings into chunks that are cleaned in
// parallel and reassembled in temporal order.
//
// Split only places boundaries between words. Coordinator.Process writes
// each chunk to a per-attempt work directory, runs cleanup on a bounded set
// of goroutines with per-chunk retries, stores results by chunk index and
// joins them once every chunk has finished. Reassemble checks that no audio
// was gained or lost at the seams.
package chunk
