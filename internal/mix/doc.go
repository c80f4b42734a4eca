// Package mix places the assembled main content between template assets and
// exports the final audio.
//
// Mix lays out intro, main and outro on one timeline, loops an optional
// music bed under the main content and ducks it while speech is present,
// then applies a single normalisation gain. Template assets are mixed as-is;
// they never pass through cleanup. Exporter writes the master WAV in-process
// and derives other formats through ffmpeg.
package mix
