package tournament

// splitmix64 finalizer; adjacent inputs give unrelated outputs.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// pairSeed derives the random seed of the ordered pairing (a, b) from the
// tournament seed, so a pairing replays identically whichever worker runs it.
func pairSeed(base uint64, a, b int) uint64 {
	return splitmix64(splitmix64(base^uint64(a)) ^ uint64(b))
}
