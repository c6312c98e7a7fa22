package scorer

// Cache memoizes per-pair scores within a single job. It is passed explicitly
// into the mapping engine rather than living as a package-level singleton, so
// parallel jobs stay independent. Not safe for concurrent use; each job owns
// its own cache.
type Cache struct {
	lexical map[[2]string]float64
	overlap map[[2]string]float64
}

func NewCache() *Cache {
	return &Cache{
		lexical: make(map[[2]string]float64),
		overlap: make(map[[2]string]float64),
	}
}

// LexicalCached is Lexical with memoization.
func (c *Cache) LexicalCached(sourceName, targetName string) float64 {
	if c == nil {
		return Lexical(sourceName, targetName)
	}
	key := [2]string{sourceName, targetName}
	if v, ok := c.lexical[key]; ok {
		return v
	}
	v := Lexical(sourceName, targetName)
	c.lexical[key] = v
	return v
}

// TokenOverlapCached is TokenOverlap with memoization.
func (c *Cache) TokenOverlapCached(sourceName, targetName string) float64 {
	if c == nil {
		return TokenOverlap(sourceName, targetName)
	}
	key := [2]string{sourceName, targetName}
	if v, ok := c.overlap[key]; ok {
		return v
	}
	v := TokenOverlap(sourceName, targetName)
	c.overlap[key] = v
	return v
}
