package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func buildCacheKey(modelName, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return "embed:" + modelName + ":" + contentHash, contentHash, modelName
}

func cloneEmbedding(values []float32) []float32 {
	if values == nil {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}

// missing collects the positions of texts that still need embedding. Equal
// texts share one slot so the backend sees each distinct text once.
func missing(texts []string, out [][]float32) ([]string, map[string][]int) {
	var pending []string
	slots := make(map[string][]int)
	for i, text := range texts {
		if out[i] != nil {
			continue
		}
		if _, ok := slots[text]; !ok {
			pending = append(pending, text)
		}
		slots[text] = append(slots[text], i)
	}
	return pending, slots
}
