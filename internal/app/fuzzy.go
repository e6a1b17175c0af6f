package app

import (
	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

func init() {
	algo.Init("default")
}

// fuzzyScore matches pattern against text with fzf's scoring. Returns
// (score, matched).
func fuzzyScore(text string, pattern []rune, slab *util.Slab) (int, bool) {
	if len(pattern) == 0 {
		return 0, true
	}
	chars := util.ToChars([]byte(text))
	result, _ := algo.FuzzyMatchV2(false, true, true, &chars, pattern, false, slab)
	if result.Start < 0 {
		return 0, false
	}
	return result.Score, true
}
