package match

import "strconv"

var quantityWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "single": 1,
	"two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

// fillerWords never name a menu item. They are skipped when building
// phonetic windows.
var fillerWords = map[string]struct{}{
	"and": {}, "the": {}, "please": {}, "i": {}, "i'd": {}, "id": {},
	"i'll": {}, "like": {}, "want": {}, "would": {}, "can": {}, "could": {},
	"have": {}, "get": {}, "give": {}, "me": {}, "with": {}, "plus": {},
	"some": {}, "of": {}, "also": {}, "just": {}, "thanks": {}, "thank": {},
	"you": {}, "um": {}, "uh": {}, "couple": {}, "then": {}, "order": {},
}

// quantityWord parses a single quantity token: a number word or a number
// between 1 and 99.
func quantityWord(tok string) (int, bool) {
	if n, ok := quantityWords[tok]; ok {
		return n, true
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 1 || n > 99 {
		return 0, false
	}
	return n, true
}

// quantityBefore inspects the tokens directly preceding an item and returns
// the quantity they express, defaulting to 1.
func quantityBefore(tokens []string) int {
	n := len(tokens)
	if n >= 2 && tokens[n-2] == "couple" && tokens[n-1] == "of" {
		return 2
	}
	if n >= 1 {
		if q, ok := quantityWord(tokens[n-1]); ok {
			return q
		}
	}
	return 1
}

func isFiller(tok string) bool {
	if _, ok := fillerWords[tok]; ok {
		return true
	}
	_, ok := quantityWord(tok)
	return ok
}
