package grammar

// Piece is a slice of a node's text produced by its rule.
type Piece struct {
	Text string
	// Child is false for uncovered text, which stays as an unremovable token.
	Child bool
}

// Pieces cuts text according to the rule. Terminal rules yield nothing.
// Concatenating the pieces always gives text back.
func (r *Rule) Pieces(text string) []Piece {
	var re = r.Split
	if re == nil {
		re = r.Match
	}
	if re == nil || text == "" {
		return nil
	}

	// In split mode the matches are separators; in match mode they are the
	// children.
	matchIsChild := r.Match != nil
	var pieces []Piece
	add := func(s string, child bool) {
		if s != "" {
			pieces = append(pieces, Piece{Text: s, Child: child})
		}
	}

	last := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		add(text[last:loc[0]], !matchIsChild)
		add(text[loc[0]:loc[1]], matchIsChild)
		last = loc[1]
	}
	add(text[last:], !matchIsChild)
	return pieces
}
