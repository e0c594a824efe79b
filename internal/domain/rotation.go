package domain

// Assignment maps each origin to the writer extending it in a round.
// An empty writer means nobody connected could take the origin.
type Assignment map[string]string

// History records which writers have already written each origin.
type History map[string]map[string]bool

// Record marks writer as having written origin.
func (h History) Record(origin, writer string) {
	if writer == "" {
		return
	}
	if h[origin] == nil {
		h[origin] = make(map[string]bool)
	}
	h[origin][writer] = true
}

// Wrote reports whether writer has already written origin.
func (h History) Wrote(origin, writer string) bool {
	return h[origin][writer]
}

// rotationShift is the seat offset used for round. Round 0 is self-assigned;
// later rounds walk through the non-self offsets 1..n-1 and then repeat them.
func rotationShift(n, round int) int {
	if n < 2 || round <= 0 {
		return 0
	}
	return 1 + (round-1)%(n-1)
}

// Rotate computes the assignment for round over the fixed origin order.
//
// With everyone connected the result is a bijection: origin i goes to the
// author seated at (i+shift) mod n. A seat held by a disconnected participant
// is handed to the next connected participant in rotation order, preferring one
// who is not the author and has not written that origin yet. With fewer than
// two connected participants every origin stays with its author when possible.
func Rotate(origins []string, round int, connected func(string) bool, history History) Assignment {
	n := len(origins)
	assignment := make(Assignment, n)

	live := 0
	for _, id := range origins {
		if connected(id) {
			live++
		}
	}

	shift := rotationShift(n, round)
	if live < 2 {
		shift = 0
	}

	for i, origin := range origins {
		seat := (i + shift) % n
		writer := origins[seat]
		if !connected(writer) {
			writer = replacementWriter(origins, seat, origin, connected, history)
		}
		assignment[origin] = writer
	}

	return assignment
}

// replacementWriter walks the rotation order from seat looking for the best
// connected stand-in for origin.
func replacementWriter(origins []string, seat int, origin string, connected func(string) bool, history History) string {
	n := len(origins)
	fallback := ""
	notAuthor := ""

	for k := 1; k < n; k++ {
		candidate := origins[(seat+k)%n]
		if !connected(candidate) {
			continue
		}
		if fallback == "" {
			fallback = candidate
		}
		if candidate == origin {
			continue
		}
		if notAuthor == "" {
			notAuthor = candidate
		}
		if !history.Wrote(origin, candidate) {
			return candidate
		}
	}

	if notAuthor != "" {
		return notAuthor
	}
	return fallback
}

// OriginsFor returns the origins assigned to writer, in origin order.
func (a Assignment) OriginsFor(origins []string, writer string) []string {
	var assigned []string
	for _, origin := range origins {
		if a[origin] == writer {
			assigned = append(assigned, origin)
		}
	}
	return assigned
}
